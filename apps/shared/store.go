// Package shared holds the wiring common to the API server and the admin CLI.
package shared

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/kilabu/core"
	"github.com/trezcool/kilabu/core/attendance"
	"github.com/trezcool/kilabu/storage/changefeed"
	"github.com/trezcool/kilabu/storage/database"
	"github.com/trezcool/kilabu/storage/database/inmem"
	"github.com/trezcool/kilabu/storage/database/sqlx"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Storage is an opened record store along with what must be closed with it.
type Storage struct {
	Store attendance.Store
	DB    *sql.DB // nil for the memory backend

	closers []func() error
}

func (s *Storage) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenStorage opens the record store selected by conf.Attendance.StoreBackend.
// The postgres backend creates and migrates the database when needed.
func OpenStorage(ctx context.Context, conf *core.Config, logger core.Logger) (*Storage, error) {
	switch conf.Attendance.StoreBackend {
	case BackendMemory:
		db, err := inmemdb.Open()
		if err != nil {
			return nil, errors.Wrap(err, "opening in-memory database")
		}
		return &Storage{Store: inmemdb.NewRecordStore(db)}, nil

	case BackendPostgres:
		s := new(Storage)
		db, err := SetUpDB(conf)
		if err != nil {
			return nil, errors.Wrap(err, "setting up database")
		}
		s.DB = db
		s.closers = append(s.closers, db.Close)

		feed, err := openFeed(ctx, conf, logger, s)
		if err != nil {
			_ = s.Close()
			return nil, errors.Wrap(err, "opening change feed")
		}
		if s.Store, err = sqlxrepos.NewRecordStore(db, feed, logger); err != nil {
			_ = s.Close()
			return nil, errors.Wrap(err, "creating record store")
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown attendance store backend %q", conf.Attendance.StoreBackend)
	}
}

func openFeed(ctx context.Context, conf *core.Config, logger core.Logger, s *Storage) (changefeed.Feed, error) {
	switch conf.Attendance.FeedBackend {
	case BackendPostgres:
		return changefeed.NewPostgres(database.URL(conf), conf.Attendance.FeedChannel, logger)
	case BackendRedis:
		client, err := changefeed.ConnectRedis(ctx, conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Close)
		return changefeed.NewRedis(client, conf.Attendance.FeedChannel)
	default:
		return nil, fmt.Errorf("unknown attendance feed backend %q", conf.Attendance.FeedBackend)
	}
}

// SetUpDB creates the database if needed, opens it and applies pending migrations.
func SetUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
