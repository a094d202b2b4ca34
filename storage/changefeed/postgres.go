package changefeed

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/kilabu/core"
)

var (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
)

// Postgres listens to the NOTIFY sent by the attendance_records trigger.
type Postgres struct {
	dsn     string
	channel string
	logger  core.Logger
}

var _ Feed = (*Postgres)(nil)

func NewPostgres(dsn, channel string, logger core.Logger) (*Postgres, error) {
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(dsn, "dsn"),
		vala.StringNotEmpty(channel, "channel"),
	).Check(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, errors.New("parameter logger is nil")
	}
	return &Postgres{dsn: dsn, channel: channel, logger: logger}, nil
}

// Publish is a no-op: the database trigger notifies on every write.
func (f *Postgres) Publish(context.Context) error { return nil }

func (f *Postgres) Listen(ctx context.Context, onChange func()) error {
	failed := make(chan error, 1)
	listener := pq.NewListener(f.dsn, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		if err == nil {
			return
		}
		f.logger.Warn("postgres change feed: connection event", err, map[string]interface{}{"event": ev})
		if ev == pq.ListenerEventConnectionAttemptFailed || ev == pq.ListenerEventDisconnected {
			select {
			case failed <- err:
			default:
			}
		}
	})
	defer func() { _ = listener.Close() }()

	if err := listener.Listen(f.channel); err != nil {
		return errors.Wrapf(err, "listening to %q", f.channel)
	}
	signal(onChange)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-failed:
			return errors.Wrap(err, "postgres change feed lost its connection")
		case <-listener.Notify:
			// a nil notification means the connection was re-established: events may have been missed
			signal(onChange)
		case <-ticker.C:
			go func() { _ = listener.Ping() }()
		}
	}
}
