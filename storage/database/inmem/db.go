package inmemdb

import (
	"sync"

	"github.com/trezcool/kilabu/core/attendance"
)

type (
	DB struct {
		records *recordTable
	}

	recordTable struct {
		sync.RWMutex
		table map[string]*attendance.Record
		subs  map[*subscription]struct{}
	}
)

func Open() (*DB, error) {
	db := &DB{
		records: &recordTable{
			table: make(map[string]*attendance.Record),
			subs:  make(map[*subscription]struct{}),
		},
	}
	return db, nil
}

// Reset drops every record. Live subscriptions receive an empty snapshot.
func (db *DB) Reset() {
	db.records.Lock()
	db.records.table = make(map[string]*attendance.Record)
	db.records.Unlock()
	db.records.broadcast()
}

// FailSubscriptions ends every live subscription with err.
func (db *DB) FailSubscriptions(err error) {
	db.records.failAll(err)
}
