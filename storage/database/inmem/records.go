package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/kilabu/core/attendance"
)

// recordStore keeps attendance records in memory.
// Updating or deleting an unknown ID fails with a StoreWriteError wrapping attendance.ErrNotFound.
type recordStore struct {
	db *recordTable
}

var _ attendance.Store = (*recordStore)(nil) // interface compliance check

func NewRecordStore(db *DB) attendance.Store {
	return &recordStore{db: db.records}
}

func (store *recordStore) CreateRecord(ctx context.Context, rec attendance.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", attendance.NewStoreWriteError(attendance.OpCreate, "", err)
	}

	store.db.Lock()
	rec.ID = uuid.New().String()
	store.db.table[rec.ID] = &rec
	store.db.Unlock()

	store.db.broadcast()
	return rec.ID, nil
}

func (store *recordStore) GetRecord(ctx context.Context, id string) (attendance.Record, error) {
	store.db.RLock()
	defer store.db.RUnlock()

	if rec, ok := store.db.table[id]; ok {
		return *rec, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (store *recordStore) UpdateRecord(ctx context.Context, id string, upd attendance.RecordUpdate) error {
	if err := ctx.Err(); err != nil {
		return attendance.NewStoreWriteError(attendance.OpUpdate, id, err)
	}

	store.db.Lock()
	// only save set fields
	rec, ok := store.db.table[id]
	if !ok {
		store.db.Unlock()
		return attendance.NewStoreWriteError(attendance.OpUpdate, id, attendance.ErrNotFound)
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.Notes != nil {
		rec.Notes = *upd.Notes
	}
	store.db.Unlock()

	store.db.broadcast()
	return nil
}

func (store *recordStore) DeleteRecord(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return attendance.NewStoreWriteError(attendance.OpDelete, id, err)
	}

	store.db.Lock()
	if _, ok := store.db.table[id]; !ok {
		store.db.Unlock()
		return attendance.NewStoreWriteError(attendance.OpDelete, id, attendance.ErrNotFound)
	}
	delete(store.db.table, id)
	store.db.Unlock()

	store.db.broadcast()
	return nil
}

func (store *recordStore) QueryRecords(ctx context.Context, q attendance.Query) ([]attendance.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	store.db.RLock()
	defer store.db.RUnlock()
	return store.db.query(q), nil
}

func (store *recordStore) Subscribe(q attendance.Query, onSnapshot func([]attendance.Record), onError func(error)) (attendance.Unsubscribe, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	sub := &subscription{
		query:      q,
		onSnapshot: onSnapshot,
		onError:    onError,
		wake:       make(chan struct{}, 1),
		fail:       make(chan error, 1),
		done:       make(chan struct{}),
	}
	sub.wake <- struct{}{} // initial snapshot

	store.db.Lock()
	store.db.subs[sub] = struct{}{}
	store.db.Unlock()

	go sub.run(store.db)

	return func() {
		sub.once.Do(func() {
			store.db.Lock()
			delete(store.db.subs, sub)
			store.db.Unlock()
			close(sub.done)
		})
	}, nil
}

// query returns the records matching q. Callers hold the table lock.
func (t *recordTable) query(q attendance.Query) []attendance.Record {
	records := make([]attendance.Record, 0, len(t.table))
	for _, rec := range t.table {
		if q.Matches(*rec) {
			records = append(records, *rec)
		}
	}

	ord := q.Ordering
	if ord.IsZero() {
		ord = attendance.DefaultOrdering
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		var less, equal bool
		switch ord.Field {
		case attendance.FieldDate:
			less, equal = a.Date.Before(b.Date), a.Date.Equal(b.Date)
		default:
			less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		}
		if equal {
			return a.ID < b.ID
		}
		if ord.Ascending {
			return less
		}
		return !less
	})

	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}
	return records
}

// broadcast wakes up every subscription; each re-reads the table on its own goroutine.
func (t *recordTable) broadcast() {
	t.RLock()
	defer t.RUnlock()
	for sub := range t.subs {
		select {
		case sub.wake <- struct{}{}:
		default: // a wake-up is already pending
		}
	}
}

type subscription struct {
	query      attendance.Query
	onSnapshot func([]attendance.Record)
	onError    func(error)
	wake       chan struct{}
	fail       chan error
	done       chan struct{}
	once       sync.Once
}

func (sub *subscription) run(t *recordTable) {
	for {
		select {
		case <-sub.done:
			return
		case err := <-sub.fail:
			sub.onError(err)
			return
		case <-sub.wake:
			select {
			case <-sub.done:
				return
			default:
			}
			t.RLock()
			records := t.query(sub.query)
			t.RUnlock()
			sub.onSnapshot(records)
		}
	}
}

// failAll terminates every subscription with err, as a revoked permission would.
func (t *recordTable) failAll(err error) {
	t.Lock()
	defer t.Unlock()
	for sub := range t.subs {
		select {
		case sub.fail <- err:
		default:
		}
		delete(t.subs, sub)
	}
}
