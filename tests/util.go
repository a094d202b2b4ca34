package testutil

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/kilabu/core/attendance"
	"github.com/trezcool/kilabu/storage/database"
)

// ErrInjected is returned by FaultyStore for the writes it is told to fail.
var ErrInjected = errors.New("injected store failure")

// Day returns midnight UTC of the given YYYY-MM-DD day, failing the test on bad input.
func Day(t *testing.T, day string) time.Time {
	t.Helper()
	d, err := time.Parse(attendance.DayLayout, day)
	if err != nil {
		t.Fatalf("Day() failed: %v", err)
	}
	return d
}

// NewRecord returns a record of one student for the (date, group, trainer) session,
// with stable names derived from the IDs.
func NewRecord(date time.Time, groupID, trainerID, studentID string, status attendance.Status) attendance.Record {
	return attendance.Record{
		StudentID:   studentID,
		StudentName: "Student " + studentID,
		TrainerID:   trainerID,
		TrainerName: "Trainer " + trainerID,
		BranchID:    "b1",
		BranchName:  "Central Branch",
		GroupID:     groupID,
		GroupName:   "Group " + groupID,
		Date:        date,
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
}

// CreateRecords stores recs and returns them with their assigned IDs.
func CreateRecords(t *testing.T, store attendance.Store, recs ...attendance.Record) []attendance.Record {
	t.Helper()
	created := make([]attendance.Record, 0, len(recs))
	for _, rec := range recs {
		id, err := store.CreateRecord(context.Background(), rec)
		if err != nil {
			t.Fatalf("CreateRecords() failed: %v", err)
		}
		rec.ID = id
		created = append(created, rec)
	}
	return created
}

// FaultyStore wraps a Store and fails the writes of selected record IDs.
// Creates can be failed by student ID. Every write call is counted.
type FaultyStore struct {
	attendance.Store

	mu           sync.Mutex
	failIDs      map[string]struct{}
	failStudents map[string]struct{}
	calls        map[string]int
}

func NewFaultyStore(store attendance.Store) *FaultyStore {
	return &FaultyStore{
		Store:        store,
		failIDs:      make(map[string]struct{}),
		failStudents: make(map[string]struct{}),
		calls:        make(map[string]int),
	}
}

// FailRecords makes updates and deletes of these record IDs fail with ErrInjected.
func (s *FaultyStore) FailRecords(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.failIDs[id] = struct{}{}
	}
}

// FailStudents makes creates for these student IDs fail with ErrInjected.
func (s *FaultyStore) FailStudents(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.failStudents[id] = struct{}{}
	}
}

// Calls returns how many times the write op was attempted.
func (s *FaultyStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *FaultyStore) record(op string, set map[string]struct{}, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	_, fail := set[key]
	return fail
}

func (s *FaultyStore) CreateRecord(ctx context.Context, rec attendance.Record) (string, error) {
	if s.record(attendance.OpCreate, s.failStudents, rec.StudentID) {
		return "", attendance.NewStoreWriteError(attendance.OpCreate, "", ErrInjected)
	}
	return s.Store.CreateRecord(ctx, rec)
}

func (s *FaultyStore) UpdateRecord(ctx context.Context, id string, upd attendance.RecordUpdate) error {
	if s.record(attendance.OpUpdate, s.failIDs, id) {
		return attendance.NewStoreWriteError(attendance.OpUpdate, id, ErrInjected)
	}
	return s.Store.UpdateRecord(ctx, id, upd)
}

func (s *FaultyStore) DeleteRecord(ctx context.Context, id string) error {
	if s.record(attendance.OpDelete, s.failIDs, id) {
		return attendance.NewStoreWriteError(attendance.OpDelete, id, ErrInjected)
	}
	return s.Store.DeleteRecord(ctx, id)
}

// PrepareDB opens the postgres database at TEST_DATABASE_URL, migrates it and
// empties the attendance table. The test is skipped when the variable is unset.
func PrepareDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed to migrate: %v", err)
	}
	if _, err = db.Exec("TRUNCATE attendance_records"); err != nil {
		t.Fatalf("PrepareDB() failed to truncate: %v", err)
	}
	return db
}
