package attendance

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound        = errors.New("attendance record not found")
	ErrSessionNotFound = errors.New("attendance session not found")
)

// Write operations
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// MalformedRecordError is raised when a record cannot be aggregated (eg. missing date).
// It is only logged: the record is left out and aggregation carries on.
type MalformedRecordError struct {
	RecordID string
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed attendance record %q: %s", e.RecordID, e.Reason)
}

// StoreWriteError wraps the failure of a single create, update or delete.
type StoreWriteError struct {
	Op       string
	RecordID string
	Err      error
}

func NewStoreWriteError(op, recordID string, err error) error {
	return &StoreWriteError{Op: op, RecordID: recordID, Err: err}
}

func (e *StoreWriteError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("%s attendance record: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s attendance record %q: %v", e.Op, e.RecordID, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// Cause lets errors.Cause reach sentinels such as ErrNotFound.
func (e *StoreWriteError) Cause() error { return e.Err }

// AggregateError summarizes a batch of independent writes where at least one failed.
// Writes that succeeded are not rolled back.
type AggregateError struct {
	Op        string
	Succeeded int
	Failed    int
	Errs      []error
}

func (e *AggregateError) Total() int { return e.Succeeded + e.Failed }

func (e *AggregateError) Error() string {
	return fmt.Sprintf("%d of %d %s operations succeeded", e.Succeeded, e.Total(), e.Op)
}

func (e *AggregateError) Unwrap() error {
	if len(e.Errs) == 0 {
		return nil
	}
	return e.Errs[0]
}

// FeedError is the terminal failure of a live subscription. Listeners do not reconnect.
type FeedError struct {
	Err error
}

func (e *FeedError) Error() string { return "attendance feed: " + e.Err.Error() }

func (e *FeedError) Unwrap() error { return e.Err }

// AsAggregateError reports whether err (or its cause) is an *AggregateError.
func AsAggregateError(err error) (*AggregateError, bool) {
	var aggErr *AggregateError
	if errors.As(err, &aggErr) {
		return aggErr, true
	}
	return nil, false
}
