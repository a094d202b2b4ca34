package attendance

import (
	"context"

	"github.com/trezcool/kilabu/core"
)

// Collection is the record store collection holding attendance records.
const Collection = "attendance_records"

// Filterable record fields
const (
	FieldBranchID  = "branch_id"
	FieldGroupID   = "group_id"
	FieldTrainerID = "trainer_id"
	FieldStudentID = "student_id"
	FieldStatus    = "status"
)

// Orderable record fields
const (
	FieldCreatedAt = "created_at"
	FieldDate      = "date"
)

var (
	FilterableFields = []string{FieldBranchID, FieldGroupID, FieldTrainerID, FieldStudentID, FieldStatus}
	OrderableFields  = []string{FieldCreatedAt, FieldDate}

	// DefaultOrdering is newest records first.
	DefaultOrdering = core.DBOrdering{Field: FieldCreatedAt, Ascending: false}
)

type (
	// Filter is an equality constraint on one record field.
	Filter struct {
		Field string
		Value string
	}

	// Query selects records for a read or a live subscription.
	Query struct {
		Collection string
		Filters    []Filter
		Ordering   core.DBOrdering
		Limit      int // 0: no limit
	}

	// Unsubscribe stops a live subscription. Calling it more than once is a no-op.
	Unsubscribe func()

	// Store is the boundary to the remote record store.
	// Every method may block on I/O; none of them imposes locking on callers.
	Store interface {
		// CreateRecord stores rec and returns the ID assigned by the store.
		CreateRecord(ctx context.Context, rec Record) (string, error)
		GetRecord(ctx context.Context, id string) (Record, error)
		// UpdateRecord applies the set fields of upd; last write wins.
		// Implementations must document what happens when id does not exist.
		UpdateRecord(ctx context.Context, id string, upd RecordUpdate) error
		DeleteRecord(ctx context.Context, id string) error
		QueryRecords(ctx context.Context, q Query) ([]Record, error)
		// Subscribe delivers the full current result set of q to onSnapshot on every change,
		// starting with the initial one. Snapshots of a subscription arrive in order, one at a time.
		// onError is called at most once; no snapshot follows it.
		Subscribe(q Query, onSnapshot func([]Record), onError func(error)) (Unsubscribe, error)
	}
)

// NewQuery returns a Query over the attendance collection, newest first.
func NewQuery(filters ...Filter) Query {
	return Query{Collection: Collection, Filters: filters, Ordering: DefaultOrdering}
}

// Where adds an equality filter; empty values add no constraint.
func (q Query) Where(field, value string) Query {
	if value == "" {
		return q
	}
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

func (q Query) OrderBy(ord core.DBOrdering) Query {
	q.Ordering = ord
	return q
}

// Validate checks that the query only references known fields.
func (q Query) Validate() error {
	if q.Collection != "" && q.Collection != Collection {
		return core.NewValidationError(nil, core.FieldError{Field: "collection", Error: "unknown collection " + q.Collection})
	}
	for _, f := range q.Filters {
		if !core.StringInSlice(f.Field, FilterableFields) {
			return core.NewValidationError(nil, core.FieldError{Field: f.Field, Error: "cannot filter on this field"})
		}
	}
	if !q.Ordering.IsZero() && !core.StringInSlice(q.Ordering.Field, OrderableFields) {
		return core.NewValidationError(nil, core.FieldError{Field: "ordering", Error: "cannot order by " + q.Ordering.Field})
	}
	if q.Limit < 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "limit", Error: "must be positive"})
	}
	return nil
}

// Matches reports whether rec satisfies every filter of q.
func (q Query) Matches(rec Record) bool {
	for _, f := range q.Filters {
		if rec.Field(f.Field) != f.Value {
			return false
		}
	}
	return true
}

// Field returns the value of a filterable field.
func (r Record) Field(name string) string {
	switch name {
	case FieldBranchID:
		return r.BranchID
	case FieldGroupID:
		return r.GroupID
	case FieldTrainerID:
		return r.TrainerID
	case FieldStudentID:
		return r.StudentID
	case FieldStatus:
		return string(r.Status)
	}
	return ""
}
