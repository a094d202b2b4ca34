package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kilabu/core"
	"github.com/trezcool/kilabu/core/attendance"
	"github.com/trezcool/kilabu/storage/changefeed"
)

const recordColumns = `id, student_id, student_name, trainer_id, trainer_name, branch_id, branch_name,
	group_id, group_name, date, status, notes, created_at`

type recordRow struct {
	ID          string      `db:"id"`
	StudentID   string      `db:"student_id"`
	StudentName string      `db:"student_name"`
	TrainerID   string      `db:"trainer_id"`
	TrainerName string      `db:"trainer_name"`
	BranchID    string      `db:"branch_id"`
	BranchName  string      `db:"branch_name"`
	GroupID     string      `db:"group_id"`
	GroupName   string      `db:"group_name"`
	Date        null.Time   `db:"date"`
	Status      string      `db:"status"`
	Notes       null.String `db:"notes"`
	CreatedAt   time.Time   `db:"created_at"`
}

// recordStore keeps attendance records in postgres.
// Updating or deleting an unknown ID fails with a StoreWriteError wrapping attendance.ErrNotFound.
type recordStore struct {
	db     *sqlx.DB
	feed   changefeed.Feed
	logger core.Logger
}

var _ attendance.Store = (*recordStore)(nil) // interface compliance check

func NewRecordStore(db *sql.DB, feed changefeed.Feed, logger core.Logger) (attendance.Store, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
	).Check(); err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, errors.New("parameter feed is nil")
	}
	if logger == nil {
		return nil, errors.New("parameter logger is nil")
	}
	return &recordStore{
		db:     sqlx.NewDb(db, "postgres"),
		feed:   feed,
		logger: logger,
	}, nil
}

func (store *recordStore) toRow(rec attendance.Record) recordRow {
	return recordRow{
		ID:          rec.ID,
		StudentID:   rec.StudentID,
		StudentName: rec.StudentName,
		TrainerID:   rec.TrainerID,
		TrainerName: rec.TrainerName,
		BranchID:    rec.BranchID,
		BranchName:  rec.BranchName,
		GroupID:     rec.GroupID,
		GroupName:   rec.GroupName,
		Date:        null.NewTime(rec.Date.UTC(), !rec.Date.IsZero()),
		Status:      string(rec.Status),
		Notes:       null.NewString(rec.Notes, rec.Notes != ""),
		CreatedAt:   rec.CreatedAt.UTC(),
	}
}

// fromRow maps a row back to a Record. A NULL date is kept as the zero time:
// grouping reports and skips such records.
func (store *recordStore) fromRow(row recordRow) attendance.Record {
	return attendance.Record{
		ID:          row.ID,
		StudentID:   row.StudentID,
		StudentName: row.StudentName,
		TrainerID:   row.TrainerID,
		TrainerName: row.TrainerName,
		BranchID:    row.BranchID,
		BranchName:  row.BranchName,
		GroupID:     row.GroupID,
		GroupName:   row.GroupName,
		Date:        row.Date.Time,
		Status:      attendance.Status(row.Status),
		Notes:       row.Notes.String,
		CreatedAt:   row.CreatedAt,
	}
}

// published tells other instances about a successful write. Failing to do so is only logged:
// the write itself went through.
func (store *recordStore) published(ctx context.Context) {
	if err := store.feed.Publish(ctx); err != nil {
		store.logger.Warn("publishing attendance change", err)
	}
}

func (store *recordStore) CreateRecord(ctx context.Context, rec attendance.Record) (string, error) {
	rec.ID = uuid.New().String()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	q := `INSERT INTO attendance_records (` + recordColumns + `) VALUES (
		:id, :student_id, :student_name, :trainer_id, :trainer_name, :branch_id, :branch_name,
		:group_id, :group_name, :date, :status, :notes, :created_at)`
	if _, err := store.db.NamedExecContext(ctx, q, store.toRow(rec)); err != nil {
		return "", attendance.NewStoreWriteError(attendance.OpCreate, "", errors.Wrap(err, "inserting attendance record"))
	}
	store.published(ctx)
	return rec.ID, nil
}

func (store *recordStore) GetRecord(ctx context.Context, id string) (attendance.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.Record{}, attendance.ErrNotFound
	}
	var row recordRow
	q := `SELECT ` + recordColumns + ` FROM attendance_records WHERE id = $1`
	if err := store.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, readError(err, "finding attendance record")
	}
	return store.fromRow(row), nil
}

func (store *recordStore) UpdateRecord(ctx context.Context, id string, upd attendance.RecordUpdate) error {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.NewStoreWriteError(attendance.OpUpdate, id, attendance.ErrNotFound)
	}

	var status null.String
	if upd.Status != nil {
		status = null.StringFrom(string(*upd.Status))
	}
	q := `UPDATE attendance_records
		SET status = COALESCE($1, status), notes = COALESCE($2, notes)
		WHERE id = $3`
	res, err := store.db.ExecContext(ctx, q, status, null.StringFromPtr(upd.Notes), id)
	if err != nil {
		return attendance.NewStoreWriteError(attendance.OpUpdate, id, errors.Wrap(err, "updating attendance record"))
	}
	if err = store.checkAffected(res, attendance.OpUpdate, id); err != nil {
		return err
	}
	store.published(ctx)
	return nil
}

func (store *recordStore) DeleteRecord(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.NewStoreWriteError(attendance.OpDelete, id, attendance.ErrNotFound)
	}

	res, err := store.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
	if err != nil {
		return attendance.NewStoreWriteError(attendance.OpDelete, id, errors.Wrap(err, "deleting attendance record"))
	}
	if err = store.checkAffected(res, attendance.OpDelete, id); err != nil {
		return err
	}
	store.published(ctx)
	return nil
}

// readError reports a closed connection as a shutdown error.
func readError(err error, msg string) error {
	if errors.Is(err, sql.ErrConnDone) {
		return errors.Wrap(core.NewShutdownError("attendance store connection closed"), msg)
	}
	return errors.Wrap(err, msg)
}

func (store *recordStore) checkAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return attendance.NewStoreWriteError(op, id, errors.Wrap(err, "reading affected rows"))
	}
	if n == 0 {
		return attendance.NewStoreWriteError(op, id, attendance.ErrNotFound)
	}
	return nil
}

// buildQuery renders q as SQL. Field names are checked by Query.Validate before being inlined.
func (store *recordStore) buildQuery(q attendance.Query) (string, []interface{}) {
	var sb strings.Builder
	args := make([]interface{}, 0, len(q.Filters))

	sb.WriteString(`SELECT ` + recordColumns + ` FROM attendance_records`)
	for i, f := range q.Filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(f.Field + " = ?")
		args = append(args, f.Value)
	}

	ord := q.Ordering
	if ord.IsZero() {
		ord = attendance.DefaultOrdering
	}
	fmt.Fprintf(&sb, " ORDER BY %s, id", ord.String())
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return store.db.Rebind(sb.String()), args
}

func (store *recordStore) QueryRecords(ctx context.Context, q attendance.Query) ([]attendance.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query, args := store.buildQuery(q)

	var rows []recordRow
	if err := store.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, readError(err, "querying attendance records")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, store.fromRow(row))
	}
	return records, nil
}

// Subscribe re-runs q after every change signalled by the feed.
// A feed or query failure ends the subscription through onError.
func (store *recordStore) Subscribe(q attendance.Query, onSnapshot func([]attendance.Record), onError func(error)) (attendance.Unsubscribe, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	wake := make(chan struct{}, 1)
	failed := make(chan error, 1)

	go func() {
		err := store.feed.Listen(ctx, func() {
			select {
			case wake <- struct{}{}:
			default: // a re-query is already pending
			}
		})
		if err != nil && ctx.Err() == nil {
			failed <- err
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-failed:
				cancel()
				onError(err)
				return
			case <-wake:
				records, err := store.QueryRecords(ctx, q)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					cancel()
					onError(err)
					return
				}
				onSnapshot(records)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}
