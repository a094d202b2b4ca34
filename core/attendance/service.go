package attendance

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/kilabu/core"
)

var nowFunc = time.Now // mockable

type (
	ServiceDeps struct {
		Conf     *core.Config
		Logger   core.Logger
		Metrics  core.Metrics
		Validate *validator.Validate
	}

	// Service reads sessions and turns session-level edits into individual record writes.
	// There is no transaction: a batch may partially apply, and then an *AggregateError
	// tells how many writes went through. Nothing is patched locally; listeners converge
	// through the live feed.
	Service struct {
		store       Store
		logger      core.Logger
		metrics     core.Metrics
		validate    *validator.Validate
		grouper     Grouper
		loc         *time.Location
		maxInflight int
	}
)

func NewService(store Store, deps ServiceDeps) *Service {
	conf := deps.Conf
	if conf == nil {
		conf = core.NewTestConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = core.NopLogger
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = core.NopMetrics
	}
	validate := deps.Validate
	if validate == nil {
		var translator = core.NewTranslator()
		validate = validator.New()
		core.InitValidators(validate, translator)
		InitValidators(validate, translator)
	}
	loc := conf.Attendance.Location()

	return &Service{
		store:       store,
		logger:      logger,
		metrics:     metrics,
		validate:    validate,
		grouper:     Grouper{Location: loc, Logger: logger, Metrics: metrics},
		loc:         loc,
		maxInflight: conf.Attendance.MaxInflightWrites,
	}
}

// Location is the timezone calendar days are computed in.
func (svc *Service) Location() *time.Location { return svc.loc }

// Group aggregates records with the service's timezone.
func (svc *Service) Group(records []Record) []Session {
	return svc.grouper.Group(records)
}

// Sessions reads the records selected by q and returns their sessions matching sf.
// q.Limit cuts records, so callers wanting complete sessions limit with sf.Limit instead.
func (svc *Service) Sessions(ctx context.Context, q Query, sf SessionFilter) ([]Session, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	records, err := svc.store.QueryRecords(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	return sf.Apply(svc.grouper.Group(records), svc.loc), nil
}

// Session returns the session of the given day (YYYY-MM-DD), group and trainer.
func (svc *Service) Session(ctx context.Context, day, groupID, trainerID string) (Session, error) {
	date, err := ParseDay(day, svc.loc)
	if err != nil {
		return Session{}, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "expected format YYYY-MM-DD"})
	}
	q := NewQuery().Where(FieldGroupID, groupID).Where(FieldTrainerID, trainerID)
	records, err := svc.store.QueryRecords(ctx, q)
	if err != nil {
		return Session{}, errors.Wrap(err, "querying attendance records")
	}

	key := SessionKey(DayKey(date, svc.loc), groupID, trainerID)
	for _, sess := range svc.grouper.Group(records) {
		if sess.Key == key {
			return sess, nil
		}
	}
	return Session{}, ErrSessionNotFound
}

// CommitStatusEdits sets the status of the session's records listed in edits (record ID -> status).
// Only records whose status actually changes are written, all of them concurrently.
// Unknown record IDs or statuses fail validation before anything is written.
func (svc *Service) CommitStatusEdits(ctx context.Context, sess Session, edits map[string]Status) error {
	var fldErrs []core.FieldError
	changes := make([]string, 0, len(edits))
	for id, status := range edits {
		rec, ok := sess.Record(id)
		if !ok {
			fldErrs = append(fldErrs, core.FieldError{Field: id, Error: "record is not part of this session"})
			continue
		}
		if !status.IsValid() {
			fldErrs = append(fldErrs, core.FieldError{Field: id, Error: statusText})
			continue
		}
		if rec.Status != status {
			changes = append(changes, id)
		}
	}
	if len(fldErrs) > 0 {
		sort.Slice(fldErrs, func(i, j int) bool { return fldErrs[i].Field < fldErrs[j].Field })
		return core.NewValidationError(nil, fldErrs...)
	}
	if len(changes) == 0 {
		return nil
	}
	sort.Strings(changes)

	err := svc.runBatch(ctx, OpUpdate, len(changes), func(ctx context.Context, i int) (string, error) {
		status := edits[changes[i]]
		return changes[i], svc.store.UpdateRecord(ctx, changes[i], RecordUpdate{Status: &status})
	})
	svc.logBatch(ctx, "committing status edits", sess, len(changes), err)
	return err
}

// DeleteSession deletes every record of the session: deleting a session deletes
// sess.BlastRadius() records, and this cannot be undone. Deletes run concurrently;
// on partial failure the records already deleted stay deleted.
func (svc *Service) DeleteSession(ctx context.Context, sess Session) error {
	if len(sess.Records) == 0 {
		return nil
	}
	ids := sess.RecordIDs()

	err := svc.runBatch(ctx, OpDelete, len(ids), func(ctx context.Context, i int) (string, error) {
		return ids[i], svc.store.DeleteRecord(ctx, ids[i])
	})
	svc.logBatch(ctx, "deleting session", sess, len(ids), err)
	return err
}

// CreateSession takes attendance: one record per entry, stamped with the name snapshots of ns.
// ns is fully validated before any write. The IDs of the created records are returned in
// entry order (empty for entries that failed).
func (svc *Service) CreateSession(ctx context.Context, ns NewSession) ([]string, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return nil, err
	}

	now := nowFunc().UTC()
	ids := make([]string, len(ns.Entries))
	err := svc.runBatch(ctx, OpCreate, len(ns.Entries), func(ctx context.Context, i int) (string, error) {
		e := ns.Entries[i]
		id, err := svc.store.CreateRecord(ctx, Record{
			StudentID:   e.StudentID,
			StudentName: e.StudentName,
			TrainerID:   ns.Trainer.ID,
			TrainerName: ns.Trainer.Name,
			BranchID:    ns.Branch.ID,
			BranchName:  ns.Branch.Name,
			GroupID:     ns.Group.ID,
			GroupName:   ns.Group.Name,
			Date:        ns.Date,
			Status:      e.Status,
			Notes:       e.Notes,
			CreatedAt:   now,
		})
		if err == nil {
			ids[i] = id
		}
		return id, err
	})

	sess := Session{
		Key:       SessionKey(DayKey(ns.Date, svc.loc), ns.Group.ID, ns.Trainer.ID),
		GroupID:   ns.Group.ID,
		TrainerID: ns.Trainer.ID,
	}
	svc.logBatch(ctx, "creating session", sess, len(ns.Entries), err)
	return ids, err
}

// runBatch runs n independent writes concurrently and waits for all of them.
// A failed write never cancels the others.
func (svc *Service) runBatch(ctx context.Context, op string, n int, write func(ctx context.Context, i int) (string, error)) error {
	errs := make([]error, n)

	g := new(errgroup.Group)
	if svc.maxInflight > 0 {
		g.SetLimit(svc.maxInflight)
	}
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			id, err := write(ctx, i)
			svc.metrics.ObserveWrite(op, err == nil)
			if err != nil {
				var wErr *StoreWriteError
				if !errors.As(err, &wErr) {
					err = NewStoreWriteError(op, id, err)
				}
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	aggErr := &AggregateError{Op: op}
	for _, err := range errs {
		if err != nil {
			aggErr.Failed++
			aggErr.Errs = append(aggErr.Errs, err)
		} else {
			aggErr.Succeeded++
		}
	}
	if aggErr.Failed > 0 {
		return aggErr
	}
	return nil
}

func (svc *Service) logBatch(ctx context.Context, msg string, sess Session, n int, err error) {
	args := []interface{}{map[string]interface{}{"session": sess.Key, "writes": n}}
	if actor, ok := core.ActorFrom(ctx); ok {
		args = append(args, actor)
	}
	if err != nil {
		svc.logger.Error(msg+": "+err.Error(), append(args, err)...)
		return
	}
	svc.logger.Info(msg, args...)
}
