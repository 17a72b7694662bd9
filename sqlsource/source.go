package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/ectopq/ectopq"
	"github.com/ectopq/ectopq/dialect"
	"github.com/ectopq/ectopq/internal/locksm"
	"github.com/ectopq/ectopq/job"
	"github.com/ectopq/ectopq/task"
)

// TaskFunc builds the Job task to dispatch for a reserved row, given its
// primary-key columns. A Source built by New uses DefaultTaskFunc unless
// WithTaskFunc overrides it.
type TaskFunc func(pk []job.PKValue) (task.Task, error)

// DefaultTaskFunc produces task.Run with the row's primary key folded
// into the task's arguments.
func DefaultTaskFunc(pk []job.PKValue) (task.Task, error) {
	args := make(map[string]any, len(pk))
	for _, v := range pk {
		args[v.Name] = v.Value
	}
	return task.New(task.Run, args)
}

// Source is the Ecto Source: it owns the lock-field semantics for one
// queue against one existing table, translating Reserve/Ack/Nack/
// Cancel/Status/Filter into the SQL a Dialect parameterizes.
type Source struct {
	db           *bun.DB
	dialect      dialect.Dialect
	schema       Schema
	staleTimeout time.Duration
	taskFunc     TaskFunc
	log          *slog.Logger
}

// Option customizes a Source built by New.
type Option func(*Source)

// WithTaskFunc overrides DefaultTaskFunc.
func WithTaskFunc(fn TaskFunc) Option {
	return func(s *Source) { s.taskFunc = fn }
}

// WithLogger attaches a logger; New defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Source) { s.log = log }
}

// New builds a Source. db must already be configured with the dialect's
// matching bun dialect (pgdialect for both Postgres and CockroachDB).
// staleTimeout is the reservation deadline Reserve assigns: a row
// claimed by a worker that dies before acking becomes eligible for the
// reset-stale sweep once staleTimeout has elapsed.
func New(db *bun.DB, d dialect.Dialect, schema Schema, staleTimeout time.Duration, opts ...Option) *Source {
	s := &Source{
		db:           db,
		dialect:      d,
		schema:       schema,
		staleTimeout: staleTimeout,
		taskFunc:     DefaultTaskFunc,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func pkArgs(schema Schema, jb *job.Job) ([]any, error) {
	args := make([]any, len(schema.PrimaryKey))
	for i, name := range schema.PrimaryKey {
		v, ok := jb.Value(name)
		if !ok {
			return nil, fmt.Errorf("sqlsource: job missing primary key column %q", name)
		}
		args[i] = v
	}
	return args, nil
}

// Reserve implements ectopq.Source. A connection or query error is
// logged and reported as "no candidate" rather than propagated, since a
// transient failure here should not stop the Loop's poll cycle;
// CockroachDB serialization conflicts are retried internally instead.
func (s *Source) Reserve(ctx context.Context) (*job.Job, bool, error) {
	query := reserveSQL(s.schema, s.dialect)
	now := time.Now()
	rw := locksm.ReadyWatermark(now)
	newLock := locksm.InProgressLock(now, s.staleTimeout)

	for {
		row := make(map[string]any)
		err := s.db.NewRaw(query, rw, newLock).Scan(ctx, &row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, false, nil
			}
			if s.dialect.Retryable(err) {
				continue
			}
			s.log.Error("reserve failed", "queue", s.schema.Table, "err", err)
			return nil, false, nil
		}
		jb, err := s.jobFromRow(row)
		if err != nil {
			return nil, false, err
		}
		return jb, true, nil
	}
}

func (s *Source) jobFromRow(row map[string]any) (*job.Job, error) {
	pk := make([]job.PKValue, len(s.schema.PrimaryKey))
	for i, name := range s.schema.PrimaryKey {
		v, ok := row[name]
		if !ok {
			return nil, fmt.Errorf("sqlsource: reserve result missing column %q", name)
		}
		pk[i] = job.PKValue{Name: name, Value: v}
	}

	var private []byte
	if v, ok := row[s.schema.Private]; ok && v != nil {
		if b, ok := v.([]byte); ok {
			private = b
		}
	}

	t, err := s.taskFunc(pk)
	if err != nil {
		return nil, fmt.Errorf("sqlsource: building task: %w", err)
	}

	return &job.Job{
		Queue:          s.schema.Table,
		Task:           t,
		Private:        pk,
		FailurePrivate: private,
	}, nil
}

// Ack implements ectopq.Source. If jb.CompletedAt is nil the row is
// abandoned (lock=-1); otherwise it is finished (lock=NULL).
func (s *Source) Ack(ctx context.Context, jb *job.Job) error {
	pk, err := pkArgs(s.schema, jb)
	if err != nil {
		return err
	}
	var lockArg any
	if jb.CompletedAt == nil {
		lockArg = locksm.Abandoned
	}
	args := append([]any{lockArg}, pk...)
	res, err := s.db.NewRaw(ackSQL(s.schema), args...).Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlsource: ack: %w", err)
	}
	if !affected(res) {
		return fmt.Errorf("sqlsource: ack: %w", ectopq.ErrJobLost)
	}
	return nil
}

// Nack implements ectopq.Source: it reschedules jb for a future attempt
// after delay and persists jb.FailurePrivate. Exactly one row must be
// affected; anything else means the row was lost out from under the
// job.
func (s *Source) Nack(ctx context.Context, jb *job.Job, delay time.Duration) error {
	pk, err := pkArgs(s.schema, jb)
	if err != nil {
		return err
	}
	lock := locksm.DelayedLock(time.Now(), delay)
	args := append([]any{lock, jb.FailurePrivate}, pk...)
	res, err := s.db.NewRaw(delayReadySQL(s.schema), args...).Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlsource: nack: %w", err)
	}
	if !affected(res) {
		return fmt.Errorf("sqlsource: nack: %w", ectopq.ErrJobLost)
	}
	return nil
}

// Cancel implements ectopq.Source. It runs the conditional UPDATE and,
// on a miss, a follow-up read to distinguish "not found" from
// "in-progress", inside one transaction so the classification reflects
// a consistent snapshot. Cancel does not need Reserve's single-round-trip
// atomicity: a caller racing Cancel against a Reserve on the same row
// only needs a well-defined, not necessarily maximally-fresh, answer.
func (s *Source) Cancel(ctx context.Context, pk []job.PKValue) (ectopq.CancelOutcome, error) {
	args, err := pkValueArgs(s.schema, pk)
	if err != nil {
		return ectopq.CancelNotFound, err
	}

	var outcome ectopq.CancelOutcome
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()
		rw := locksm.ReadyWatermark(now)
		sb := locksm.StaleBoundary(now)
		updateArgs := append([]any{rw, rw, sb, sb, now.UnixMilli()}, args...)
		res, err := tx.NewRaw(cancelUpdateSQL(s.schema), updateArgs...).Exec(ctx)
		if err != nil {
			return err
		}
		if affected(res) {
			outcome = ectopq.CancelOK
			return nil
		}

		var lock sql.NullInt64
		err = tx.NewRaw(lockValueSQL(s.schema), args...).Scan(ctx, &lock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				outcome = ectopq.CancelNotFound
				return nil
			}
			return err
		}
		if !lock.Valid || lock.Int64 == locksm.Abandoned {
			outcome = ectopq.CancelNotFound
			return nil
		}
		now = time.Now()
		if locksm.State(&lock.Int64, now) == job.InProgress {
			outcome = ectopq.CancelInProgress
		} else {
			outcome = ectopq.CancelNotFound
		}
		return nil
	})
	if err != nil {
		return ectopq.CancelNotFound, fmt.Errorf("sqlsource: cancel: %w", err)
	}
	return outcome, nil
}

func pkValueArgs(schema Schema, pk []job.PKValue) ([]any, error) {
	args := make([]any, len(schema.PrimaryKey))
	for i, name := range schema.PrimaryKey {
		found := false
		for _, v := range pk {
			if v.Name == name {
				args[i] = v.Value
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("sqlsource: missing primary key component %q", name)
		}
	}
	return args, nil
}

// Status implements ectopq.Source.
func (s *Source) Status(ctx context.Context) (ectopq.StatusCounts, error) {
	now := time.Now()
	rw := locksm.ReadyWatermark(now)
	sb := locksm.StaleBoundary(now)
	nowMillis := now.UnixMilli()

	var counts ectopq.StatusCounts
	err := s.db.NewRaw(statusSQL(s.schema), rw, rw, sb, sb, nowMillis, nowMillis).Scan(ctx, &counts)
	if err != nil {
		return ectopq.StatusCounts{}, fmt.Errorf("sqlsource: status: %w", err)
	}
	return counts, nil
}

// Filter implements ectopq.Source. Only ectopq.SelectAbandoned is
// currently recognized.
func (s *Source) Filter(ctx context.Context, selector ectopq.Selector) ([]*job.Job, error) {
	if selector != ectopq.SelectAbandoned {
		return nil, fmt.Errorf("sqlsource: unsupported selector %v", selector)
	}
	var rows []map[string]any
	if err := s.db.NewRaw(filterAbandonedSQL(s.schema)).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("sqlsource: filter: %w", err)
	}
	jobs := make([]*job.Job, 0, len(rows))
	for _, row := range rows {
		pk := make([]job.PKValue, len(s.schema.PrimaryKey))
		for i, name := range s.schema.PrimaryKey {
			pk[i] = job.PKValue{Name: name, Value: row[name]}
		}
		jobs = append(jobs, &job.Job{Queue: s.schema.Table, Private: pk})
	}
	return jobs, nil
}

// ResetStale restores every row in the stale range back to ready,
// clearing its private blob. It is driven periodically by
// StartResetStale, is idempotent, and returns the number of rows
// restored.
func (s *Source) ResetStale(ctx context.Context) (int64, error) {
	now := time.Now()
	rw := locksm.ReadyWatermark(now)
	sb := locksm.StaleBoundary(now)
	res, err := s.db.NewRaw(resetStaleSQL(s.schema), rw, sb, now.UnixMilli()).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlsource: reset_stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	if err != nil {
		return true
	}
	return n != 0
}
