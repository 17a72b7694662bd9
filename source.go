package ectopq

import (
	"context"
	"time"

	"github.com/ectopq/ectopq/job"
)

// Selector picks which rows Source.Filter returns.
type Selector uint8

const (
	// SelectAbandoned returns placeholder Jobs identifying abandoned rows.
	SelectAbandoned Selector = iota
)

// StatusCounts is the one-row summary returned by Source.Status.
//
// Ready+Delayed+Stale+InProgress+Abandoned <= Total. All counts come from
// one snapshot; a row counts toward Total but toward no state only when
// its lock value lies outside every range (a negative value other than
// -1).
type StatusCounts struct {
	Total      int64
	Abandoned  int64
	Ready      int64
	Delayed    int64
	Stale      int64
	InProgress int64
}

// CancelOutcome is the result of Source.Cancel, distinguishing a
// successful cancellation from the two reasons it can fail.
type CancelOutcome uint8

const (
	// CancelOK means the row was Ready, Delayed or Stale and is now
	// Finished.
	CancelOK CancelOutcome = iota
	// CancelInProgress means the row was held by a worker; its lock was
	// left untouched.
	CancelInProgress
	// CancelNotFound means no row matched the given primary key, or it
	// was already Finished/Abandoned.
	CancelNotFound
)

// Source is the generic poll-source contract the queue's Loop drives.
// sqlsource.Source is the Ecto Poll Queue implementation; memqueue.Source
// is the in-memory one.
//
// Implementations must hand a given row to at most one caller across all
// nodes at a time, and must never let a Ready row go unreserved forever
// because of a concurrent peer's in-flight attempt.
type Source interface {
	// Reserve atomically claims one ready row, if any are eligible.
	// ok is false (with a nil Job and nil error) when no row qualifies.
	Reserve(ctx context.Context) (jb *job.Job, ok bool, err error)

	// Ack declares a reserved job done. If jb.CompletedAt is nil, the row
	// is abandoned (terminal failure); otherwise it is finished normally.
	Ack(ctx context.Context, jb *job.Job) error

	// Nack reschedules a reserved job for a future attempt after delay,
	// persisting jb.FailurePrivate alongside the new schedule.
	Nack(ctx context.Context, jb *job.Job, delay time.Duration) error

	// Cancel finishes a Ready, Delayed or Stale row identified by pk. It never
	// blocks waiting on a worker and never disturbs an InProgress row.
	Cancel(ctx context.Context, pk []job.PKValue) (CancelOutcome, error)

	// Status summarizes the current distribution of row states.
	Status(ctx context.Context) (StatusCounts, error)

	// Filter returns placeholder Jobs matching selector.
	Filter(ctx context.Context, selector Selector) ([]*job.Job, error)
}
