package memqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ectopq/ectopq"
	"github.com/ectopq/ectopq/internal/locksm"
	"github.com/ectopq/ectopq/job"
	"github.com/ectopq/ectopq/task"
)

type record struct {
	id             uint64
	task           task.Task
	lock           *int64
	failurePrivate []byte
}

// Source is an in-memory implementation of ectopq.Source and of
// failuremode.Enqueuer's Enqueuable counterpart, keyed by a synthetic,
// monotonically increasing row id.
//
// Source is safe for concurrent use.
type Source struct {
	name         string
	staleTimeout time.Duration

	mu   sync.Mutex
	seq  uint64
	rows map[uint64]*record
}

// New returns an empty in-memory Source for the named queue.
// staleTimeout is the deadline Reserve assigns a reservation: now plus
// staleTimeout, after which an unacked row is eligible for the
// reset-stale sweep.
func New(name string, staleTimeout time.Duration) *Source {
	return &Source{
		name:         name,
		staleTimeout: staleTimeout,
		rows:         make(map[uint64]*record),
	}
}

func (s *Source) snapshot(r *record) *job.Job {
	return &job.Job{
		Queue:          s.name,
		Task:           r.task,
		Private:        []job.PKValue{{Name: "id", Value: r.id}},
		FailurePrivate: append([]byte(nil), r.failurePrivate...),
	}
}

func (s *Source) idOf(jb *job.Job) (uint64, error) {
	v, ok := jb.Value("id")
	if !ok {
		return 0, errors.New("memqueue: job carries no id")
	}
	id, ok := v.(uint64)
	if !ok {
		return 0, fmt.Errorf("memqueue: unexpected id type %T", v)
	}
	return id, nil
}

// Enqueue inserts t as a new row, ready immediately or after delay.
func (s *Source) Enqueue(_ context.Context, t task.Task, delay time.Duration) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := time.Now()
	lock := locksm.DefaultLock(now)
	if delay > 0 {
		lock = locksm.DelayedLock(now, delay)
	}
	r := &record{id: s.seq, task: t, lock: &lock}
	s.rows[r.id] = r
	return s.snapshot(r), nil
}

// Reserve implements ectopq.Source.
func (s *Source) Reserve(_ context.Context) (*job.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()

	var best *record
	for _, r := range s.rows {
		if locksm.State(r.lock, now) != job.Ready {
			continue
		}
		if best == nil || *r.lock < *best.lock || (*r.lock == *best.lock && r.id < best.id) {
			best = r
		}
	}
	if best == nil {
		return nil, false, nil
	}
	lock := locksm.InProgressLock(now, s.staleTimeout)
	best.lock = &lock
	return s.snapshot(best), true, nil
}

// Ack implements ectopq.Source.
func (s *Source) Ack(_ context.Context, jb *job.Job) error {
	id, err := s.idOf(jb)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("memqueue: row %d not found: %w", id, ectopq.ErrJobLost)
	}
	if jb.CompletedAt == nil {
		abandoned := locksm.Abandoned
		r.lock = &abandoned
	} else {
		r.lock = nil
	}
	r.failurePrivate = nil
	return nil
}

// Nack implements ectopq.Source.
func (s *Source) Nack(_ context.Context, jb *job.Job, delay time.Duration) error {
	id, err := s.idOf(jb)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("memqueue: row %d not found: %w", id, ectopq.ErrJobLost)
	}
	lock := locksm.DelayedLock(time.Now(), delay)
	r.lock = &lock
	r.failurePrivate = jb.FailurePrivate
	return nil
}

// Cancel implements ectopq.Source.
func (s *Source) Cancel(_ context.Context, pk []job.PKValue) (ectopq.CancelOutcome, error) {
	var id uint64
	found := false
	for _, v := range pk {
		if v.Name == "id" {
			if cast, ok := v.Value.(uint64); ok {
				id, found = cast, true
			}
		}
	}
	if !found {
		return ectopq.CancelNotFound, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return ectopq.CancelNotFound, nil
	}
	state := locksm.State(r.lock, time.Now())
	if state == job.Finished || state == job.Abandoned {
		return ectopq.CancelNotFound, nil
	}
	if !locksm.Cancellable(state) {
		return ectopq.CancelInProgress, nil
	}
	r.lock = nil
	return ectopq.CancelOK, nil
}

// Status implements ectopq.Source.
func (s *Source) Status(_ context.Context) (ectopq.StatusCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var counts ectopq.StatusCounts
	for _, r := range s.rows {
		switch locksm.State(r.lock, now) {
		case job.Finished:
			continue
		case job.Abandoned:
			counts.Abandoned++
		case job.Ready:
			counts.Ready++
		case job.Delayed:
			counts.Delayed++
		case job.Stale:
			counts.Stale++
		case job.InProgress:
			counts.InProgress++
		}
		counts.Total++
	}
	return counts, nil
}

// Filter implements ectopq.Source. Only ectopq.SelectAbandoned is
// recognized.
func (s *Source) Filter(_ context.Context, selector ectopq.Selector) ([]*job.Job, error) {
	if selector != ectopq.SelectAbandoned {
		return nil, fmt.Errorf("memqueue: unsupported selector %v", selector)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ret []*job.Job
	for _, r := range s.rows {
		if locksm.State(r.lock, time.Now()) == job.Abandoned {
			ret = append(ret, s.snapshot(r))
		}
	}
	return ret, nil
}

// ResetStale restores every stale row to ready, exactly as a SQL
// backend's reset_stale sweep would.
func (s *Source) ResetStale(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var n int
	for _, r := range s.rows {
		if locksm.State(r.lock, now) == job.Stale {
			lock := locksm.DefaultLock(now)
			r.lock = &lock
			r.failurePrivate = nil
			n++
		}
	}
	return n, nil
}
