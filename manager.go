package ectopq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ectopq/ectopq/failuremode"
	"github.com/ectopq/ectopq/job"
	"github.com/ectopq/ectopq/task"
)

var (
	// ErrUnknownQueue is returned by any Manager operation naming a queue
	// that was never Registered.
	ErrUnknownQueue = errors.New("ectopq: unknown queue")

	// ErrQueueExists is returned by Register when name is already taken.
	ErrQueueExists = errors.New("ectopq: queue already registered")

	// ErrNotEnqueuable is returned when Enqueue, Async, or Move targets a
	// queue whose Source has no generic "insert a task" operation.
	// sqlsource.Source is the canonical example: its rows are the
	// application's own business rows, inserted through the
	// application's own data-access code, never through this API.
	ErrNotEnqueuable = errors.New("ectopq: queue's source does not support enqueue")

	// ErrNoReply is returned by Yield for a Job that was not enqueued
	// with a reply requested.
	ErrNoReply = errors.New("ectopq: job was not enqueued with a reply request")

	// ErrWrongCaller is returned by Yield when callerID does not match
	// the caller that enqueued the job.
	ErrWrongCaller = errors.New("ectopq: yield called by a different caller than enqueued")
)

// Enqueuable is implemented by a Source capable of inserting a new row
// on demand, as opposed to only ever observing rows the application
// inserted itself. memqueue.Source is one; sqlsource.Source deliberately
// is not, since rows enter the Ecto Poll Queue only through the
// application's own inserts.
type Enqueuable interface {
	Enqueue(ctx context.Context, t task.Task, delay time.Duration) (*job.Job, error)
}

type registration struct {
	loop   *Loop
	source Source
}

// QueueConfig bundles the per-queue collaborators Register wires into a
// Pipeline and Loop.
type QueueConfig struct {
	Registry    task.Registry
	FailureMode failuremode.FailureMode
	SuccessMode SuccessMode
	Loop        Config
	Log         *slog.Logger
}

// Manager is the explicit, queue-name-keyed membership registry
// applications use instead of any kind of global process discovery: the
// external Queue API for enqueue/async/yield/suspend/resume/status/
// filter/cancel/move.
//
// Manager owns one reply registry shared by every queue it registers, so
// that a reply requested through Async and retrieved through Yield works
// the same way regardless of which queue it came from.
type Manager struct {
	mu      sync.RWMutex
	queues  map[string]*registration
	replies *replyRegistry
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		queues:  make(map[string]*registration),
		replies: newReplyRegistry(),
	}
}

// Register validates cfg.FailureMode (Abandon when nil), builds the
// queue's Pipeline and Loop, and adds it to the registry under name. It
// returns the Loop so the caller controls when to Start it. Register
// does not start the Loop itself.
func (m *Manager) Register(name string, source Source, cfg QueueConfig) (*Loop, error) {
	if cfg.FailureMode == nil {
		cfg.FailureMode = failuremode.NewAbandon()
	}
	if err := cfg.FailureMode.ValidateArgs(); err != nil {
		return nil, fmt.Errorf("ectopq: invalid failure mode config: %w", err)
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.queues[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrQueueExists, name)
	}

	pipeline := NewPipeline(cfg.Registry, source, cfg.FailureMode, cfg.SuccessMode, m, m.replies, log)
	loop := NewLoop(source, pipeline, &cfg.Loop, log)
	m.queues[name] = &registration{loop: loop, source: source}
	return loop, nil
}

func (m *Manager) lookup(name string) (*registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	return reg, nil
}

// Enqueue implements failuremode.Enqueuer for the Move failure mode, and
// is also the plain enqueue entry point for any Enqueuable-backed queue.
func (m *Manager) Enqueue(ctx context.Context, queue string, t task.Task) (*job.Job, error) {
	return m.enqueue(ctx, queue, t, 0, "", false)
}

// AsyncOptions configures Async. Reply requests that the Job's Result
// be retrievable via Yield; CallerID is the identity Yield must be
// called with to retrieve it. Delay schedules the task for a future
// attempt rather than immediate reservation.
type AsyncOptions struct {
	Reply    bool
	CallerID string
	Delay    time.Duration
}

// Async enqueues t onto queue, optionally scheduling a delayed first
// attempt or requesting a reply retrievable later through Yield.
func (m *Manager) Async(ctx context.Context, queue string, t task.Task, opts AsyncOptions) (*job.Job, error) {
	return m.enqueue(ctx, queue, t, opts.Delay, opts.CallerID, opts.Reply)
}

func (m *Manager) enqueue(ctx context.Context, queue string, t task.Task, delay time.Duration, callerID string, reply bool) (*job.Job, error) {
	reg, err := m.lookup(queue)
	if err != nil {
		return nil, err
	}
	enq, ok := reg.source.(Enqueuable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotEnqueuable, queue)
	}
	jb, err := enq.Enqueue(ctx, t, delay)
	if err != nil {
		return nil, err
	}
	if reply {
		from := &job.ReplyAddress{CallerID: callerID, RequestID: uuid.NewString()}
		jb.From = from
		m.replies.register(from.RequestID)
	}
	return jb, nil
}

// Yield blocks up to timeout for jb's Result. It returns ErrNoReply if
// jb was not enqueued with a reply requested, and ErrWrongCaller if
// callerID does not match the caller that enqueued jb. A nil, nil
// return means the timeout elapsed with no result delivered; jb is
// left undisturbed.
func (m *Manager) Yield(ctx context.Context, jb *job.Job, callerID string, timeout time.Duration) (*job.Result, error) {
	if jb.From == nil {
		return nil, ErrNoReply
	}
	if jb.From.CallerID != callerID {
		return nil, ErrWrongCaller
	}
	res, ok := m.replies.wait(ctx, jb.From.RequestID, timeout)
	if !ok {
		return nil, nil
	}
	return &res, nil
}

// Suspend stops queue's Loop from scheduling new polls.
func (m *Manager) Suspend(queue string) error {
	reg, err := m.lookup(queue)
	if err != nil {
		return err
	}
	reg.loop.Suspend()
	return nil
}

// Resume reverses a prior Suspend on queue.
func (m *Manager) Resume(queue string) error {
	reg, err := m.lookup(queue)
	if err != nil {
		return err
	}
	reg.loop.Resume()
	return nil
}

// Status returns queue's current state distribution.
func (m *Manager) Status(ctx context.Context, queue string) (StatusCounts, error) {
	reg, err := m.lookup(queue)
	if err != nil {
		return StatusCounts{}, err
	}
	return reg.source.Status(ctx)
}

// Filter returns placeholder Jobs from queue matching selector.
func (m *Manager) Filter(ctx context.Context, queue string, selector Selector) ([]*job.Job, error) {
	reg, err := m.lookup(queue)
	if err != nil {
		return nil, err
	}
	return reg.source.Filter(ctx, selector)
}

// Cancel finishes a Ready, Delayed or Stale row on queue, identified by pk. It
// never blocks on a running worker.
func (m *Manager) Cancel(ctx context.Context, queue string, pk []job.PKValue) (CancelOutcome, error) {
	reg, err := m.lookup(queue)
	if err != nil {
		return CancelNotFound, err
	}
	return reg.source.Cancel(ctx, pk)
}

// Move cancels jb on queue and enqueues its task onto toQueue. Unlike
// the Move failure mode (which reacts to a handler error), Move is a
// caller-initiated reroute of a job that has not failed, so it refuses
// to move anything currently in progress.
func (m *Manager) Move(ctx context.Context, queue string, jb *job.Job, toQueue string) (*job.Job, error) {
	reg, err := m.lookup(queue)
	if err != nil {
		return nil, err
	}
	outcome, err := reg.source.Cancel(ctx, jb.Private)
	if err != nil {
		return nil, err
	}
	if outcome != CancelOK {
		return nil, fmt.Errorf("ectopq: move: job on %q is not cancellable (%v)", queue, outcome)
	}
	return m.enqueue(ctx, toQueue, jb.Task, 0, "", false)
}
