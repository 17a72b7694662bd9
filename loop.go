package ectopq

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ectopq/ectopq/internal"
	"github.com/ectopq/ectopq/job"
)

// Config configures a Loop.
//
// Concurrency is the number of concurrent task handlers. Queue is the
// buffering capacity between reservation and dispatch: once full, the
// Loop's poll cycle blocks until a worker frees up, so a Loop with no
// idle worker simply waits before polling again rather than piling up
// reserved work it cannot run. PollInterval is how often the Loop
// attempts Reserve when idle. Suspended starts the Loop in the
// suspended state.
type Config struct {
	Concurrency  int
	Queue        int
	PollInterval time.Duration
	Suspended    bool
}

// Loop is the generic poll-driven queue loop: it schedules reservation
// attempts against a Source, hands reserved jobs to the pipeline's
// worker pool, and honors Suspend/Resume.
//
// Within a single Loop, reservations are strictly serial; concurrency
// across nodes is provided by running multiple Loops against the same
// backing store, relying on Source.Reserve's atomicity rather than any
// single-process ownership.
type Loop struct {
	lcBase
	source    Source
	pool      *internal.WorkerPool[*job.Job]
	pipeline  *Pipeline
	log       *slog.Logger
	interval  time.Duration
	suspended atomic.Bool
	wake      chan struct{}
	done      internal.DoneChan
	cancel    context.CancelFunc
}

// NewLoop builds a Loop that drives source and dispatches reserved jobs
// to pipeline.
func NewLoop(source Source, pipeline *Pipeline, cfg *Config, log *slog.Logger) *Loop {
	l := &Loop{
		source:   source,
		pool:     internal.NewWorkerPool[*job.Job](cfg.Concurrency, cfg.Queue, log),
		pipeline: pipeline,
		log:      log,
		interval: cfg.PollInterval,
	}
	l.suspended.Store(cfg.Suspended)
	return l
}

func (l *Loop) handle(ctx context.Context, jb *job.Job) {
	l.pipeline.run(ctx, jb)
}

// pollOnce attempts one Reserve. It returns true if no row qualified, so
// the caller can back off until the next scheduled tick.
func (l *Loop) pollOnce(ctx context.Context) bool {
	jb, ok, err := l.source.Reserve(ctx)
	if err != nil {
		l.log.Error("reserve failed", "err", err)
		return true
	}
	if !ok {
		return true
	}
	if !l.pool.Push(jb) {
		l.log.Debug("job push interrupted via shutdown", "task", jb.Task.Name)
	}
	return false
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(0)
		case <-timer.C:
			if l.suspended.Load() {
				continue
			}
			if l.pollOnce(ctx) {
				timer.Reset(l.interval)
			} else {
				timer.Reset(0)
			}
		}
	}
}

// Start begins polling and dispatching jobs. Start returns
// ErrDoubleStarted if the Loop has already been started.
func (l *Loop) Start(ctx context.Context) error {
	if err := l.tryStart(); err != nil {
		return err
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.wake = make(chan struct{}, 1)
	l.done = make(internal.DoneChan)
	l.pool.Start(ctx, l.handle)
	go l.run(ctx)
	return nil
}

func (l *Loop) doStop() internal.DoneChan {
	l.cancel()
	return internal.Combine(l.done, l.pool.Stop())
}

// Stop initiates graceful shutdown: it stops scheduling polls, cancels
// the worker pool, and waits for in-flight handlers to finish, up to
// timeout. Stop returns ErrDoubleStopped if the Loop is not running.
func (l *Loop) Stop(timeout time.Duration) error {
	return l.tryStop(timeout, l.doStop)
}

// Suspend stops scheduling new polls. Buffered or in-flight jobs are
// unaffected; Resume reverses this.
func (l *Loop) Suspend() {
	l.suspended.Store(true)
}

// Resume reverses a prior Suspend and immediately wakes the poll loop.
func (l *Loop) Resume() {
	l.suspended.Store(false)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Suspended reports whether the Loop is currently suspended.
func (l *Loop) Suspended() bool {
	return l.suspended.Load()
}
