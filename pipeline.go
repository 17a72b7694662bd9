package ectopq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ectopq/ectopq/failuremode"
	"github.com/ectopq/ectopq/job"
	"github.com/ectopq/ectopq/task"
)

// SuccessMode is invoked by the Pipeline after a job's task completes
// successfully, before the job is acked. A nil SuccessMode means none is
// configured, which is the default.
type SuccessMode interface {
	HandleSuccess(ctx context.Context, jb *job.Job, result any) error
}

// replyRegistry tracks callers waiting on a Job's Result via Yield,
// keyed by the reply address's RequestID.
type replyRegistry struct {
	mu      sync.Mutex
	waiters map[string]chan job.Result
}

func newReplyRegistry() *replyRegistry {
	return &replyRegistry{waiters: make(map[string]chan job.Result)}
}

func (r *replyRegistry) register(requestID string) chan job.Result {
	ch := make(chan job.Result, 1)
	r.mu.Lock()
	r.waiters[requestID] = ch
	r.mu.Unlock()
	return ch
}

func (r *replyRegistry) forget(requestID string) {
	r.mu.Lock()
	delete(r.waiters, requestID)
	r.mu.Unlock()
}

// deliver sends result to jb's reply address, if any. A second delivery
// for the same request is possible and intentional under at-least-once
// processing; if the channel's single slot is already occupied, the
// extra delivery is dropped rather than blocking the pipeline.
func (r *replyRegistry) deliver(jb *job.Job, result job.Result) {
	if jb.From == nil {
		return
	}
	r.mu.Lock()
	ch, ok := r.waiters[jb.From.RequestID]
	r.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- result:
	default:
	}
}

// Notify implements failuremode.Notifier.
func (r *replyRegistry) Notify(jb *job.Job, result job.Result) {
	r.deliver(jb, result)
}

// wait blocks for the result registered under requestID, up to timeout
// or ctx's cancellation, forgetting the waiter regardless of how it
// returns. ok is false on timeout or cancellation, or if requestID was
// never registered.
func (r *replyRegistry) wait(ctx context.Context, requestID string, timeout time.Duration) (job.Result, bool) {
	r.mu.Lock()
	ch, ok := r.waiters[requestID]
	r.mu.Unlock()
	if !ok {
		return job.Result{}, false
	}
	defer r.forget(requestID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res, true
	case <-timer.C:
		return job.Result{}, false
	case <-ctx.Done():
		return job.Result{}, false
	}
}

// sourceAcker adapts a Source to failuremode.Acker.
type sourceAcker struct {
	source Source
}

func (a sourceAcker) Ack(ctx context.Context, jb *job.Job) error {
	return a.source.Ack(ctx, jb)
}

func (a sourceAcker) Nack(ctx context.Context, jb *job.Job, delay time.Duration) error {
	return a.source.Nack(ctx, jb, delay)
}

// Pipeline represents a job once reserved, runs its task through a
// registered Handler, and routes the outcome to ack, nack, or the
// configured failure mode.
//
// Pipeline never lets a handler panic escape: a panic is recovered and
// treated exactly like a returned error, routed through the failure mode
// just as any other failure would be. A true worker crash (process
// death) never reaches the pipeline at all; recovery for that case is
// the Source's reset-stale sweep.
type Pipeline struct {
	registry    task.Registry
	source      Source
	failureMode failuremode.FailureMode
	successMode SuccessMode
	enqueuer    failuremode.Enqueuer
	replies     *replyRegistry
	log         *slog.Logger
}

// NewPipeline builds a Pipeline. failureMode must not be nil; successMode
// and enqueuer may be nil if unused (enqueuer is only required when
// failureMode is, or delegates to, a Move).
func NewPipeline(registry task.Registry, source Source, failureMode failuremode.FailureMode, successMode SuccessMode, enqueuer failuremode.Enqueuer, replies *replyRegistry, log *slog.Logger) *Pipeline {
	return &Pipeline{
		registry:    registry,
		source:      source,
		failureMode: failureMode,
		successMode: successMode,
		enqueuer:    enqueuer,
		replies:     replies,
		log:         log,
	}
}

func (p *Pipeline) execute(ctx context.Context, jb *job.Job) (result any, err error) {
	handler, ok := p.registry.Lookup(jb.Task.Name)
	if !ok {
		return nil, fmt.Errorf("ectopq: no handler registered for task %q", jb.Task.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task handler panicked", "task", jb.Task.Name, "panic", r)
			err = fmt.Errorf("ectopq: handler panic: %v", r)
		}
	}()
	return handler(ctx, jb.Task)
}

func (p *Pipeline) succeed(ctx context.Context, jb *job.Job, result any) {
	if p.successMode != nil {
		if err := p.successMode.HandleSuccess(ctx, jb, result); err != nil {
			p.log.Error("success mode failed", "task", jb.Task.Name, "err", err)
		}
	}
	now := time.Now()
	jb.CompletedAt = &now
	if err := p.source.Ack(ctx, jb); err != nil {
		p.log.Error("cannot ack completed job", "task", jb.Task.Name, "err", err)
		return
	}
	p.replies.deliver(jb, job.Result{Value: result})
}

func (p *Pipeline) fail(ctx context.Context, jb *job.Job, reason error) {
	acker := sourceAcker{p.source}
	if err := p.failureMode.HandleFailure(ctx, jb, reason, acker, p.enqueuer, p.replies); err != nil {
		p.log.Error("failure mode failed", "task", jb.Task.Name, "err", err)
	}
}

// run executes jb's task and routes the outcome. It is the Pipeline's
// entry point, called once per job handed to it by a Loop's worker pool.
func (p *Pipeline) run(ctx context.Context, jb *job.Job) {
	result, err := p.execute(ctx, jb)
	if err != nil {
		p.fail(ctx, jb, err)
		return
	}
	p.succeed(ctx, jb, result)
}
