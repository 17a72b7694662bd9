package failuremode

import (
	"context"
	"time"

	"github.com/ectopq/ectopq/job"
	"github.com/ectopq/ectopq/task"
)

// Acker is the subset of Source a failure mode needs to finalize or
// reschedule the job it was invoked for.
type Acker interface {
	Ack(ctx context.Context, jb *job.Job) error
	Nack(ctx context.Context, jb *job.Job, delay time.Duration) error
}

// Enqueuer pushes a task onto a named queue, whatever backend that queue
// uses. It is only required by the Move failure mode.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, t task.Task) (*job.Job, error)
}

// Notifier delivers a job's Result to its reply address, if one was set
// when the job was enqueued. Implementations with no pending waiter may
// no-op.
type Notifier interface {
	Notify(jb *job.Job, result job.Result)
}

// FailureMode is a capability object invoked by the Job Pipeline's
// monitor when a worker's task execution returns an error.
type FailureMode interface {
	// ValidateArgs is called once at queue construction and should
	// reject malformed configuration before any job is ever processed.
	ValidateArgs() error

	// HandleFailure is called by the monitor for a job whose task raised
	// reason. Implementations decide the job's fate by calling acker,
	// optionally enqueuer, and notifier.
	HandleFailure(ctx context.Context, jb *job.Job, reason error, acker Acker, enqueuer Enqueuer, notifier Notifier) error
}
