package job

import (
	"time"

	"github.com/ectopq/ectopq/task"
)

// PKValue is one (field, value) pair of a row's primary key.
//
// Primary keys are treated opaquely by the queue core: values pass
// through the storage backend's own marshaling so that UUIDs, integers,
// or composite keys round-trip exactly. Name is the column/field name;
// Value is whatever the backend's driver returned or expects.
type PKValue struct {
	Name  string
	Value any
}

// ReplyAddress identifies the caller that should receive a Job's Result
// once it finishes, set when the caller enqueued with reply requested.
type ReplyAddress struct {
	CallerID  string
	RequestID string
}

// Result is the outcome of executing a Job's task, populated once the
// pipeline has observed success, failure, or a reroute via a Move
// failure mode.
type Result struct {
	Value any
	Err   error
	Moved bool
}

// State is a derived, read-only classification of a row's lock value at
// the moment it was observed. It is never stored directly; Source.Status
// and Source.Filter compute it from the lock column's numeric ranges.
type State uint8

const (
	// Unknown is the zero value, used for unrecognized or unfiltered state.
	Unknown State = iota
	// Finished means the row's lock column is NULL: it is not (or is no
	// longer) a job.
	Finished
	// Abandoned means the row's lock column is -1: terminal failure,
	// never reserved again.
	Abandoned
	// Ready means the row is eligible for reservation.
	Ready
	// Delayed means the row is scheduled for a future retry.
	Delayed
	// Stale means a worker reserved the row but has since died; the next
	// reset-stale sweep will restore it to Ready.
	Stale
	// InProgress means a worker currently holds the row.
	InProgress
)

func (s State) String() string {
	switch s {
	case Finished:
		return "finished"
	case Abandoned:
		return "abandoned"
	case Ready:
		return "ready"
	case Delayed:
		return "delayed"
	case Stale:
		return "stale"
	case InProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// Job represents a message managed by a queue's storage, reserved for
// execution by exactly one worker at a time.
//
// Queue names the queue the job was reserved from. Task is the symbolic
// task invocation. Private identifies the backend row the job came from
// (for the Ecto Poll Queue, the row's primary-key columns). FailurePrivate
// is an opaque blob persisted between attempts (for example, a retry
// counter), round-tripped by the backend's codec. From, if set, means the
// caller wants the Result delivered back. Result is populated once the
// job finishes. CompletedAt distinguishes "acked after success" from
// "acked while still pending" (used by Source.Ack to choose abandon vs.
// normal finalize).
type Job struct {
	Queue          string
	Task           task.Task
	Private        []PKValue
	FailurePrivate []byte
	From           *ReplyAddress
	Result         *Result
	CompletedAt    *time.Time
}

// Value looks up a named primary-key component. The second return value
// is false if no such component was recorded on this job.
func (j *Job) Value(name string) (any, bool) {
	for _, pk := range j.Private {
		if pk.Name == name {
			return pk.Value, true
		}
	}
	return nil, false
}

// Clone returns a shallow copy of j suitable for handing to a worker
// without letting it mutate the pipeline's own bookkeeping copy.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Private = append([]PKValue(nil), j.Private...)
	return &cp
}
