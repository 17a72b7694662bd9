package failuremode

import (
	"context"
	"errors"

	"github.com/ectopq/ectopq/job"
)

// Move finalizes the original job as abandoned, then re-enqueues a copy
// of its task on another queue, whatever backend that queue uses.
type Move struct {
	Queue string
}

// NewMove returns a Move failure mode targeting the given destination
// queue name.
func NewMove(queue string) *Move {
	return &Move{Queue: queue}
}

// ValidateArgs rejects a Move with no destination queue.
func (m *Move) ValidateArgs() error {
	if m.Queue == "" {
		return errors.New("failuremode: move requires a destination queue")
	}
	return nil
}

// HandleFailure acks the original job as abandoned, enqueues its task on
// m.Queue, and notifies jb.From that the job moved.
func (m *Move) HandleFailure(ctx context.Context, jb *job.Job, reason error, acker Acker, enqueuer Enqueuer, notifier Notifier) error {
	if enqueuer == nil {
		return errors.New("failuremode: move configured without an enqueuer")
	}

	jb.CompletedAt = nil
	if err := acker.Ack(ctx, jb); err != nil {
		return err
	}

	if _, err := enqueuer.Enqueue(ctx, m.Queue, jb.Task); err != nil {
		if notifier != nil {
			notifier.Notify(jb, job.Result{Err: reason})
		}
		return err
	}

	if notifier != nil {
		notifier.Notify(jb, job.Result{Moved: true, Err: reason})
	}
	return nil
}
