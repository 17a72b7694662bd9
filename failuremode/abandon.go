package failuremode

import (
	"context"

	"github.com/ectopq/ectopq/job"
)

// Abandon finalizes a failed job as a terminal failure: Source.Ack is
// called with CompletedAt left nil, which the Ecto Poll Queue Source
// reads as "abandon" (lock=-1) rather than "finish" (lock=NULL).
//
// Abandon is the default failure mode for a queue with none configured.
type Abandon struct{}

// NewAbandon returns the Abandon failure mode. It takes no arguments.
func NewAbandon() *Abandon {
	return &Abandon{}
}

// ValidateArgs always succeeds: Abandon has no configuration.
func (a *Abandon) ValidateArgs() error {
	return nil
}

// HandleFailure acks jb as abandoned and notifies jb.From of the error,
// if a reply was requested.
func (a *Abandon) HandleFailure(ctx context.Context, jb *job.Job, reason error, acker Acker, _ Enqueuer, notifier Notifier) error {
	jb.CompletedAt = nil
	if err := acker.Ack(ctx, jb); err != nil {
		return err
	}
	if notifier != nil {
		notifier.Notify(jb, job.Result{Err: reason})
	}
	return nil
}
