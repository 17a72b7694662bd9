package failuremode

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ectopq/ectopq/job"
)

// retryState is the JSON shape Retry persists in a job's FailurePrivate
// blob between attempts. It round-trips through whatever byte-exact
// codec the storage backend uses for the private column.
type retryState struct {
	Attempts uint32 `json:"attempts"`
}

// Retry reschedules a failed job up to Times attempts before delegating
// to a fallback failure mode (Abandon, by default).
//
// The attempt counter lives in the job's FailurePrivate blob rather than
// any storage-specific column, so Retry works identically across
// backends.
type Retry struct {
	Times    uint32
	backoff  backoffCounter
	fallback FailureMode
}

// NewRetry returns a Retry failure mode that reschedules up to times
// attempts using the given backoff policy, falling through to Abandon
// once the limit is exceeded.
func NewRetry(times uint32, backoff BackoffConfig) *Retry {
	return &Retry{
		Times:    times,
		backoff:  backoffCounter{backoff},
		fallback: NewAbandon(),
	}
}

// WithFallback overrides the failure mode used once Times is exceeded.
func (r *Retry) WithFallback(fallback FailureMode) *Retry {
	r.fallback = fallback
	return r
}

// ValidateArgs rejects a Retry configured with no retries to attempt.
func (r *Retry) ValidateArgs() error {
	if r.Times == 0 {
		return errors.New("failuremode: retry times must be > 0")
	}
	if r.backoff.InitialInterval <= 0 {
		return errors.New("failuremode: retry initial interval must be > 0")
	}
	return nil
}

// HandleFailure increments the attempt counter stored in
// jb.FailurePrivate; if it is still within Times, it nacks jb with the
// next backoff delay, otherwise it delegates to the fallback mode.
func (r *Retry) HandleFailure(ctx context.Context, jb *job.Job, reason error, acker Acker, enqueuer Enqueuer, notifier Notifier) error {
	var state retryState
	if len(jb.FailurePrivate) > 0 {
		// A corrupt or foreign blob is treated as "no attempts yet"
		// rather than failing the job outright.
		_ = json.Unmarshal(jb.FailurePrivate, &state)
	}
	state.Attempts++

	if state.Attempts > r.Times {
		return r.fallback.HandleFailure(ctx, jb, reason, acker, enqueuer, notifier)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	jb.FailurePrivate = data
	return acker.Nack(ctx, jb, r.backoff.next(state.Attempts))
}
