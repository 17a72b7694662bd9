// Package failuremode implements the pluggable strategies invoked by the
// Job Pipeline when a reserved job's task execution raises.
//
// Three built-ins are provided:
//
//	Abandon — finalize the job (Source.Ack with CompletedAt left nil).
//	Retry   — nack with a computed backoff until a retry limit is hit,
//	          then fall through to Abandon.
//	Move    — finalize the original job and enqueue a copy on another
//	          queue, notifying the caller that the job moved.
//
// All three are safe to invoke more than once for the same job: the
// pipeline may redeliver a failure outcome under at-least-once
// processing.
package failuremode
