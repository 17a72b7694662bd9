// Package ectopq provides an Ecto Poll Queue: a background job queue
// whose state lives entirely in columns on the application's own
// database tables rather than in a dedicated jobs table.
//
// # Overview
//
// ectopq attaches to an existing row through two queue-owned columns —
// a lock column encoding the row's scheduling state, and a private
// column carrying opaque per-attempt data — and layers a poll loop,
// a worker pool, and a set of failure modes on top. The same row stays
// in the application's own table for its whole life; the queue never
// takes ownership of it.
//
// The package does not mandate a storage backend. sqlsource implements
// the Ecto Poll Queue pattern against any database bun can reach
// (PostgreSQL or CockroachDB in practice; the dialect package is the
// seam between the two). memqueue is an in-process, non-durable Source
// for tests and for business rows with no backing table at all.
//
// # Lock Column State Machine
//
// A row's lock column encodes its schedule, not just a flag:
//
//	NULL                               -> Finished (not a job, or done)
//	-1                                 -> Abandoned (terminal failure)
//	[0, ready watermark]               -> Ready
//	(ready watermark, stale boundary)  -> Delayed (scheduled retry)
//	[stale boundary, now)              -> Stale (reserved by a worker that has since died)
//	[now, now+stale timeout]           -> InProgress
//
// internal/locksm packs all six states into that single integer column
// so Reserve, Status, and Filter can classify a row with one comparison
// against the current time, without a separate status column that could
// drift out of sync with the lock value.
//
// # Reservation
//
// Reserve claims exactly one Ready row and marks it InProgress, using
// the database's own concurrency control (row locking on PostgreSQL,
// serializable retry on CockroachDB) as the only coordination
// mechanism. No node-local or distributed lock manager is involved:
// every node racing for the same row goes through the same SQL
// statement against the same table.
//
// # Job Pipeline and Failure Modes
//
// A reserved Job is handed to a Pipeline, which looks up its task's
// registered handler, runs it, and routes the outcome:
//
//	success -> SuccessMode (optional) then Ack
//	error   -> the queue's configured FailureMode
//
// failuremode provides Abandon (give up immediately), Retry (reschedule
// with backoff up to a limit, then abandon), and Move (reroute to a
// different queue instead of retrying in place).
//
// # Loop and Concurrency
//
// Loop is the generic poll-driven scheduler: it polls a Source on an
// interval, and backs off when idle or when its
// worker pool is full. Concurrency within a process comes from the
// worker pool's fixed size; concurrency across processes comes from
// running multiple Loops against the same backing store and trusting
// Source.Reserve's atomicity, not from any single-process leadership.
//
// # External Queue API
//
// Manager is the explicit, queue-name-keyed registry applications use
// to register queues and drive them: Enqueue, Async (with optional
// reply), Yield (block for a reply), Suspend/Resume, Status, Filter,
// Cancel, and Move. Not every Source supports Enqueue — the Ecto Poll
// Queue has no generic "insert a row" operation, since a row's insert
// is the application's own business logic, not the queue's.
package ectopq
