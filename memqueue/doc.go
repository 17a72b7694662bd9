// Package memqueue is a minimal in-memory poll source.
//
// memqueue exists to give the queue core something concrete to drive in
// tests without a database, and to give the Move failure mode a real
// destination queue to enqueue into: the Ecto Poll Queue itself has no
// generic "insert a task" operation, since its rows are the
// application's own business rows.
//
// memqueue reuses the same lock-state-machine semantics
// (internal/locksm) as sqlsource, so a job moved from a SQL-backed queue
// into a memqueue-backed one observes identical ready/delayed/stale/
// in-progress/abandoned transitions.
package memqueue
