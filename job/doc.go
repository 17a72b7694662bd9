// Package job defines the storage-agnostic representation of a unit of
// work managed by an ectopq queue.
//
// A Job couples a task.Task with the bookkeeping a poll-driven queue needs
// to dispatch it exactly once (at a time) and route its outcome: the
// backend-specific handle identifying its row (Private), the opaque blob
// carried across retries (FailurePrivate), an optional reply address
// (From), and the slot where a finished outcome is recorded (Result).
//
// Job values returned by a Source represent authoritative storage
// snapshots. Mutating them does not change queue state; transitions are
// only ever performed through the Source interface.
package job
