// Package task defines the transport-level unit of work dispatched by
// ectopq workers.
//
// A Task is a tagged invocation: a symbolic Name plus an opaque Args
// blob, resolved against a Registry of Handler functions supplied at
// worker-pool construction. This replaces dynamic function dispatch
// with an explicit, statically registered lookup table.
//
// Task is intentionally minimal and carries no delivery or retry state;
// that is the concern of job.Job and the storage backend.
package task
