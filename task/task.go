package task

import (
	"context"
	"encoding/json"
	"fmt"
)

// Run is the handler name a queue's default task function uses when it
// is not configured with one of its own.
const Run = "run"

// Task is a tagged invocation: Name identifies the Handler to run, and
// Args is an opaque, typically JSON-encoded, argument blob.
//
// A Task carries no closure: the worker looks Name up in a Registry
// supplied at construction time rather than deserializing a function
// value.
type Task struct {
	Name string
	Args []byte
}

// New builds a Task by JSON-encoding args under the given handler name.
func New(name string, args any) (Task, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return Task{}, fmt.Errorf("task: encode args for %q: %w", name, err)
	}
	return Task{Name: name, Args: data}, nil
}

// Decode JSON-decodes t.Args into v.
func (t Task) Decode(v any) error {
	if len(t.Args) == 0 {
		return nil
	}
	return json.Unmarshal(t.Args, v)
}

// Handler processes a single Task invocation. The context is canceled
// when the owning worker pool is shutting down.
//
// Handlers must be idempotent: ectopq provides at-least-once delivery,
// and a task may run more than once if a worker crashes or misses its
// visibility timeout.
type Handler func(ctx context.Context, t Task) (any, error)

// Registry maps handler names to Handler implementations.
//
// A worker pool is constructed with a Registry; Tasks whose Name is not
// present fail with an error, routed through the queue's failure mode,
// rather than panicking.
type Registry map[string]Handler

// Lookup resolves name to its Handler, or ok=false if unregistered.
func (r Registry) Lookup(name string) (Handler, bool) {
	h, ok := r[name]
	return h, ok
}
