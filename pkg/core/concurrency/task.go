package concurrency

import "context"

// Task is a unit of work run by an Executor
type Task interface {
	// Execute performs the work; ctx ends when the executor shuts down
	Execute(ctx context.Context) error

	// Name identifies the task in logs
	Name() string
}

// TaskFunc adapts an anonymous function to Task
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Execute(ctx context.Context) error { return f(ctx) }
func (f TaskFunc) Name() string                      { return "anonymous" }

// Named returns fn as a Task reporting name in logs
func Named(name string, fn TaskFunc) Task {
	return namedTask{name: name, fn: fn}
}

type namedTask struct {
	name string
	fn   TaskFunc
}

func (t namedTask) Execute(ctx context.Context) error { return t.fn(ctx) }
func (t namedTask) Name() string                      { return t.name }
