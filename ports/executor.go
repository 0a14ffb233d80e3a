package ports

import "context"

// Task is a unit of work submitted to a TaskExecutor
type Task func(ctx context.Context) (interface{}, error)

// Future is the pending result of a submitted task
type Future interface {
	// Wait blocks until the task finishes or ctx is done
	Wait(ctx context.Context) (interface{}, error)
}

// TaskExecutor runs tasks with bounded concurrency
type TaskExecutor interface {
	Submit(ctx context.Context, task Task) Future
}

// GuardedExecutor wraps calls with panic recovery and failure tracking
type GuardedExecutor interface {
	Execute(ctx context.Context, name string, fn func(ctx context.Context) error) error
}
