package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"goprofile/internal"
	"goprofile/ports"
)

// Pool runs submitted tasks with at most capacity running at once
type Pool struct {
	sem      *semaphore.Weighted
	capacity int
	logger   *internal.Logger
}

// NewPool creates a bounded task executor
func NewPool(capacity int, logger *internal.Logger) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Pool{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		logger:   logger.With("Executor"),
	}
}

// Capacity returns the maximum number of concurrent tasks
func (p *Pool) Capacity() int { return p.capacity }

// future is the result slot of one task
type future struct {
	done   chan struct{}
	result interface{}
	err    error
}

// Wait blocks until the task finishes or ctx is done
func (f *future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit starts task as soon as capacity is available. Capacity is acquired
// inside the task goroutine so Submit never blocks.
func (p *Pool) Submit(ctx context.Context, task ports.Task) ports.Future {
	f := &future{done: make(chan struct{})}
	go func() {
		defer close(f.done)

		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.err = fmt.Errorf("waiting for executor capacity: %w", err)
			return
		}
		defer p.sem.Release(1)

		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("task panicked: %v", r)
				f.err = fmt.Errorf("task panicked: %v", r)
			}
		}()

		start := time.Now()
		f.result, f.err = task(ctx)
		p.logger.Trace("task finished in %v", time.Since(start))
	}()
	return f
}

// Run submits every task and waits for all of them, returning results in
// submission order. The first error is returned after all tasks finish.
func (p *Pool) Run(ctx context.Context, tasks []ports.Task) ([]interface{}, error) {
	futures := make([]ports.Future, len(tasks))
	for i, t := range tasks {
		futures[i] = p.Submit(ctx, t)
	}

	results := make([]interface{}, len(tasks))
	var firstErr error
	for i, f := range futures {
		res, err := f.Wait(context.Background())
		results[i] = res
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}
