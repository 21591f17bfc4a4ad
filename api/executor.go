// Package api
// Author: momentics
//
// Executor contract for parallel task dispatch. Completion actions hand
// blocking work off here instead of stalling a multiplexer loop.

package api

import "context"

// Future tracks one submitted task.
type Future interface {
	// Done is closed once the task has run or been cancelled.
	Done() <-chan struct{}

	// Err returns nil after successful execution, ErrExecutorClosed if the
	// task was cancelled by a non-draining shutdown, or the recovered panic
	// value wrapped as an error. Valid only after Done is closed.
	Err() error

	// Wait blocks until completion or context expiry.
	Wait(ctx context.Context) error
}

// Executor abstracts a pool of worker goroutines.
type Executor interface {
	// Submit schedules task for execution. Fails only with
	// ErrExecutorClosed once shutdown has begun. Submitted tasks are never
	// dropped: each one is eventually executed or explicitly cancelled.
	Submit(task func()) (Future, error)

	// NumWorkers returns the current number of active workers.
	NumWorkers() int

	// Shutdown stops the pool. With drain, all queued tasks complete
	// before it returns; without, unscheduled tasks are cancelled and only
	// in-flight tasks are awaited.
	Shutdown(drain bool)
}
