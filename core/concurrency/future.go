// File: core/concurrency/future.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"context"
	"fmt"
)

// future tracks one submitted task. err is written exactly once, before
// done is closed, so readers observing Done may read Err without locks.
type future struct {
	done chan struct{}
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) complete(err error) {
	f.err = err
	close(f.done)
}

// Done is closed once the task has run or been cancelled.
func (f *future) Done() <-chan struct{} { return f.done }

// Err reports the task outcome. Valid after Done is closed.
func (f *future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until completion or context expiry.
func (f *future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// panicError wraps a recovered panic value as a task error.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.value)
}
