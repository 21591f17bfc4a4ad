// File: api/poll.go
// Package api defines the event queue contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness-notification abstraction over the per-OS multiplexing
// facilities (epoll, kqueue). One implementation per facility; selection
// happens once, at construction, through the poller factory.

package api

import "time"

// Interest is a bitmask of readiness conditions a caller subscribes to.
type Interest uint32

// Ready is a bitmask of readiness conditions reported by a poll.
type Ready uint32

const (
	// Readable signals that a read can be issued without blocking.
	Readable Interest = 1 << iota
	// Writable signals that a write can be issued without blocking.
	Writable
	// Errored signals an error condition on the descriptor (peer reset,
	// hangup). Reported once; the entry is then dropped from the queue.
	Errored
)

const (
	ReadyRead  Ready = Ready(Readable)
	ReadyWrite Ready = Ready(Writable)
	ReadyError Ready = Ready(Errored)
)

// Event is one readiness notification. It is a stable snapshot of the
// registry entry taken inside Poll: dispatchers iterate the returned slice
// and check Handle liveness per entry, so an action deregistering other
// handles mid-dispatch cannot invalidate the iteration.
type Event struct {
	Handle Handle
	Ready  Ready
	Action CompletionAction
}

// CompletionAction is invoked by a multiplexer when a registered handle
// becomes ready. It runs on the multiplexer goroutine and must not block;
// blocking work has to be handed off to an Executor.
type CompletionAction func(Ready)

// EventQueue is the per-OS readiness engine. All backends implement this
// contract identically.
type EventQueue interface {
	// Register subscribes a handle with the given interest mask and action.
	// Registering an already-registered handle updates the mask and action
	// in place. Fails with ErrHandleClosed if the handle is already closed
	// and with ErrAlreadyRegistered if another queue owns it.
	Register(h Handle, interest Interest, action CompletionAction) error

	// Modify replaces the interest mask of a registered handle.
	// Fails with ErrNotRegistered if the handle is absent.
	Modify(h Handle, interest Interest) error

	// Deregister removes a handle from the queue. Idempotent.
	Deregister(h Handle) error

	// Poll fills events with whatever is ready and returns the count.
	// A zero timeout returns immediately, possibly with zero events.
	// A negative timeout blocks until at least one event or a Wake call.
	Poll(timeout time.Duration, events []Event) (int, error)

	// Wake interrupts a blocked Poll from any goroutine.
	Wake() error

	// Size reports the number of currently registered handles.
	Size() int

	// Close releases the OS facility. The queue must not be used afterwards.
	Close() error
}
