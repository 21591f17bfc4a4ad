// File: api/handle.go
// Package api defines the Handle contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Handle is an opaque wrapper around one OS-level I/O descriptor (socket,
// pipe endpoint, file). The arena index identifies the handle inside event
// queue registries; the kernel may recycle descriptor numbers, arena
// indices are never reused.
type Handle interface {
	// Index returns the stable arena index of this handle.
	Index() int

	// Sysfd returns the underlying OS descriptor. Valid only while open.
	Sysfd() int

	// IsOpen reports whether the descriptor has not been closed yet.
	IsOpen() bool

	// Close deregisters the handle from any owning event queue, then
	// releases the OS descriptor. Idempotent: second and later calls are
	// no-ops returning nil.
	Close() error
}
