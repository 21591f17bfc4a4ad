// File: poller/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle wraps one OS descriptor behind a stable arena index. Indices grow
// monotonically and are never reused, so a readiness event keyed by index
// can never be misrouted to a new descriptor that happens to receive a
// recycled fd number.

package poller

import (
	"sync"

	"github.com/momentics/hioload-io/api"
)

// arena maps indices to live handles. Process-wide, like the descriptor
// table it shadows.
type arena struct {
	mu  sync.Mutex
	seq int
	fd  map[int]*Handle
}

// Start past small integers so indices are easy to tell apart from raw
// descriptor numbers in logs.
var handles = arena{seq: 100, fd: make(map[int]*Handle)}

func (a *arena) add(h *Handle) int {
	a.mu.Lock()
	idx := a.seq
	a.seq++
	a.fd[idx] = h
	a.mu.Unlock()
	return idx
}

func (a *arena) del(idx int) {
	a.mu.Lock()
	delete(a.fd, idx)
	a.mu.Unlock()
}

// Lookup returns the live handle with the given arena index, or nil.
func Lookup(index int) *Handle {
	handles.mu.Lock()
	h := handles.fd[index]
	handles.mu.Unlock()
	return h
}

// Handle is the concrete api.Handle. It is exclusively owned by the
// component that created it until closed or transferred.
type Handle struct {
	index int

	mu     sync.Mutex
	sysfd  int
	closed bool
	owner  api.EventQueue // queue currently holding a registration, or nil
}

// NewHandle wraps an already-open OS descriptor. The descriptor must be in
// non-blocking mode; after this call it must only be used through the
// handle.
func NewHandle(sysfd int) *Handle {
	h := &Handle{sysfd: sysfd}
	h.index = handles.add(h)
	return h
}

// Index returns the stable arena index.
func (h *Handle) Index() int { return h.index }

// Sysfd returns the underlying descriptor. Callers must hold the handle
// open for the duration of any direct use.
func (h *Handle) Sysfd() int {
	h.mu.Lock()
	fd := h.sysfd
	h.mu.Unlock()
	return fd
}

// IsOpen reports whether Close has not been called yet.
func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	open := !h.closed
	h.mu.Unlock()
	return open
}

// setOwner records the queue holding this handle's registration. Fails if
// a different queue already owns it.
func (h *Handle) setOwner(q api.EventQueue) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return api.ErrHandleClosed
	}
	if h.owner != nil && h.owner != q {
		return api.ErrAlreadyRegistered
	}
	h.owner = q
	return nil
}

// clearOwner drops the registration record if q still owns the handle.
func (h *Handle) clearOwner(q api.EventQueue) {
	h.mu.Lock()
	if h.owner == q {
		h.owner = nil
	}
	h.mu.Unlock()
}

// Close deregisters the handle from its owning queue, releases the OS
// descriptor and frees the arena slot. Idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	owner := h.owner
	h.owner = nil
	fd := h.sysfd
	h.sysfd = -1
	h.mu.Unlock()

	// Deregister first: once the fd is returned to the OS it can be
	// recycled, and a stale registry entry would then alias the new user.
	if owner != nil {
		_ = owner.Deregister(h)
	}
	handles.del(h.index)
	return closeFd(fd)
}
