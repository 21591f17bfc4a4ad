// File: poller/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Registration table shared by the event queue backends. Entries are keyed
// by arena index; the fd map exists only to resolve kernel notifications
// (which carry descriptor numbers) back to entries. A recycled fd number
// always resolves to the entry that most recently registered it, and a
// notification for a deregistered fd resolves to nothing.

package poller

import (
	"sync"

	"github.com/momentics/hioload-io/api"
)

type entry struct {
	h        *Handle
	sysfd    int
	interest api.Interest
	action   api.CompletionAction
}

type registry struct {
	mu      sync.Mutex
	byIndex map[int]*entry
	byFd    map[int]int // sysfd -> arena index
}

func newRegistry() *registry {
	return &registry{
		byIndex: make(map[int]*entry),
		byFd:    make(map[int]int),
	}
}

// put inserts or replaces the entry for e.h. Returns the previous entry,
// if any.
func (r *registry) put(e *entry) *entry {
	r.mu.Lock()
	prev := r.byIndex[e.h.index]
	r.byIndex[e.h.index] = e
	r.byFd[e.sysfd] = e.h.index
	r.mu.Unlock()
	return prev
}

func (r *registry) get(index int) *entry {
	r.mu.Lock()
	e := r.byIndex[index]
	r.mu.Unlock()
	return e
}

// resolve maps a kernel-reported fd to its current entry, or nil.
func (r *registry) resolve(sysfd int) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byFd[sysfd]
	if !ok {
		return nil
	}
	return r.byIndex[idx]
}

// del removes the entry for index and returns it, or nil if absent.
func (r *registry) del(index int) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byIndex[index]
	if !ok {
		return nil
	}
	delete(r.byIndex, index)
	if cur, ok := r.byFd[e.sysfd]; ok && cur == index {
		delete(r.byFd, e.sysfd)
	}
	return e
}

func (r *registry) size() int {
	r.mu.Lock()
	n := len(r.byIndex)
	r.mu.Unlock()
	return n
}

// drain empties the table and returns all entries. Used on queue close.
func (r *registry) drain() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, 0, len(r.byIndex))
	for _, e := range r.byIndex {
		out = append(out, e)
	}
	r.byIndex = make(map[int]*entry)
	r.byFd = make(map[int]int)
	return out
}
