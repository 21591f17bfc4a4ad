// File: reactor/group.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Group runs the sharded multiplexer model: one reactor per worker
// goroutine, every handle mapped to a shard by its arena index. All
// events for one handle are therefore handled on the same thread, and
// per-connection state needs no locking.

package reactor

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-io/affinity"
	"github.com/momentics/hioload-io/api"
)

// GroupOptions configures a reactor group.
type GroupOptions struct {
	// Reactor options applied to every shard.
	Options

	// PinWorkers locks each worker to an OS thread and pins it to a CPU.
	// Pin failures are logged and otherwise ignored.
	PinWorkers bool
}

// Group owns a fixed set of reactors.
type Group struct {
	reactors []*Reactor
	pin      bool
	eg       errgroup.Group
	started  atomic.Bool
}

// NewGroup builds n reactors. n <= 0 selects runtime.NumCPU.
func NewGroup(n int, opts GroupOptions) (*Group, error) {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	g := &Group{pin: opts.PinWorkers}
	for i := 0; i < n; i++ {
		r, err := New(opts.Options)
		if err != nil {
			for _, prev := range g.reactors {
				prev.Stop()
			}
			return nil, err
		}
		g.reactors = append(g.reactors, r)
	}
	return g, nil
}

// Size returns the shard count.
func (g *Group) Size() int { return len(g.reactors) }

// ReactorFor returns the shard that owns h. The mapping is deterministic
// and stable for the lifetime of the handle.
func (g *Group) ReactorFor(h api.Handle) *Reactor {
	return g.reactors[h.Index()%len(g.reactors)]
}

// Reactor returns shard i.
func (g *Group) Reactor(i int) *Reactor { return g.reactors[i] }

// Start launches one worker goroutine per reactor.
func (g *Group) Start() {
	if !g.started.CompareAndSwap(false, true) {
		return
	}
	cpus := runtime.NumCPU()
	for i, r := range g.reactors {
		i, r := i, r
		g.eg.Go(func() error {
			if g.pin {
				runtime.LockOSThread()
				if err := affinity.Pin(i % cpus); err != nil {
					r.log.Warn("cpu pin failed", "worker", i, "error", err)
				}
			}
			return r.Run()
		})
	}
}

// Stop stops every reactor and waits for all workers to exit. The first
// loop error, if any, is returned.
func (g *Group) Stop() error {
	for _, r := range g.reactors {
		r.Stop()
	}
	return g.eg.Wait()
}
