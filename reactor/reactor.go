// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reactor owns exactly one event queue and runs the dispatch loop: poll
// with a bounded timeout, iterate a stable snapshot of ready events,
// invoke completion actions, run housekeeping. Completion actions must
// not block; blocking work belongs on an Executor. A failing action is
// isolated at the dispatch boundary and reported to the error sink, never
// allowed to take the loop down.

package reactor

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-io/api"
	"github.com/momentics/hioload-io/control"
	"github.com/momentics/hioload-io/poller"
)

const (
	defaultPollTimeout = 50 * time.Millisecond
	defaultBatchSize   = 128
)

// Options configures a Reactor. The zero value is usable.
type Options struct {
	// Logger receives dispatch failures and lifecycle messages.
	// Defaults to slog.Default.
	Logger *slog.Logger

	// PollTimeout bounds each poll so housekeeping runs periodically.
	PollTimeout time.Duration

	// BatchSize caps events drained per poll.
	BatchSize int

	// Housekeeping, if set, runs once per loop iteration after dispatch
	// (timeout sweeps and similar periodic work).
	Housekeeping func()

	// Metrics, if set, receives dispatch counters.
	Metrics *control.Metrics
}

// Reactor is the connection multiplexer.
type Reactor struct {
	queue        api.EventQueue
	log          *slog.Logger
	pollTimeout  time.Duration
	batch        []api.Event
	housekeeping func()
	metrics      *control.Metrics

	// Cross-thread operations destined for the loop goroutine. Any
	// goroutine may enqueue; only the loop drains, so the hot poll path
	// never contends with registrations routed through Execute.
	opmu sync.Mutex
	ops  *queue.Queue

	running  atomic.Bool
	stopping atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	doneOnce sync.Once
}

func (r *Reactor) finish() {
	r.doneOnce.Do(func() { close(r.doneCh) })
}

// New builds a reactor with a freshly constructed platform event queue.
func New(opts Options) (*Reactor, error) {
	q, err := poller.New()
	if err != nil {
		return nil, err
	}
	return NewWithQueue(q, opts), nil
}

// NewWithQueue builds a reactor around an existing event queue. The
// reactor takes ownership: the queue is closed when Run returns.
func NewWithQueue(q api.EventQueue, opts Options) *Reactor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Reactor{
		queue:        q,
		log:          opts.Logger,
		pollTimeout:  opts.PollTimeout,
		batch:        make([]api.Event, opts.BatchSize),
		housekeeping: opts.Housekeeping,
		metrics:      opts.Metrics,
		ops:          queue.New(),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Register subscribes a handle with this reactor's event queue.
func (r *Reactor) Register(h api.Handle, interest api.Interest, action api.CompletionAction) error {
	err := r.queue.Register(h, interest, action)
	if err == nil && r.metrics != nil {
		r.metrics.Registrations.Inc()
	}
	return err
}

// Modify replaces the interest mask of a registered handle.
func (r *Reactor) Modify(h api.Handle, interest api.Interest) error {
	return r.queue.Modify(h, interest)
}

// Deregister removes a handle. Idempotent.
func (r *Reactor) Deregister(h api.Handle) error {
	return r.queue.Deregister(h)
}

// Queue exposes the owned event queue.
func (r *Reactor) Queue() api.EventQueue { return r.queue }

// Execute schedules op to run on the loop goroutine before the next poll
// dispatch. Safe from any goroutine; wakes a blocked poll.
func (r *Reactor) Execute(op func()) error {
	if r.stopping.Load() {
		return api.ErrQueueClosed
	}
	r.opmu.Lock()
	r.ops.Add(op)
	r.opmu.Unlock()
	return r.queue.Wake()
}

func (r *Reactor) runOps() {
	for {
		r.opmu.Lock()
		if r.ops.Length() == 0 {
			r.opmu.Unlock()
			return
		}
		op := r.ops.Remove().(func())
		r.opmu.Unlock()
		r.invoke(func(api.Ready) { op() }, 0, -1)
	}
}

// Run executes the dispatch loop on the calling goroutine until Stop.
// The owned event queue is closed on return.
func (r *Reactor) Run() error {
	if r.stopping.Load() {
		return api.ErrQueueClosed
	}
	if !r.running.CompareAndSwap(false, true) {
		return api.NewError(api.ErrCodeInternal, "reactor already running")
	}
	defer r.finish()
	defer r.queue.Close()

	for {
		r.runOps()

		n, err := r.queue.Poll(r.pollTimeout, r.batch)
		if err != nil {
			if errors.Is(err, api.ErrQueueClosed) {
				return nil
			}
			r.log.Error("poll failed", "error", err)
			return err
		}
		for i := 0; i < n; i++ {
			ev := r.batch[i]
			// Liveness check per entry: a handle closed while its event
			// sat in the batch is skipped silently.
			if ev.Handle == nil || !ev.Handle.IsOpen() || ev.Action == nil {
				continue
			}
			r.invoke(ev.Action, ev.Ready, ev.Handle.Index())
			if r.metrics != nil {
				r.metrics.EventsDispatched.Inc()
			}
		}
		if r.housekeeping != nil {
			r.housekeeping()
		}

		select {
		case <-r.stopCh:
			r.runOps()
			return nil
		default:
		}
	}
}

// invoke runs a completion action behind a recover barrier so one
// misbehaving connection cannot terminate the loop.
func (r *Reactor) invoke(action api.CompletionAction, ready api.Ready, index int) {
	defer func() {
		if p := recover(); p != nil {
			if r.metrics != nil {
				r.metrics.DispatchErrors.Inc()
			}
			r.log.Error("completion action panicked", "index", index, "panic", p)
		}
	}()
	action(ready)
}

// Stop requests loop termination and wakes a blocked poll. It returns
// only after Run has exited, so no action is ever mid-execution when
// Stop returns. Safe to call from any goroutine, more than once.
func (r *Reactor) Stop() {
	if !r.stopping.CompareAndSwap(false, true) {
		<-r.doneCh
		return
	}
	close(r.stopCh)
	_ = r.queue.Wake()
	if r.running.Load() {
		<-r.doneCh
	} else {
		// Loop never started; release the queue here instead.
		_ = r.queue.Close()
		r.finish()
	}
}

// Shutdown implements api.GracefulShutdown.
func (r *Reactor) Shutdown() error {
	r.Stop()
	return nil
}
