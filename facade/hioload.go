// File: facade/hioload.go
// Unified facade layer for the hioload-io library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Hioload aggregates the core components — reactor group, executor,
// buffer pool, control plane — behind a single configuration. The facade
// itself contains no I/O logic; it only wires the subsystems and manages
// their combined lifecycle.

package facade

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-io/api"
	"github.com/momentics/hioload-io/control"
	"github.com/momentics/hioload-io/core/concurrency"
	"github.com/momentics/hioload-io/pool"
	"github.com/momentics/hioload-io/reactor"
)

// Hioload is the assembled I/O core.
type Hioload struct {
	cfg     *Config
	log     *slog.Logger
	metrics *control.Metrics
	ctl     *control.Controller
	group   *reactor.Group
	exec    *concurrency.Executor
	bufs    *pool.BytePool

	mu        sync.Mutex
	listeners []io.Closer

	started atomic.Bool
	stopped atomic.Bool

	// stopDone is closed by the teardown goroutine once the group and
	// executor have fully stopped; stopErr is valid after that. A Stop
	// call that timed out leaves teardown running and a later call joins
	// it here.
	stopDone chan struct{}
	stopErr  error
}

// New builds all components from cfg. A nil cfg selects DefaultConfig;
// a nil logger selects slog.Default.
func New(cfg *Config, logger *slog.Logger) (*Hioload, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	var metrics *control.Metrics
	if cfg.EnableMetrics {
		metrics = control.NewMetrics()
	}
	probes := control.NewDebugProbes()
	control.RegisterRuntimeProbes(probes)
	ctl := control.NewController(control.NewConfigStore(), metrics, probes)

	// The registration gauge is refreshed by the shard housekeeping hooks.
	// Every shard writes the same sum, so the wasted work is bounded and no
	// coordination is needed.
	var group *reactor.Group
	housekeeping := func() {
		if metrics == nil || group == nil {
			return
		}
		total := 0
		for i := 0; i < group.Size(); i++ {
			total += group.Reactor(i).Queue().Size()
		}
		metrics.ActiveRegistrations.Set(float64(total))
	}

	group, err := reactor.NewGroup(cfg.NumReactors, reactor.GroupOptions{
		Options: reactor.Options{
			Logger:       logger,
			PollTimeout:  cfg.PollTimeout,
			BatchSize:    cfg.BatchSize,
			Metrics:      metrics,
			Housekeeping: housekeeping,
		},
		PinWorkers: cfg.PinWorkers,
	})
	if err != nil {
		return nil, err
	}

	h := &Hioload{
		cfg:      cfg,
		log:      logger,
		metrics:  metrics,
		ctl:      ctl,
		group:    group,
		exec:     concurrency.NewExecutor(cfg.NumWorkers, metrics),
		bufs:     pool.NewBytePool(),
		stopDone: make(chan struct{}),
	}
	probes.RegisterProbe("reactor.shards", func() any { return group.Size() })
	probes.RegisterProbe("executor.workers", func() any { return h.exec.NumWorkers() })
	probes.RegisterProbe("executor.pending", func() any { return h.exec.Pending() })
	return h, nil
}

// Start launches the reactor workers. Idempotent.
func (h *Hioload) Start() {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	h.group.Start()
	h.log.Info("hioload started",
		"reactors", h.group.Size(),
		"workers", h.exec.NumWorkers())
}

// Stop tears the core down: listeners first so no new connections arrive,
// then the reactor group, then the executor. Each call is bounded by
// ShutdownTimeout; a call that times out returns ErrTimeout while teardown
// keeps running, and a later call waits for the same teardown to finish.
func (h *Hioload) Stop() error {
	if h.stopped.CompareAndSwap(false, true) {
		h.mu.Lock()
		listeners := h.listeners
		h.listeners = nil
		h.mu.Unlock()
		for _, ln := range listeners {
			_ = ln.Close()
		}

		go func() {
			h.stopErr = h.group.Stop()
			h.exec.Shutdown(h.cfg.DrainOnShutdown)
			if h.stopErr != nil {
				h.log.Error("shutdown incomplete", "error", h.stopErr)
			} else {
				h.log.Info("hioload stopped")
			}
			close(h.stopDone)
		}()
	}

	if h.cfg.ShutdownTimeout > 0 {
		select {
		case <-h.stopDone:
		case <-time.After(h.cfg.ShutdownTimeout):
			return api.ErrTimeout
		}
	} else {
		<-h.stopDone
	}
	return h.stopErr
}

// Shutdown implements api.GracefulShutdown.
func (h *Hioload) Shutdown() error { return h.Stop() }

// Control returns the runtime control surface.
func (h *Hioload) Control() api.Control { return h.ctl }

// Metrics returns the telemetry set, or nil when disabled.
func (h *Hioload) Metrics() *control.Metrics { return h.metrics }

// Executor returns the worker pool.
func (h *Hioload) Executor() api.Executor { return h.exec }

// Group returns the reactor shards.
func (h *Hioload) Group() *reactor.Group { return h.group }

// Buffers returns the shared byte pool.
func (h *Hioload) Buffers() *pool.BytePool { return h.bufs }

func (h *Hioload) trackListener(c io.Closer) {
	h.mu.Lock()
	h.listeners = append(h.listeners, c)
	h.mu.Unlock()
}
