// File: core/concurrency/executor.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across worker goroutines, using lock-free
// per-worker queues and a global channel fallback. Accepted tasks are
// never dropped: every one is executed or, on a non-draining shutdown,
// explicitly cancelled through its future.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-io/api"
	"github.com/momentics/hioload-io/control"
)

const localQueueCapacity = 1024

// Executor manages a pool of worker goroutines.
type Executor struct {
	globalQueue chan *task
	localQueues []*LockFreeQueue[*task]
	stopCh      chan struct{}

	// gate orders Submit against Shutdown: enqueues happen under the read
	// side with closed still false, Shutdown flips closed under the write
	// side. Once Shutdown holds the write lock, every accepted task is
	// already visible in pending and in a queue the shutdown path sweeps,
	// so none can be stranded.
	gate   sync.RWMutex
	closed atomic.Bool

	pending  atomic.Int64
	rr       atomic.Uint64
	wg       sync.WaitGroup
	stopOnce sync.Once
	metrics  *control.Metrics
}

type task struct {
	fn  func()
	fut *future
}

var _ api.Executor = (*Executor)(nil)

// NewExecutor creates an Executor with the given number of workers.
// numWorkers <= 0 selects runtime.NumCPU. metrics may be nil.
func NewExecutor(numWorkers int, metrics *control.Metrics) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		globalQueue: make(chan *task, numWorkers*4),
		stopCh:      make(chan struct{}),
		metrics:     metrics,
	}
	e.localQueues = make([]*LockFreeQueue[*task], numWorkers)
	for i := 0; i < numWorkers; i++ {
		e.localQueues[i] = NewLockFreeQueue[*task](localQueueCapacity)
	}
	for i := 0; i < numWorkers; i++ {
		w := &worker{id: i, executor: e, localQueue: e.localQueues[i]}
		e.wg.Add(1)
		go w.run(&e.wg)
	}
	return e
}

// Submit enqueues a task. Fails only with ErrExecutorClosed once shutdown
// has begun. When both the local and global queues are full, Submit spins
// with backoff until a worker frees space rather than drop the task.
func (e *Executor) Submit(fn func()) (api.Future, error) {
	t := &task{fn: fn, fut: newFuture()}
	for {
		e.gate.RLock()
		if e.closed.Load() {
			e.gate.RUnlock()
			return nil, api.ErrExecutorClosed
		}
		idx := int(e.rr.Add(1) % uint64(len(e.localQueues)))
		if e.localQueues[idx].Enqueue(t) {
			e.accept()
			e.gate.RUnlock()
			return t.fut, nil
		}
		select {
		case e.globalQueue <- t:
			e.accept()
			e.gate.RUnlock()
			return t.fut, nil
		default:
		}
		e.gate.RUnlock()
		time.Sleep(50 * time.Microsecond)
	}
}

// accept records a task placed in a queue. Called under the gate read
// lock, so the pending count is settled before Shutdown proceeds.
func (e *Executor) accept() {
	e.pending.Add(1)
	if e.metrics != nil {
		e.metrics.TasksSubmitted.Inc()
	}
}

// NumWorkers returns the active worker count.
func (e *Executor) NumWorkers() int { return len(e.localQueues) }

// Pending returns the number of accepted tasks not yet finished.
func (e *Executor) Pending() int { return int(e.pending.Load()) }

// Shutdown stops the executor. With drain, all queued tasks complete
// before workers exit; without, unscheduled tasks are cancelled and only
// in-flight tasks are awaited. Idempotent.
func (e *Executor) Shutdown(drain bool) {
	e.gate.Lock()
	first := e.closed.CompareAndSwap(false, true)
	e.gate.Unlock()
	if !first {
		e.wg.Wait()
		return
	}
	if drain {
		for e.pending.Load() > 0 {
			time.Sleep(time.Millisecond)
		}
	} else {
		e.cancelQueued()
	}
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

// Close shuts down with drain, satisfying api.GracefulShutdown.
func (e *Executor) Close() {
	e.Shutdown(true)
}

// cancelQueued empties all queues, completing futures with
// ErrExecutorClosed. Tasks a worker dequeues concurrently still run to
// completion; they count as in-flight.
func (e *Executor) cancelQueued() {
	for _, q := range e.localQueues {
		for {
			t, ok := q.Dequeue()
			if !ok {
				break
			}
			e.pending.Add(-1)
			t.fut.complete(api.ErrExecutorClosed)
		}
	}
	for {
		select {
		case t := <-e.globalQueue:
			e.pending.Add(-1)
			t.fut.complete(api.ErrExecutorClosed)
		default:
			return
		}
	}
}

type worker struct {
	id         int
	executor   *Executor
	localQueue *LockFreeQueue[*task]
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	e := w.executor
	for {
		if t, ok := w.localQueue.Dequeue(); ok {
			w.execute(t)
			continue
		}
		select {
		case t := <-e.globalQueue:
			w.execute(t)
		case <-e.stopCh:
			// Run whatever is still queued locally before exiting so a
			// draining shutdown cannot strand tasks enqueued between the
			// pending check and stop.
			for {
				t, ok := w.localQueue.Dequeue()
				if !ok {
					return
				}
				w.execute(t)
			}
		default:
			select {
			case t := <-e.globalQueue:
				w.execute(t)
			case <-e.stopCh:
				for {
					t, ok := w.localQueue.Dequeue()
					if !ok {
						return
					}
					w.execute(t)
				}
			case <-time.After(time.Millisecond):
			}
		}
	}
}

func (w *worker) execute(t *task) {
	err := w.safeExecute(t.fn)
	t.fut.complete(err)
	w.executor.pending.Add(-1)
	if w.executor.metrics != nil {
		w.executor.metrics.TasksCompleted.Inc()
	}
}

func (w *worker) safeExecute(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()
	fn()
	return nil
}
