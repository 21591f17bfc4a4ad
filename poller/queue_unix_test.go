//go:build linux || darwin || freebsd

// File: poller/queue_unix_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package poller

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/api"
)

// pipeHandles returns handles for the two ends of a non-blocking pipe.
func pipeHandles(t *testing.T) (r, w *Handle) {
	t.Helper()
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	_ = unix.SetNonblock(p[0], true)
	_ = unix.SetNonblock(p[1], true)
	return NewHandle(p[0]), NewHandle(p[1])
}

func socketpairHandles(t *testing.T) (a, b *Handle) {
	t.Helper()
	sv, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	_ = unix.SetNonblock(sv[0], true)
	_ = unix.SetNonblock(sv[1], true)
	return NewHandle(sv[0]), NewHandle(sv[1])
}

func newQueue(t *testing.T) api.EventQueue {
	t.Helper()
	q, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestQueue_ReadReadiness(t *testing.T) {
	q := newQueue(t)
	r, w := pipeHandles(t)
	defer r.Close()
	defer w.Close()

	fired := 0
	if err := q.Register(r, api.Readable, func(ready api.Ready) { fired++ }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if q.Size() != 1 {
		t.Fatalf("Size = %d, want 1", q.Size())
	}

	events := make([]api.Event, 8)

	// Nothing readable yet.
	n, err := q.Poll(0, events)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 0 {
		t.Fatalf("Poll on idle pipe returned %d events", n)
	}

	if _, err := unix.Write(w.Sysfd(), []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err = q.Poll(time.Second, events)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 1 {
		t.Fatalf("Poll returned %d events, want 1", n)
	}
	ev := events[0]
	if ev.Handle != r {
		t.Fatalf("event for wrong handle: index %d, want %d", ev.Handle.Index(), r.Index())
	}
	if ev.Ready&api.ReadyRead == 0 {
		t.Fatalf("Ready = %v, want ReadyRead set", ev.Ready)
	}
	ev.Action(ev.Ready)
	if fired != 1 {
		t.Fatalf("action fired %d times, want 1", fired)
	}
}

func TestQueue_ReadWriteCoalesced(t *testing.T) {
	q := newQueue(t)
	a, b := socketpairHandles(t)
	defer a.Close()
	defer b.Close()

	if err := q.Register(a, api.Readable|api.Writable, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Make a readable; it is writable from the start.
	if _, err := unix.Write(b.Sysfd(), []byte("y")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := make([]api.Event, 8)
	n, err := q.Poll(time.Second, events)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 1 {
		t.Fatalf("Poll returned %d events, want exactly 1 coalesced event", n)
	}
	want := api.ReadyRead | api.ReadyWrite
	if events[0].Ready&want != want {
		t.Fatalf("Ready = %v, want read and write together", events[0].Ready)
	}
}

func TestQueue_ModifyReplacesInterest(t *testing.T) {
	q := newQueue(t)
	r, w := pipeHandles(t)
	defer r.Close()
	defer w.Close()

	if err := q.Register(r, api.Readable, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := unix.Write(w.Sysfd(), []byte("z")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Drop read interest entirely: the pending byte must no longer surface.
	if err := q.Modify(r, 0); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	events := make([]api.Event, 8)
	n, err := q.Poll(50*time.Millisecond, events)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 0 {
		t.Fatalf("Poll returned %d events after interest cleared", n)
	}

	if err := q.Modify(r, api.Readable); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	n, err = q.Poll(time.Second, events)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 1 || events[0].Ready&api.ReadyRead == 0 {
		t.Fatalf("readable event not restored: n=%d", n)
	}
}

func TestQueue_ReRegisterUpdatesEntry(t *testing.T) {
	q := newQueue(t)
	a, b := socketpairHandles(t)
	defer a.Close()
	defer b.Close()

	stale := 0
	if err := q.Register(a, api.Writable, func(api.Ready) { stale++ }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if q.Size() != 1 {
		t.Fatalf("Size = %d, want 1", q.Size())
	}

	// Same queue, same handle: the second Register replaces mask and
	// action in place instead of adding an entry or failing.
	fired := 0
	if err := q.Register(a, api.Readable, func(api.Ready) { fired++ }); err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	if q.Size() != 1 {
		t.Fatalf("Size = %d after re-register, want 1", q.Size())
	}

	// Write interest is gone: an idle-but-writable socket stays silent.
	events := make([]api.Event, 8)
	n, err := q.Poll(50*time.Millisecond, events)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 0 {
		t.Fatalf("Poll returned %d events for replaced interest", n)
	}

	if _, err := unix.Write(b.Sysfd(), []byte("r")); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err = q.Poll(time.Second, events)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 1 || events[0].Ready&api.ReadyRead == 0 {
		t.Fatalf("readable event missing after re-register: n=%d", n)
	}
	events[0].Action(events[0].Ready)
	if fired != 1 || stale != 0 {
		t.Fatalf("dispatched to wrong action: new=%d old=%d", fired, stale)
	}
}

func TestQueue_ModifyUnregistered(t *testing.T) {
	q := newQueue(t)
	r, w := pipeHandles(t)
	defer r.Close()
	defer w.Close()

	if err := q.Modify(r, api.Readable); !errors.Is(err, api.ErrNotRegistered) {
		t.Fatalf("Modify on unregistered handle: %v, want ErrNotRegistered", err)
	}
}

func TestQueue_DeregisterIdempotent(t *testing.T) {
	q := newQueue(t)
	r, w := pipeHandles(t)
	defer r.Close()
	defer w.Close()

	if err := q.Register(r, api.Readable, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := q.Deregister(r); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if err := q.Deregister(r); err != nil {
		t.Fatalf("second Deregister: %v", err)
	}
	if q.Size() != 0 {
		t.Fatalf("Size = %d after deregister, want 0", q.Size())
	}

	// The handle can be registered again, with a different queue even.
	q2 := newQueue(t)
	if err := q2.Register(r, api.Readable, nil); err != nil {
		t.Fatalf("re-Register on second queue: %v", err)
	}
}

func TestQueue_DoubleRegisterDifferentQueues(t *testing.T) {
	q1 := newQueue(t)
	q2 := newQueue(t)
	r, w := pipeHandles(t)
	defer r.Close()
	defer w.Close()

	if err := q1.Register(r, api.Readable, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := q2.Register(r, api.Readable, nil)
	if !errors.Is(err, api.ErrAlreadyRegistered) {
		t.Fatalf("Register on second queue: %v, want ErrAlreadyRegistered", err)
	}
}

func TestQueue_ZeroTimeoutDoesNotBlock(t *testing.T) {
	q := newQueue(t)
	events := make([]api.Event, 4)
	start := time.Now()
	n, err := q.Poll(0, events)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 0 {
		t.Fatalf("Poll returned %d events on an empty queue", n)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("zero-timeout Poll took %v", elapsed)
	}
}

func TestQueue_WakeInterruptsPoll(t *testing.T) {
	q := newQueue(t)
	events := make([]api.Event, 4)

	type result struct {
		n   int
		err error
		dur time.Duration
	}
	res := make(chan result, 1)
	go func() {
		start := time.Now()
		n, err := q.Poll(5*time.Second, events)
		res <- result{n, err, time.Since(start)}
	}()

	time.Sleep(50 * time.Millisecond)
	if err := q.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	select {
	case r := <-res:
		if r.err != nil {
			t.Fatalf("Poll: %v", r.err)
		}
		if r.n != 0 {
			t.Fatalf("wake surfaced %d events, want 0", r.n)
		}
		if r.dur > 2*time.Second {
			t.Fatalf("Poll not interrupted promptly: %v", r.dur)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Poll did not return after Wake")
	}
}

func TestQueue_WakeBeforePollIsSticky(t *testing.T) {
	q := newQueue(t)
	if err := q.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	events := make([]api.Event, 4)
	start := time.Now()
	if _, err := q.Poll(5*time.Second, events); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("pre-poll Wake not observed, Poll took %v", elapsed)
	}
}

func TestQueue_CloseReleasesRegistrations(t *testing.T) {
	q := newQueue(t)
	r, w := pipeHandles(t)
	defer r.Close()
	defer w.Close()

	if err := q.Register(r, api.Readable, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := q.Poll(0, make([]api.Event, 1)); !errors.Is(err, api.ErrQueueClosed) {
		t.Fatalf("Poll after Close: %v, want ErrQueueClosed", err)
	}

	// Close released the ownership record, so a fresh queue accepts it.
	q2 := newQueue(t)
	if err := q2.Register(r, api.Readable, nil); err != nil {
		t.Fatalf("Register after queue close: %v", err)
	}
}

func TestHandle_CloseDeregisters(t *testing.T) {
	q := newQueue(t)
	r, w := pipeHandles(t)
	defer w.Close()

	if err := q.Register(r, api.Readable, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	idx := r.Index()
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.IsOpen() {
		t.Fatal("IsOpen true after Close")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if q.Size() != 0 {
		t.Fatalf("Size = %d after handle close, want 0", q.Size())
	}
	if Lookup(idx) != nil {
		t.Fatal("arena still resolves a closed handle")
	}
	if err := q.Register(r, api.Readable, nil); !errors.Is(err, api.ErrHandleClosed) {
		t.Fatalf("Register closed handle: %v, want ErrHandleClosed", err)
	}
}

func TestHandle_IndexNotReused(t *testing.T) {
	r1, w1 := pipeHandles(t)
	fd1, idx1 := r1.Sysfd(), r1.Index()
	r1.Close()
	w1.Close()

	// The kernel is free to hand the same descriptor numbers back.
	r2, w2 := pipeHandles(t)
	defer r2.Close()
	defer w2.Close()

	if r2.Index() == idx1 {
		t.Fatalf("arena index %d reused", idx1)
	}
	if r2.Sysfd() == fd1 && r2.Index() == idx1 {
		t.Fatal("recycled fd aliased to the old handle identity")
	}
}

func TestQueue_StaleEventAfterClose(t *testing.T) {
	q := newQueue(t)
	r, w := pipeHandles(t)
	defer w.Close()

	if err := q.Register(r, api.Readable, func(api.Ready) {
		t.Error("action for closed handle invoked")
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := unix.Write(w.Sysfd(), []byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Close before polling: the pending kernel event must not surface.
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	events := make([]api.Event, 8)
	n, err := q.Poll(50*time.Millisecond, events)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	for i := 0; i < n; i++ {
		if events[i].Handle == r {
			t.Fatal("event delivered for a closed handle")
		}
	}
}
