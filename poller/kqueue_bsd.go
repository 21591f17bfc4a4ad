//go:build darwin || freebsd

// File: poller/kqueue_bsd.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// kqueue(2) event queue for Darwin and FreeBSD. Read and write interest
// are separate kernel filters, so simultaneous readiness arrives as two
// kevents in one batch; Poll coalesces them into a single Event per
// handle. A non-blocking pipe serves as the wake-up handle.

package poller

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/api"
	"github.com/momentics/hioload-io/internal/oserr"
)

type kqueueQueue struct {
	reg    *registry
	kq     int
	rfd    int // pipe read end, registered with the kqueue
	wfd    int // pipe write end, written by Wake
	closed atomic.Bool
}

// New constructs the kqueue-backed event queue.
func New() (api.EventQueue, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, oserr.Map("kqueue", err)
	}
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		unix.Close(kq)
		return nil, oserr.Map("pipe", err)
	}
	rfd, wfd := p[0], p[1]
	_ = unix.SetNonblock(rfd, true)
	_ = unix.SetNonblock(wfd, true)
	kev := unix.Kevent_t{
		Ident:  uint64(rfd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{kev}, nil, nil); err != nil {
		unix.Close(rfd)
		unix.Close(wfd)
		unix.Close(kq)
		return nil, oserr.Map("kevent wakeup", err)
	}
	return &kqueueQueue{reg: newRegistry(), kq: kq, rfd: rfd, wfd: wfd}, nil
}

// maskChanges builds the changelist taking the interest mask from old to
// next. Filters are only deleted when they were actually added before,
// otherwise kevent reports ENOENT.
func maskChanges(fd int, old, next api.Interest) []unix.Kevent_t {
	var changes []unix.Kevent_t
	add := func(filter int16) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: unix.EV_ADD})
	}
	del := func(filter int16) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: unix.EV_DELETE})
	}
	if next&api.Readable != 0 && old&api.Readable == 0 {
		add(unix.EVFILT_READ)
	}
	if next&api.Readable == 0 && old&api.Readable != 0 {
		del(unix.EVFILT_READ)
	}
	if next&api.Writable != 0 && old&api.Writable == 0 {
		add(unix.EVFILT_WRITE)
	}
	if next&api.Writable == 0 && old&api.Writable != 0 {
		del(unix.EVFILT_WRITE)
	}
	return changes
}

func (q *kqueueQueue) apply(changes []unix.Kevent_t) error {
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(q.kq, changes, nil, nil)
	if err != nil {
		return oserr.Map("kevent", err)
	}
	return nil
}

func (q *kqueueQueue) Register(h api.Handle, interest api.Interest, action api.CompletionAction) error {
	if q.closed.Load() {
		return api.ErrQueueClosed
	}
	hh, ok := h.(*Handle)
	if !ok {
		return api.NewError(api.ErrCodeRegistration, "foreign handle implementation")
	}
	if err := hh.setOwner(q); err != nil {
		return err
	}
	fd := hh.Sysfd()
	var old api.Interest
	if prev := q.reg.get(hh.index); prev != nil {
		old = prev.interest
	}
	if err := q.apply(maskChanges(fd, old, interest)); err != nil {
		if old == 0 {
			hh.clearOwner(q)
		}
		return err
	}
	q.reg.put(&entry{h: hh, sysfd: fd, interest: interest, action: action})
	return nil
}

func (q *kqueueQueue) Modify(h api.Handle, interest api.Interest) error {
	if q.closed.Load() {
		return api.ErrQueueClosed
	}
	e := q.reg.get(h.Index())
	if e == nil {
		return api.ErrNotRegistered
	}
	if err := q.apply(maskChanges(e.sysfd, e.interest, interest)); err != nil {
		return err
	}
	q.reg.put(&entry{h: e.h, sysfd: e.sysfd, interest: interest, action: e.action})
	return nil
}

func (q *kqueueQueue) Deregister(h api.Handle) error {
	e := q.reg.del(h.Index())
	if e == nil {
		return nil
	}
	// Best effort: the filters vanish with the fd if Close got here first.
	_ = q.apply(maskChanges(e.sysfd, e.interest, 0))
	e.h.clearOwner(q)
	return nil
}

func (q *kqueueQueue) Poll(timeout time.Duration, events []api.Event) (int, error) {
	if q.closed.Load() {
		return 0, api.ErrQueueClosed
	}
	if len(events) == 0 {
		return 0, nil
	}
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	raw := make([]unix.Kevent_t, len(events))
	var n int
	var err error
	for {
		n, err = unix.Kevent(q.kq, nil, raw, ts)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		if q.closed.Load() {
			return 0, api.ErrQueueClosed
		}
		return 0, oserr.Map("kevent", err)
	}

	out := 0
	slot := make(map[int]int, n) // arena index -> position in events
	buf := make([]byte, 16)
	for i := 0; i < n; i++ {
		fd := int(raw[i].Ident)
		if fd == q.rfd {
			for {
				if _, rerr := unix.Read(q.rfd, buf); rerr != nil {
					break
				}
			}
			continue
		}
		e := q.reg.resolve(fd)
		if e == nil {
			continue // stale notification for a deregistered handle
		}
		var ready api.Ready
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			if e.interest&api.Readable != 0 {
				ready |= api.ReadyRead
			}
		case unix.EVFILT_WRITE:
			if e.interest&api.Writable != 0 {
				ready |= api.ReadyWrite
			}
		}
		if raw[i].Flags&unix.EV_ERROR != 0 {
			ready |= api.ReadyError
		}
		if ready == 0 {
			continue
		}
		if pos, ok := slot[e.h.index]; ok {
			events[pos].Ready |= ready
		} else {
			slot[e.h.index] = out
			events[out] = api.Event{Handle: e.h, Ready: ready, Action: e.action}
			out++
		}
	}
	for i := 0; i < out; i++ {
		if events[i].Ready&api.ReadyError != 0 {
			_ = q.Deregister(events[i].Handle)
		}
	}
	return out, nil
}

func (q *kqueueQueue) Wake() error {
	var b [1]byte
	b[0] = 1
	_, err := unix.Write(q.wfd, b[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// Size reports the number of currently registered handles.
func (q *kqueueQueue) Size() int { return q.reg.size() }

func (q *kqueueQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, e := range q.reg.drain() {
		e.h.clearOwner(q)
	}
	unix.Close(q.rfd)
	unix.Close(q.wfd)
	return unix.Close(q.kq)
}
