//go:build linux

// File: poller/epoll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) event queue. Level-triggered. The kernel-side data word
// carries the arena index, so readiness reports survive fd recycling. An
// eventfd doubles as the wake-up handle: one blocking primitive serves
// both I/O waits and control signaling.

package poller

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/api"
	"github.com/momentics/hioload-io/internal/oserr"
)

// wakeMark is stored as the data word for the eventfd registration so wake
// signals can never collide with an arena index.
const wakeMark = -1

// packIndex spreads a 64-bit arena index across the Fd and Pad words of
// the kernel data field. Indices are never reused, so 32 bits would
// overflow in a long-lived process.
func packIndex(ev *unix.EpollEvent, idx int64) {
	ev.Fd = int32(idx)
	ev.Pad = int32(idx >> 32)
}

func unpackIndex(ev *unix.EpollEvent) int64 {
	return int64(uint32(ev.Fd)) | int64(ev.Pad)<<32
}

type epollQueue struct {
	reg    *registry
	epfd   int
	wakefd int
	closed atomic.Bool
}

// New constructs the epoll-backed event queue.
func New() (api.EventQueue, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, oserr.Map("epoll_create1", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, oserr.Map("eventfd", err)
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN}
	packIndex(ev, wakeMark)
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, oserr.Map("epoll_ctl wakeup", err)
	}
	return &epollQueue{reg: newRegistry(), epfd: epfd, wakefd: wakefd}, nil
}

func epollMask(interest api.Interest) uint32 {
	var m uint32
	if interest&api.Readable != 0 {
		m |= unix.EPOLLIN
	}
	if interest&api.Writable != 0 {
		m |= unix.EPOLLOUT
	}
	return m
}

func (q *epollQueue) Register(h api.Handle, interest api.Interest, action api.CompletionAction) error {
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
	ev := &unix.EpollEvent{Events: epollMask(interest)}
	packIndex(ev, int64(hh.index))
	if prev := q.reg.get(hh.index); prev != nil {
		// Re-registration updates mask and action in place.
		if err := unix.EpollCtl(q.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
			return oserr.Map("epoll_ctl mod", err)
		}
		q.reg.put(&entry{h: hh, sysfd: fd, interest: interest, action: action})
		return nil
	}
	if err := unix.EpollCtl(q.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		hh.clearOwner(q)
		return oserr.Map("epoll_ctl add", err)
	}
	q.reg.put(&entry{h: hh, sysfd: fd, interest: interest, action: action})
	return nil
}

func (q *epollQueue) Modify(h api.Handle, interest api.Interest) error {
	if q.closed.Load() {
		return api.ErrQueueClosed
	}
	e := q.reg.get(h.Index())
	if e == nil {
		return api.ErrNotRegistered
	}
	ev := &unix.EpollEvent{Events: epollMask(interest)}
	packIndex(ev, int64(h.Index()))
	if err := unix.EpollCtl(q.epfd, unix.EPOLL_CTL_MOD, e.sysfd, ev); err != nil {
		return oserr.Map("epoll_ctl mod", err)
	}
	q.reg.put(&entry{h: e.h, sysfd: e.sysfd, interest: interest, action: e.action})
	return nil
}

func (q *epollQueue) Deregister(h api.Handle) error {
	e := q.reg.del(h.Index())
	if e == nil {
		return nil
	}
	// The fd may already be gone if Deregister runs from Handle.Close;
	// the kernel drops epoll membership with the descriptor in that case.
	_ = unix.EpollCtl(q.epfd, unix.EPOLL_CTL_DEL, e.sysfd, nil)
	e.h.clearOwner(q)
	return nil
}

func (q *epollQueue) Poll(timeout time.Duration, events []api.Event) (int, error) {
	if q.closed.Load() {
		return 0, api.ErrQueueClosed
	}
	if len(events) == 0 {
		return 0, nil
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		if timeout > 0 && ms == 0 {
			ms = 1
		}
	}
	raw := make([]unix.EpollEvent, len(events))
	var n int
	var err error
	for {
		n, err = unix.EpollWait(q.epfd, raw, ms)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		if q.closed.Load() {
			return 0, api.ErrQueueClosed
		}
		return 0, oserr.Map("epoll_wait", err)
	}

	out := 0
	var buf [8]byte
	for i := 0; i < n; i++ {
		idx := unpackIndex(&raw[i])
		if idx == wakeMark {
			for {
				if _, rerr := unix.Read(q.wakefd, buf[:]); rerr != nil {
					break
				}
			}
			continue
		}
		e := q.reg.get(int(idx))
		if e == nil {
			continue // stale notification for a deregistered handle
		}
		var ready api.Ready
		if raw[i].Events&unix.EPOLLIN != 0 && e.interest&api.Readable != 0 {
			ready |= api.ReadyRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 && e.interest&api.Writable != 0 {
			ready |= api.ReadyWrite
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			ready |= api.ReadyError
		}
		if ready == 0 {
			continue
		}
		if ready&api.ReadyError != 0 {
			// Error conditions are reported once; the entry is dropped and
			// the application re-registers if it wants more notifications.
			_ = q.Deregister(e.h)
		}
		events[out] = api.Event{Handle: e.h, Ready: ready, Action: e.action}
		out++
	}
	return out, nil
}

func (q *epollQueue) Wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(q.wakefd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// Size reports the number of currently registered handles.
func (q *epollQueue) Size() int { return q.reg.size() }

func (q *epollQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, e := range q.reg.drain() {
		e.h.clearOwner(q)
	}
	unix.Close(q.wakefd)
	return unix.Close(q.epfd)
}
