//go:build linux || darwin || freebsd

// File: transport/socket_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket couples a poller handle with connection state and a pending-write
// queue. Reads and writes never block: they report ErrWouldBlock and rely
// on the owning multiplexer to retry after the next readiness event.

package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/api"
	"github.com/momentics/hioload-io/internal/oserr"
	"github.com/momentics/hioload-io/poller"
)

// Socket is a non-blocking TCP connection endpoint.
type Socket struct {
	h     *poller.Handle
	state atomic.Int32

	// Pending writes are chunks accepted by QueueWrite but not yet taken
	// by the kernel. Guarded by wmu: readiness dispatch is single-threaded
	// per handle, but QueueWrite may be called from any goroutine.
	wmu          sync.Mutex
	pendingQ     *queue.Queue
	pendingBytes int
	shutWrite    bool // write-side shutdown deferred until the queue drains

	laddr *net.TCPAddr
	raddr *net.TCPAddr
}

type wchunk struct {
	data []byte
	off  int
}

func newSocket(fd int, st State) *Socket {
	s := &Socket{
		h:        poller.NewHandle(fd),
		pendingQ: queue.New(),
	}
	s.state.Store(int32(st))
	if st == StateConnected {
		s.laddr = localTCPAddr(fd)
		s.raddr = remoteTCPAddr(fd)
	}
	return s
}

// NewTCP creates an unconnected IPv4 socket.
func NewTCP() (*Socket, error) {
	fd, err := rawTCPSocket(unix.AF_INET)
	if err != nil {
		return nil, err
	}
	return newSocket(fd, StateUnconnected), nil
}

// Handle returns the underlying poller handle.
func (s *Socket) Handle() *poller.Handle { return s.h }

// State returns the current connection state.
func (s *Socket) State() State { return State(s.state.Load()) }

// LocalAddr returns the bound local address, or nil before connect.
func (s *Socket) LocalAddr() net.Addr {
	if s.laddr == nil {
		return nil
	}
	return s.laddr
}

// RemoteAddr returns the peer address, or nil before connect.
func (s *Socket) RemoteAddr() net.Addr {
	if s.raddr == nil {
		return nil
	}
	return s.raddr
}

// advance moves the state forward. Transitions only ever increase, so a
// lost CAS race means another goroutine already moved further.
func (s *Socket) advance(to State) bool {
	for {
		cur := s.state.Load()
		if cur >= int32(to) {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// StartConnect begins a non-blocking connect to addr ("host:port"). On
// return the socket is Connecting (or already Connected for a loopback
// fast path); completion is delivered through write-readiness of the
// handle, resolved by FinishConnect.
func (s *Socket) StartConnect(addr string) error {
	if s.State() != StateUnconnected {
		return api.NewError(api.ErrCodeInternal, "connect on non-fresh socket").
			WithContext("state", s.State().String())
	}
	ta, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		s.Close()
		return api.WrapError(api.ErrCodeIO, "resolve", err)
	}
	sa, _, err := tcpSockaddr(ta)
	if err != nil {
		s.Close()
		return err
	}
	err = unix.Connect(s.h.Sysfd(), sa)
	switch err {
	case nil:
		s.advance(StateConnected)
		s.laddr = localTCPAddr(s.h.Sysfd())
		s.raddr = remoteTCPAddr(s.h.Sysfd())
		return nil
	case unix.EINPROGRESS, unix.EINTR:
		s.advance(StateConnecting)
		return nil
	default:
		s.Close()
		return oserr.Map("connect", err)
	}
}

// FinishConnect resolves an in-progress connect after write-readiness.
// Returns ErrWouldBlock while the handshake is still pending; on definite
// failure the socket is closed.
func (s *Socket) FinishConnect() error {
	if s.State() == StateConnected {
		return nil
	}
	if s.State() != StateConnecting {
		return api.ErrHandleClosed
	}
	soerr, err := unix.GetsockoptInt(s.h.Sysfd(), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		s.Close()
		return oserr.Map("getsockopt", err)
	}
	switch unix.Errno(soerr) {
	case 0, unix.EISCONN:
		s.advance(StateConnected)
		s.laddr = localTCPAddr(s.h.Sysfd())
		s.raddr = remoteTCPAddr(s.h.Sysfd())
		return nil
	case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
		return api.ErrWouldBlock
	default:
		s.Close()
		return oserr.Map("connect", unix.Errno(soerr))
	}
}

// Dial connects to addr within timeout, driving the handshake through a
// private event queue. A negative timeout blocks indefinitely. On expiry
// the socket is closed and ErrTimeout returned: a half-open descriptor is
// never leaked.
func Dial(addr string, timeout time.Duration) (*Socket, error) {
	s, err := NewTCP()
	if err != nil {
		return nil, err
	}
	if err := s.StartConnect(addr); err != nil {
		return nil, err
	}
	if s.State() == StateConnected {
		return s, nil
	}

	q, err := poller.New()
	if err != nil {
		s.Close()
		return nil, err
	}
	defer q.Close()
	if err := q.Register(s.h, api.Writable|api.Errored, nil); err != nil {
		s.Close()
		return nil, err
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	events := make([]api.Event, 1)
	for {
		wait := time.Duration(-1)
		if !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait <= 0 {
				s.Close()
				return nil, api.ErrTimeout
			}
		}
		n, err := q.Poll(wait, events)
		if err != nil {
			s.Close()
			return nil, err
		}
		if n == 0 {
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				s.Close()
				return nil, api.ErrTimeout
			}
			continue
		}
		switch err := s.FinishConnect(); err {
		case nil:
			return s, nil
		case api.ErrWouldBlock:
			continue
		default:
			return nil, err
		}
	}
}

// Read fills p with available data. Returns ErrWouldBlock when nothing is
// buffered, ErrConnectionClosed on orderly peer shutdown or reset, and
// closes the socket on any other OS failure.
func (s *Socket) Read(p []byte) (int, error) {
	if !s.h.IsOpen() {
		return 0, api.ErrHandleClosed
	}
	for {
		n, err := unix.Read(s.h.Sysfd(), p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			mapped := oserr.Map("read", err)
			if mapped == api.ErrWouldBlock {
				return 0, mapped
			}
			if oserr.IsConnReset(err) {
				s.Close()
				return 0, api.ErrConnectionClosed
			}
			s.Close()
			return 0, mapped
		}
		if n == 0 && len(p) > 0 {
			s.advance(StateClosing)
			return 0, api.ErrConnectionClosed
		}
		return n, nil
	}
}

// Write pushes p directly to the kernel. Partial writes are legal and
// expected; the caller buffers the remainder (or uses QueueWrite) and
// retries after the next write-readiness event. Returns ErrWouldBlock
// when the kernel accepts nothing, or when queued data exists — queued
// bytes must drain first to preserve ordering.
func (s *Socket) Write(p []byte) (int, error) {
	if s.State() != StateConnected {
		return 0, s.writeStateError()
	}
	s.wmu.Lock()
	queued := s.pendingQ.Length() > 0
	s.wmu.Unlock()
	if queued {
		return 0, api.ErrWouldBlock
	}
	return s.rawWrite(p)
}

func (s *Socket) rawWrite(p []byte) (int, error) {
	for {
		n, err := unix.Write(s.h.Sysfd(), p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			mapped := oserr.Map("write", err)
			if mapped == api.ErrWouldBlock {
				return 0, mapped
			}
			s.Close()
			return 0, mapped
		}
		return n, nil
	}
}

func (s *Socket) writeStateError() error {
	switch s.State() {
	case StateClosing, StateClosed:
		return api.ErrConnectionClosed
	default:
		return api.NewError(api.ErrCodeInternal, "write before connect").
			WithContext("state", s.State().String())
	}
}

// QueueWrite accepts p in full, writing what the kernel takes now and
// buffering the rest for Flush. Only legal while Connected; once Closing,
// no new writes are accepted but already-queued data keeps draining.
func (s *Socket) QueueWrite(p []byte) error {
	if s.State() != StateConnected {
		return s.writeStateError()
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.pendingQ.Length() == 0 {
		n, err := s.rawWrite(p)
		if err != nil && err != api.ErrWouldBlock {
			return err
		}
		p = p[n:]
		if len(p) == 0 {
			return nil
		}
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	s.pendingQ.Add(&wchunk{data: buf})
	s.pendingBytes += len(buf)
	return nil
}

// Flush drains the pending-write queue after a write-readiness event.
// done reports whether the queue is now empty. A deferred write-side
// shutdown is applied once the last byte is out.
func (s *Socket) Flush() (done bool, err error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for s.pendingQ.Length() > 0 {
		c := s.pendingQ.Peek().(*wchunk)
		n, werr := s.rawWrite(c.data[c.off:])
		c.off += n
		s.pendingBytes -= n
		if c.off == len(c.data) {
			s.pendingQ.Remove()
			continue
		}
		if werr == api.ErrWouldBlock {
			return false, nil
		}
		if werr != nil {
			return false, werr
		}
	}
	if s.shutWrite {
		s.shutWrite = false
		_ = unix.Shutdown(s.h.Sysfd(), unix.SHUT_WR)
	}
	return true, nil
}

// PendingBytes reports bytes accepted by QueueWrite not yet written.
func (s *Socket) PendingBytes() int {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.pendingBytes
}

// Shutdown half-closes the chosen directions. The write side waits for
// the pending queue to drain before the kernel-level shutdown; the state
// moves to Closing either way, so no new writes are accepted.
func (s *Socket) Shutdown(dir Direction) error {
	if !s.h.IsOpen() {
		return api.ErrHandleClosed
	}
	if dir&ShutRead != 0 {
		if err := unix.Shutdown(s.h.Sysfd(), unix.SHUT_RD); err != nil {
			return oserr.Map("shutdown", err)
		}
	}
	if dir&ShutWrite != 0 {
		s.wmu.Lock()
		if s.pendingQ.Length() > 0 {
			s.shutWrite = true
			s.wmu.Unlock()
		} else {
			s.wmu.Unlock()
			if err := unix.Shutdown(s.h.Sysfd(), unix.SHUT_WR); err != nil {
				return oserr.Map("shutdown", err)
			}
		}
	}
	s.advance(StateClosing)
	return nil
}

// Close releases the socket. Idempotent.
func (s *Socket) Close() error {
	s.advance(StateClosed)
	return s.h.Close()
}
