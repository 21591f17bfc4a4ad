//go:build linux || darwin || freebsd

// File: transport/listener_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP listener. Accept never blocks; the owning multiplexer
// retries on the next read-readiness event. An optional token-bucket
// limiter throttles the accept rate: with a level-triggered queue a
// denied accept is simply re-reported on the next poll.

package transport

import (
	"net"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/momentics/hioload-io/api"
	"github.com/momentics/hioload-io/internal/oserr"
	"github.com/momentics/hioload-io/poller"
)

// Listener is a non-blocking TCP acceptor.
type Listener struct {
	h       *poller.Handle
	laddr   *net.TCPAddr
	limiter *rate.Limiter
}

// Listen binds addr and starts listening with the given backlog.
// backlog <= 0 selects the system maximum.
func Listen(addr string, backlog int) (*Listener, error) {
	ta, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, api.WrapError(api.ErrCodeIO, "resolve", err)
	}
	sa, family, err := tcpSockaddr(ta)
	if err != nil {
		return nil, err
	}
	fd, err := rawTCPSocket(family)
	if err != nil {
		return nil, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, oserr.Map("bind", err)
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, oserr.Map("listen", err)
	}
	return &Listener{h: poller.NewHandle(fd), laddr: localTCPAddr(fd)}, nil
}

// Handle returns the poller handle for readiness registration.
func (l *Listener) Handle() *poller.Handle { return l.h }

// Addr returns the bound address, including the kernel-chosen port when
// listening on ":0".
func (l *Listener) Addr() net.Addr { return l.laddr }

// SetAcceptRateLimit throttles accepts to limit with the given burst.
// A zero limit removes throttling.
func (l *Listener) SetAcceptRateLimit(limit rate.Limit, burst int) {
	if limit == 0 {
		l.limiter = nil
		return
	}
	l.limiter = rate.NewLimiter(limit, burst)
}

// Accept takes one pending connection. Returns ErrWouldBlock when none is
// queued or when the rate limiter denies a token.
func (l *Listener) Accept() (*Socket, error) {
	if !l.h.IsOpen() {
		return nil, api.ErrHandleClosed
	}
	if l.limiter != nil && !l.limiter.Allow() {
		return nil, api.ErrWouldBlock
	}
	fd, sa, err := rawAccept(l.h.Sysfd())
	if err != nil {
		return nil, err
	}
	s := newSocket(fd, StateConnected)
	if ra := sockaddrToTCP(sa); ra != nil {
		s.raddr = ra
	}
	return s, nil
}

// Close releases the listening socket. Idempotent.
func (l *Listener) Close() error { return l.h.Close() }
