//go:build linux || darwin || freebsd

// File: facade/serve_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listener wiring: the accept loop is itself a completion action on the
// listener's shard, and every accepted socket is handed to the caller
// together with the reactor shard that owns it.

package facade

import (
	"errors"
	"net"

	"golang.org/x/time/rate"

	"github.com/momentics/hioload-io/api"
	"github.com/momentics/hioload-io/reactor"
	"github.com/momentics/hioload-io/transport"
)

// ConnFunc receives each accepted socket and the reactor shard that owns
// its handle. It runs on the listener's shard and must not block; it
// typically registers the socket with r and returns.
type ConnFunc func(s *transport.Socket, r *reactor.Reactor)

// Serve starts accepting on addr. The returned address carries the
// kernel-chosen port when addr ends in ":0". The listener is closed by
// Stop.
func (h *Hioload) Serve(addr string, onConn ConnFunc) (net.Addr, error) {
	ln, err := transport.Listen(addr, h.cfg.ListenBacklog)
	if err != nil {
		return nil, err
	}
	if h.cfg.AcceptRate > 0 {
		burst := h.cfg.AcceptBurst
		if burst <= 0 {
			burst = 1
		}
		ln.SetAcceptRateLimit(rate.Limit(h.cfg.AcceptRate), burst)
	}

	shard := h.group.ReactorFor(ln.Handle())
	action := func(ready api.Ready) {
		if ready&api.ReadyError != 0 {
			_ = ln.Close()
			return
		}
		for {
			s, err := ln.Accept()
			if err != nil {
				if !errors.Is(err, api.ErrWouldBlock) && ln.Handle().IsOpen() {
					h.log.Error("accept failed", "error", err)
				}
				return
			}
			if h.metrics != nil {
				h.metrics.ConnectionsAccepted.Inc()
			}
			onConn(s, h.group.ReactorFor(s.Handle()))
		}
	}
	if err := shard.Register(ln.Handle(), api.Readable|api.Errored, action); err != nil {
		_ = ln.Close()
		return nil, err
	}
	h.trackListener(ln)
	return ln.Addr(), nil
}
