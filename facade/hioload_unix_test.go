//go:build linux || darwin || freebsd

// File: facade/hioload_unix_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-io/api"
	"github.com/momentics/hioload-io/reactor"
	"github.com/momentics/hioload-io/transport"
)

func newCore(t *testing.T) *Hioload {
	t.Helper()
	cfg := DefaultConfig()
	cfg.NumReactors = 2
	cfg.NumWorkers = 2
	cfg.PollTimeout = 10 * time.Millisecond
	cfg.ShutdownTimeout = 10 * time.Second
	h, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { h.Stop() })
	h.Start()
	return h
}

// echoConn registers s with its shard and mirrors everything it reads.
func echoConn(h *Hioload) ConnFunc {
	return func(s *transport.Socket, r *reactor.Reactor) {
		buf := h.Buffers().Get(4096)
		_ = r.Register(s.Handle(), api.Readable|api.Errored, func(ready api.Ready) {
			if ready&api.ReadyError != 0 {
				h.Buffers().Put(buf)
				s.Close()
				return
			}
			for {
				n, err := s.Read(buf)
				if n > 0 {
					if h.Metrics() != nil {
						h.Metrics().BytesRead.Add(float64(n))
					}
					_ = s.QueueWrite(buf[:n])
					for {
						done, ferr := s.Flush()
						if ferr != nil || done {
							break
						}
					}
				}
				if err != nil {
					if errors.Is(err, api.ErrConnectionClosed) {
						h.Buffers().Put(buf)
						s.Close()
					}
					return
				}
			}
		})
	}
}

func TestHioload_ServeEcho(t *testing.T) {
	h := newCore(t)
	addr, err := h.Serve("127.0.0.1:0", echoConn(h))
	require.NoError(t, err)

	c, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer c.Close()

	for _, msg := range []string{"ping", "a longer message across the core", "x"} {
		_, err = c.Write([]byte(msg))
		require.NoError(t, err)
		got := make([]byte, len(msg))
		c.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, err = io.ReadFull(c, got)
		require.NoError(t, err)
		assert.Equal(t, msg, string(got))
	}

	require.NotNil(t, h.Metrics())
	assert.GreaterOrEqual(t, testutil.ToFloat64(h.Metrics().ConnectionsAccepted), 1.0)
	assert.Positive(t, testutil.ToFloat64(h.Metrics().EventsDispatched))
}

func TestHioload_MultipleClients(t *testing.T) {
	h := newCore(t)
	addr, err := h.Serve("127.0.0.1:0", echoConn(h))
	require.NoError(t, err)

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func(id int) {
			c, err := net.Dial("tcp", addr.String())
			if err != nil {
				done <- err
				return
			}
			defer c.Close()
			msg := []byte{byte('a' + id), byte('0' + id)}
			if _, err := c.Write(msg); err != nil {
				done <- err
				return
			}
			got := make([]byte, len(msg))
			c.SetReadDeadline(time.Now().Add(5 * time.Second))
			if _, err := io.ReadFull(c, got); err != nil {
				done <- err
				return
			}
			if string(got) != string(msg) {
				done <- errors.New("echo mismatch for client " + string(msg))
				return
			}
			done <- nil
		}(i)
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}
}

func TestHioload_StopClosesListeners(t *testing.T) {
	h := newCore(t)
	addr, err := h.Serve("127.0.0.1:0", echoConn(h))
	require.NoError(t, err)

	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop(), "Stop is idempotent")

	// The listening socket is gone; new connections must be refused.
	_, err = net.DialTimeout("tcp", addr.String(), time.Second)
	assert.Error(t, err)
}

func TestHioload_StopRejoinsAfterTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumReactors = 1
	cfg.NumWorkers = 1
	cfg.PollTimeout = 10 * time.Millisecond
	cfg.ShutdownTimeout = 50 * time.Millisecond
	cfg.DrainOnShutdown = true
	h, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	h.Start()

	// Wedge the single worker so the drain cannot finish within the
	// shutdown window.
	release := make(chan struct{})
	running := make(chan struct{})
	_, err = h.Executor().Submit(func() {
		close(running)
		<-release
	})
	require.NoError(t, err)
	<-running

	require.ErrorIs(t, h.Stop(), api.ErrTimeout)

	// Teardown is still in flight; once the task is released a later
	// call must observe its completion.
	close(release)
	cfg.ShutdownTimeout = 5 * time.Second
	require.NoError(t, h.Stop())
	assert.Zero(t, h.exec.Pending())
}

func TestHioload_ControlSurface(t *testing.T) {
	h := newCore(t)
	ctl := h.Control()

	stats := ctl.Stats()
	assert.Equal(t, 2, stats["reactor.shards"])
	assert.Equal(t, 2, stats["executor.workers"])
	assert.Contains(t, stats, "runtime.goroutines")

	require.NoError(t, ctl.SetConfig(map[string]any{"mode": "test"}))
	assert.Equal(t, "test", ctl.GetConfig()["mode"])
}

func TestHioload_ExecutorIntegration(t *testing.T) {
	h := newCore(t)
	fut, err := h.Executor().Submit(func() {})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fut.Wait(ctx))

	assert.GreaterOrEqual(t, testutil.ToFloat64(h.Metrics().TasksSubmitted), 1.0)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 128, cfg.BatchSize)
	assert.Equal(t, 50*time.Millisecond, cfg.PollTimeout)
	assert.True(t, cfg.EnableMetrics)
	assert.True(t, cfg.DrainOnShutdown)
}
