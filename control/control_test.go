// File: control/control_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStore_SnapshotIsolation(t *testing.T) {
	cs := NewConfigStore()
	cs.SetConfig(map[string]any{"a": 1})

	snap := cs.GetSnapshot()
	snap["a"] = 99
	assert.Equal(t, 1, cs.GetSnapshot()["a"], "snapshot must be a copy")
}

func TestConfigStore_MergeAndReload(t *testing.T) {
	cs := NewConfigStore()
	var calls int
	cs.OnReload(func() { calls++ })

	cs.SetConfig(map[string]any{"a": 1, "b": "x"})
	// Reload hooks run synchronously, so the count is exact here.
	assert.Equal(t, 1, calls)

	cs.SetConfig(map[string]any{"b": "y"})
	assert.Equal(t, 2, calls)

	snap := cs.GetSnapshot()
	assert.Equal(t, 1, snap["a"], "merge keeps untouched keys")
	assert.Equal(t, "y", snap["b"])
}

func TestConfigStore_ConcurrentAccess(t *testing.T) {
	cs := NewConfigStore()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				cs.SetConfig(map[string]any{"k": id})
				_ = cs.GetSnapshot()
			}
		}(g)
	}
	wg.Wait()
}

func TestController_Control(t *testing.T) {
	c := NewController(nil, nil, nil)

	require.NoError(t, c.SetConfig(map[string]any{"poll_timeout_ms": 50}))
	assert.Equal(t, 50, c.GetConfig()["poll_timeout_ms"])

	c.RegisterDebugProbe("answer", func() any { return 42 })
	assert.Equal(t, 42, c.Stats()["answer"])
	assert.NotNil(t, c.Metrics())
}

func TestDebugProbes_Runtime(t *testing.T) {
	dp := NewDebugProbes()
	RegisterRuntimeProbes(dp)
	state := dp.DumpState()
	assert.Contains(t, state, "runtime.cpus")
	assert.Contains(t, state, "runtime.goroutines")
	assert.Positive(t, state["runtime.cpus"].(int))
}

func TestMetrics_CountersRegistered(t *testing.T) {
	m := NewMetrics()
	m.EventsDispatched.Inc()
	m.EventsDispatched.Inc()
	m.DispatchErrors.Inc()
	m.ActiveRegistrations.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsDispatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchErrors))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveRegistrations))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"hioload_events_dispatched_total",
		"hioload_dispatch_errors_total",
		"hioload_registrations_total",
		"hioload_executor_tasks_submitted_total",
		"hioload_connections_accepted_total",
	} {
		assert.True(t, names[want], "missing metric family %s", want)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on collector registration.
	a := NewMetrics()
	b := NewMetrics()
	a.EventsDispatched.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.EventsDispatched))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EventsDispatched))
}
