// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus-backed telemetry for the I/O core: dispatch throughput and
// failure isolation counters, live registration gauge, executor and
// accept-path counters. Each Metrics value owns a private registry so
// independent instances never collide on collector registration.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics aggregates the core runtime counters.
type Metrics struct {
	registry *prometheus.Registry

	EventsDispatched    prometheus.Counter
	DispatchErrors      prometheus.Counter
	Registrations       prometheus.Counter
	ActiveRegistrations prometheus.Gauge
	TasksSubmitted      prometheus.Counter
	TasksCompleted      prometheus.Counter
	ConnectionsAccepted prometheus.Counter
	BytesRead           prometheus.Counter
	BytesWritten        prometheus.Counter
}

// NewMetrics builds a Metrics with its own Prometheus registry, including
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		EventsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hioload_events_dispatched_total",
			Help: "Readiness events dispatched to completion actions.",
		}),
		DispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hioload_dispatch_errors_total",
			Help: "Completion actions that panicked and were isolated.",
		}),
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hioload_registrations_total",
			Help: "Handle registrations accepted by event queues.",
		}),
		ActiveRegistrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hioload_active_registrations",
			Help: "Handles currently registered across event queues.",
		}),
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hioload_executor_tasks_submitted_total",
			Help: "Tasks accepted by the executor.",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hioload_executor_tasks_completed_total",
			Help: "Tasks that finished execution.",
		}),
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hioload_connections_accepted_total",
			Help: "Connections accepted by listeners.",
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hioload_bytes_read_total",
			Help: "Bytes read from sockets.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hioload_bytes_written_total",
			Help: "Bytes written to sockets.",
		}),
	}
	reg.MustRegister(
		m.EventsDispatched,
		m.DispatchErrors,
		m.Registrations,
		m.ActiveRegistrations,
		m.TasksSubmitted,
		m.TasksCompleted,
		m.ConnectionsAccepted,
		m.BytesRead,
		m.BytesWritten,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
