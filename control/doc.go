// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, configuration control, and debug introspection layer.
// Part of the hioload-io event-driven I/O core.
//
// Provides concurrent-safe state handling primitives including:
//   - Immutable snapshot config reads and atomic updates
//   - Runtime observers for hot-reload
//   - Prometheus-backed telemetry for dispatch, executor and accept paths
//   - State export, debug hooks, and probe registration
package control
