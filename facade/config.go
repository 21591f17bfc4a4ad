// File: facade/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import "time"

// Config holds parameters immutable per run. All fields influence the
// initialization of internal components; dynamic values live in the
// Control interface instead.
type Config struct {
	NumReactors     int           // Multiplexer shards; <=0 selects NumCPU
	NumWorkers      int           // Executor worker goroutines; <=0 selects NumCPU
	BatchSize       int           // Events drained per poll
	PollTimeout     time.Duration // Bounded poll for periodic housekeeping
	PinWorkers      bool          // Pin reactor workers to CPUs
	EnableMetrics   bool          // Collect Prometheus telemetry
	ListenBacklog   int           // Accept backlog; <=0 selects the system maximum
	AcceptRate      float64       // Accepts per second per listener; 0 disables
	AcceptBurst     int           // Token bucket burst for AcceptRate
	DrainOnShutdown bool          // Finish queued executor tasks on Stop
	ShutdownTimeout time.Duration // Upper bound for graceful Stop
}

// DefaultConfig returns the canonical configuration.
func DefaultConfig() *Config {
	return &Config{
		NumReactors:     0,
		NumWorkers:      0,
		BatchSize:       128,
		PollTimeout:     50 * time.Millisecond,
		EnableMetrics:   true,
		DrainOnShutdown: true,
		ShutdownTimeout: 5 * time.Second,
	}
}
