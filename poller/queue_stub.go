//go:build !linux && !darwin && !freebsd

// File: poller/queue_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub factory for platforms without a supported readiness facility.

package poller

import (
	"github.com/momentics/hioload-io/api"
)

// New returns an error for unsupported platforms.
func New() (api.EventQueue, error) {
	return nil, api.WrapError(api.ErrCodeInternal, "poller", api.ErrNotSupported)
}
