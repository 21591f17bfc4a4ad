// control/controller.go
// Author: momentics <momentics@gmail.com>
//
// Controller binds the config store, metrics and debug probes behind the
// api.Control contract.

package control

import (
	"github.com/momentics/hioload-io/api"
)

// Controller implements api.Control.
type Controller struct {
	cfg     *ConfigStore
	metrics *Metrics
	probes  *DebugProbes
}

// NewController wires the three control services together. Nil arguments
// get fresh instances.
func NewController(cfg *ConfigStore, metrics *Metrics, probes *DebugProbes) *Controller {
	if cfg == nil {
		cfg = NewConfigStore()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if probes == nil {
		probes = NewDebugProbes()
	}
	return &Controller{cfg: cfg, metrics: metrics, probes: probes}
}

var _ api.Control = (*Controller)(nil)

// GetConfig returns a snapshot of the dynamic configuration.
func (c *Controller) GetConfig() map[string]any { return c.cfg.GetSnapshot() }

// SetConfig merges values and triggers reload listeners.
func (c *Controller) SetConfig(cfg map[string]any) error {
	c.cfg.SetConfig(cfg)
	return nil
}

// Stats exposes debug probe output as the stats surface.
func (c *Controller) Stats() map[string]any { return c.probes.DumpState() }

// OnReload registers a config reload listener.
func (c *Controller) OnReload(fn func()) { c.cfg.OnReload(fn) }

// RegisterDebugProbe inserts a named probe.
func (c *Controller) RegisterDebugProbe(name string, fn func() any) {
	c.probes.RegisterProbe(name, fn)
}

// Metrics returns the bound metrics set.
func (c *Controller) Metrics() *Metrics { return c.metrics }
