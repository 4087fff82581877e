// Package channel builds and owns one pipeline supervisor per configured
// channel, wiring each to a growing-delay restart policy on failure.
package channel

import (
	"fmt"

	"github.com/TUM-Dev/VMP/internal/clock"
	"github.com/TUM-Dev/VMP/internal/config"
	"github.com/TUM-Dev/VMP/internal/logging"
	"github.com/TUM-Dev/VMP/internal/profile"
	"github.com/TUM-Dev/VMP/internal/supervisor"
)

// Status is a read-only snapshot of one channel's supervisor.
type Status struct {
	Name         string
	Type         string
	State        supervisor.State
	RestartCount int
}

type entry struct {
	name     string
	typ      string
	sup      *supervisor.Supervisor
	delegate *restartDelegate
}

// Registry owns one supervisor per configured channel.
type Registry struct {
	order   []string
	entries map[string]*entry
}

// NewRegistry constructs one supervisor per channel in cfg, expanding its
// pipeline description from the active profile. Construction fails
// outright if a channel's type has no matching template — that is a
// configuration error, not a runtime start failure.
func NewRegistry(channels []config.ChannelConfig, profiles *profile.Registry, runtime supervisor.Runtime, clk clock.Clock) (*Registry, error) {
	r := &Registry{
		entries: make(map[string]*entry, len(channels)),
	}

	for _, c := range channels {
		variables := map[string]string{"channelName": c.Name}
		for k, v := range c.Properties {
			variables["properties."+k] = v
		}

		description, err := profiles.PipelineFor(profile.KindChannels, c.Type, variables)
		if err != nil {
			return nil, fmt.Errorf("channel: build %q: %w", c.Name, err)
		}

		d := &restartDelegate{clk: clk}
		sup := supervisor.New(c.Name, description, runtime, d)
		d.sup = sup

		r.entries[c.Name] = &entry{name: c.Name, typ: c.Type, sup: sup, delegate: d}
		r.order = append(r.order, c.Name)
	}

	return r, nil
}

// StartAll starts every channel's supervisor in configuration order. A
// start failure is logged and left in the Error state; it does not abort
// the remaining channels.
func (r *Registry) StartAll() {
	logger := logging.WithComponent("channel")
	for _, name := range r.order {
		e := r.entries[name]
		if !e.sup.Start() {
			logger.Warn().Str("channel", name).Msg("channel pipeline failed to start")
		}
	}
}

// StopAll stops every channel's supervisor in the reverse of
// configuration (start) order, matching the daemon's required shutdown
// sequence.
func (r *Registry) StopAll() {
	for i := len(r.order) - 1; i >= 0; i-- {
		e := r.entries[r.order[i]]
		e.delegate.cancelPending()
		e.sup.Stop()
	}
}

// SupervisorFor returns the supervisor for name, or nil if name is not
// configured.
func (r *Registry) SupervisorFor(name string) *supervisor.Supervisor {
	e, ok := r.entries[name]
	if !ok {
		return nil
	}
	return e.sup
}

// Snapshot returns an MT-safe read of every channel's name, type, state,
// and restart count, in configuration order.
func (r *Registry) Snapshot() []Status {
	statuses := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		statuses = append(statuses, Status{
			Name:         e.name,
			Type:         e.typ,
			State:        e.sup.State(),
			RestartCount: e.sup.Statistics().RestartCount,
		})
	}
	return statuses
}

// DotGraphFor returns the dot-graph introspection dump for name's live
// pipeline, or nil if name is unknown or has no live pipeline.
func (r *Registry) DotGraphFor(name string) []byte {
	e, ok := r.entries[name]
	if !ok {
		return nil
	}
	return e.sup.DotGraph()
}
