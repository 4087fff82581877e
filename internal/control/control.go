// Package control is the pure, transport-agnostic control adapter: it
// translates operator-visible actions into calls against the channel
// registry, mountpoint binder, recording broker, and configuration
// snapshot. It knows nothing about HTTP — that lives in
// internal/control/httpapi.
package control

import (
	"context"

	"github.com/TUM-Dev/VMP/internal/broker"
	"github.com/TUM-Dev/VMP/internal/channel"
	"github.com/TUM-Dev/VMP/internal/config"
	"github.com/TUM-Dev/VMP/internal/profile"
	"github.com/TUM-Dev/VMP/internal/rtsp"
)

// Adapter wires the four core components the control plane exposes.
type Adapter struct {
	channels    *channel.Registry
	mountpoints *rtsp.Binder
	recordings  *broker.Broker
	profiles    *profile.Registry
	cfg         config.Config
}

// New constructs an Adapter over the process's already-started
// collaborators.
func New(channels *channel.Registry, mountpoints *rtsp.Binder, recordings *broker.Broker, profiles *profile.Registry, cfg config.Config) *Adapter {
	return &Adapter{
		channels:    channels,
		mountpoints: mountpoints,
		recordings:  recordings,
		profiles:    profiles,
		cfg:         cfg,
	}
}

// Channels lists every configured channel's name, type, state, and
// restart count.
func (a *Adapter) Channels() []channel.Status {
	return a.channels.Snapshot()
}

// ChannelGraph returns name's live dot graph, or nil if name is unknown
// or has no live pipeline.
func (a *Adapter) ChannelGraph(name string) []byte {
	return a.channels.DotGraphFor(name)
}

// MountpointGraph returns name's cached dot graph, or nil if name is
// unknown or not yet materialised.
func (a *Adapter) MountpointGraph(name string) []byte {
	return a.mountpoints.DotGraphForMountpoint(name)
}

// ScheduleRecording starts a new recording from req. The returned error
// is a *broker.ScheduleRejectedError on every rejection path.
func (a *Adapter) ScheduleRecording(ctx context.Context, req broker.StartRequest) (*broker.Entry, error) {
	return a.recordings.Start(ctx, req)
}

// Recordings lists every active recording.
func (a *Adapter) Recordings() []broker.Entry {
	return a.recordings.List()
}

// RecordingHistory returns up to limit of the most recent recording
// start/end transitions, newest first — backing
// GET /api/v1/recordings?includeHistory=1.
func (a *Adapter) RecordingHistory(ctx context.Context, limit int) ([]broker.HistoryRow, error) {
	return a.recordings.History().List(ctx, limit)
}

// Configuration returns a redacted snapshot of the loaded configuration.
func (a *Adapter) Configuration() config.Config {
	return a.cfg.Snapshot()
}

// ProfileDiagnostics reports what the registry would select if the
// process restarted now, without installing it — backing the
// GET /api/v1/profiles diagnostic endpoint.
func (a *Adapter) ProfileDiagnostics(ctx context.Context) (profile.ReloadReport, error) {
	return a.profiles.Reload(ctx)
}

// Ready reports whether the daemon has a usable profile and at least
// attempted to start its channels — backing GET /readyz.
func (a *Adapter) Ready() bool {
	return a.profiles != nil && a.channels != nil
}
