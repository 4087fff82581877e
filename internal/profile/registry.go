package profile

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/TUM-Dev/VMP/internal/logging"
	"github.com/TUM-Dev/VMP/internal/template"
)

// DriftCounter is incremented once per detected profile-directory change.
// Satisfied by a prometheus counter; nil is a valid no-op value.
type DriftCounter interface {
	Inc()
}

// Registry loads, scores, and exposes the active profile for a single
// process run. The active profile never changes after construction —
// per "profiles are immutable after load", a directory watcher observes
// drift but never swaps the live profile.
type Registry struct {
	dir      string
	platform string

	mu     sync.RWMutex
	active Profile

	drift   DriftCounter
	watcher *fsnotify.Watcher
}

// NewRegistry loads every profile in dir, selects the active one for
// platform, and returns the registry. Fails with NoCompatibleProfileError
// if nothing scores >= 0.
func NewRegistry(dir, platform string, drift DriftCounter) (*Registry, error) {
	profiles, err := LoadDirectory(dir)
	if err != nil {
		return nil, err
	}

	active, err := Select(profiles, platform)
	if err != nil {
		return nil, err
	}

	return &Registry{
		dir:      dir,
		platform: platform,
		active:   active,
		drift:    drift,
	}, nil
}

// Active returns the profile selected at construction time.
func (r *Registry) Active() Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// PipelineFor selects profile[kind][type] and expands it through
// internal/template with the given variables.
func (r *Registry) PipelineFor(kind Kind, typ string, variables map[string]string) (string, error) {
	r.mu.RLock()
	active := r.active
	r.mu.RUnlock()

	mapping, ok := active.mapping(kind)
	if !ok {
		return "", &TemplateNotFoundError{Kind: kind, Type: typ}
	}
	tmpl, ok := mapping[typ]
	if !ok {
		return "", &TemplateNotFoundError{Kind: kind, Type: typ}
	}
	return template.Expand(tmpl, variables)
}

// ReloadReport is the diagnostic result of Reload: what would be
// selected if the process restarted now, without installing it.
type ReloadReport struct {
	WouldSelect Profile
	Ranked      []Profile
}

// Reload re-scans the profile directory and re-scores candidates against
// the runtime platform without installing the result — a diagnostic for
// the control plane's profile-listing endpoint. The registry's Active
// profile is never changed by this call.
func (r *Registry) Reload(_ context.Context) (ReloadReport, error) {
	profiles, err := LoadDirectory(r.dir)
	if err != nil {
		return ReloadReport{}, err
	}

	winner, err := Select(profiles, r.platform)
	if err != nil {
		return ReloadReport{}, err
	}

	return ReloadReport{
		WouldSelect: winner,
		Ranked:      rank(profiles, r.platform),
	}, nil
}

// WatchDrift starts an fsnotify watcher on the profile directory. On any
// change it logs a warning and increments the drift counter; it never
// reloads the active profile. The watcher stops when ctx is cancelled.
func (r *Registry) WatchDrift(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("profile: create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("profile: watch directory %s: %w", r.dir, err)
	}
	r.watcher = watcher

	go r.watchLoop(ctx)
	return nil
}

func (r *Registry) watchLoop(ctx context.Context) {
	logger := logging.WithComponent("profile")
	defer func() { _ = r.watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			logger.Warn().
				Str("path", ev.Name).
				Str("op", ev.Op.String()).
				Msg("profile directory changed, restart required to apply")
			if r.drift != nil {
				r.drift.Inc()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("profile directory watcher error")
		}
	}
}
