package rtsp

import (
	"fmt"
	"sync"

	"github.com/TUM-Dev/VMP/internal/config"
	"github.com/TUM-Dev/VMP/internal/logging"
	"github.com/TUM-Dev/VMP/internal/profile"
)

// Binder expands every configured mountpoint's template through the
// active profile and registers it with a MountpointRuntime, caching the
// dot graph the runtime captures the first time a client connects.
type Binder struct {
	runtime MountpointRuntime

	mu    sync.RWMutex
	names []string
	path  map[string]string // name -> mount path
	graph map[string][]byte // mount path -> cached dot graph
}

// NewBinder expands and registers every mountpoint in mountpoints
// against profiles, in configuration order. Construction fails if any
// mountpoint's template placeholders cannot be resolved — per the
// invariant "every mountpoint's template placeholders are resolvable...;
// start-up fails otherwise."
func NewBinder(mountpoints []config.MountpointConfig, profiles *profile.Registry, runtime MountpointRuntime) (*Binder, error) {
	b := &Binder{
		runtime: runtime,
		path:    make(map[string]string, len(mountpoints)),
		graph:   make(map[string][]byte, len(mountpoints)),
	}

	for _, mp := range mountpoints {
		variables := map[string]string{"mountpointName": mp.Name, "path": mp.Path}
		for k, v := range mp.Properties {
			variables["properties."+k] = v
		}

		description, err := profiles.PipelineFor(profile.KindMountpoints, mp.Type, variables)
		if err != nil {
			return nil, fmt.Errorf("rtsp: build mountpoint %q: %w", mp.Name, err)
		}

		path := mp.Path
		hook := b.captureHook(path)
		if err := runtime.Register(path, description, hook); err != nil {
			return nil, fmt.Errorf("rtsp: register mountpoint %q: %w", mp.Name, err)
		}

		b.names = append(b.names, mp.Name)
		b.path[mp.Name] = path
	}

	return b, nil
}

func (b *Binder) captureHook(path string) ConstructHook {
	logger := logging.WithComponent("rtsp")
	return func(p string, dotGraph []byte) {
		b.mu.Lock()
		b.graph[path] = dotGraph
		b.mu.Unlock()
		logger.Debug().Str("mountpoint", path).Int("bytes", len(dotGraph)).Msg("captured mountpoint dot graph")
	}
}

// DotGraphForMountpoint returns the cached dot graph for the mountpoint
// named name, or nil if name is unknown or no client has connected yet.
// The cache persists across reconnects: a second call returns the same
// bytes until a new construction hook fires.
func (b *Binder) DotGraphForMountpoint(name string) []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	path, ok := b.path[name]
	if !ok {
		return nil
	}
	return b.graph[path]
}

// Names returns every bound mountpoint's name, in configuration order.
func (b *Binder) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.names...)
}

// Close unregisters every bound mountpoint from the underlying
// MountpointRuntime, in configuration order, as part of the daemon's
// ordered shutdown sequence.
func (b *Binder) Close() error {
	b.mu.RLock()
	paths := make([]string, 0, len(b.names))
	for _, name := range b.names {
		paths = append(paths, b.path[name])
	}
	b.mu.RUnlock()

	var firstErr error
	for _, path := range paths {
		if err := b.runtime.Unregister(path); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("rtsp: unregister %q: %w", path, err)
		}
	}
	return firstErr
}
