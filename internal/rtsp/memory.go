package rtsp

import "sync"

// MemoryRuntime is an in-memory MountpointRuntime double for tests and
// for local/dev runs that have no real RTSP process attached.
type MemoryRuntime struct {
	mu    sync.Mutex
	mount map[string]mountpoint
}

type mountpoint struct {
	description string
	hook        ConstructHook
}

// NewMemoryRuntime returns an empty MemoryRuntime.
func NewMemoryRuntime() *MemoryRuntime {
	return &MemoryRuntime{mount: make(map[string]mountpoint)}
}

func (m *MemoryRuntime) Register(path, description string, hook ConstructHook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mount[path] = mountpoint{description: description, hook: hook}
	return nil
}

func (m *MemoryRuntime) Unregister(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mount, path)
	return nil
}

// SimulateClientConnect fires path's construction hook with dotGraph, as
// if a client had just connected and the runtime had just materialised
// the pipeline. Tests use this to exercise Binder.DotGraphForMountpoint's
// caching behaviour without a real RTSP client.
func (m *MemoryRuntime) SimulateClientConnect(path string, dotGraph []byte) {
	m.mu.Lock()
	mp, ok := m.mount[path]
	m.mu.Unlock()
	if !ok || mp.hook == nil {
		return
	}
	mp.hook(path, dotGraph)
}
