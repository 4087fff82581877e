package rtsp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TUM-Dev/VMP/internal/config"
	"github.com/TUM-Dev/VMP/internal/profile"
)

const testProfileYAML = `
identifier: org.example.binder
version: "1.0"
supportedPlatforms: [all]
channels: {}
mountpoints:
  relay: "rtspclientsink location=rtsp://{path}"
recordings: {}
audioProviders: {}
`

func newTestRegistry(t *testing.T) *profile.Registry {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(testProfileYAML), 0o644))
	reg, err := profile.NewRegistry(dir, "any", nil)
	require.NoError(t, err)
	return reg
}

func TestDotGraphForMountpointNilBeforeConnect(t *testing.T) {
	runtime := NewMemoryRuntime()
	mountpoints := []config.MountpointConfig{
		{Name: "lecture-hall-1", Path: "/lh1", Type: "relay"},
	}

	b, err := NewBinder(mountpoints, newTestRegistry(t), runtime)
	require.NoError(t, err)

	require.Nil(t, b.DotGraphForMountpoint("lecture-hall-1"))
}

func TestDotGraphForMountpointCachesAfterConnect(t *testing.T) {
	runtime := NewMemoryRuntime()
	mountpoints := []config.MountpointConfig{
		{Name: "lecture-hall-1", Path: "/lh1", Type: "relay"},
	}

	b, err := NewBinder(mountpoints, newTestRegistry(t), runtime)
	require.NoError(t, err)

	runtime.SimulateClientConnect("/lh1", []byte("digraph { a -> b }"))

	first := b.DotGraphForMountpoint("lecture-hall-1")
	require.Equal(t, []byte("digraph { a -> b }"), first)

	// A second call returns the same cached bytes without a new connect.
	second := b.DotGraphForMountpoint("lecture-hall-1")
	require.Equal(t, first, second)
}

func TestDotGraphForMountpointUnknownNameReturnsNil(t *testing.T) {
	runtime := NewMemoryRuntime()
	b, err := NewBinder(nil, newTestRegistry(t), runtime)
	require.NoError(t, err)

	require.Nil(t, b.DotGraphForMountpoint("does-not-exist"))
}

func TestNewBinderFailsOnUnresolvedPlaceholder(t *testing.T) {
	runtime := NewMemoryRuntime()
	mountpoints := []config.MountpointConfig{
		{Name: "broken", Path: "/broken", Type: "relay", Properties: map[string]string{
			"unrelated": "value",
		}},
	}
	reg := newTestRegistry(t)

	// The "relay" template only needs {path}, which is always supplied,
	// so force a miss by pointing at a type with an unresolvable
	// placeholder instead.
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(`
identifier: org.example.binder.broken
version: "1.0"
supportedPlatforms: [all]
channels: {}
mountpoints:
  relay: "rtspclientsink location=rtsp://{path} user={properties.username}"
recordings: {}
audioProviders: {}
`), 0o644))
	broken, err := profile.NewRegistry(dir, "any", nil)
	require.NoError(t, err)
	_ = reg

	_, err = NewBinder(mountpoints, broken, runtime)
	require.Error(t, err)
}
