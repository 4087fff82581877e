package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TUM-Dev/VMP/internal/broker"
	"github.com/TUM-Dev/VMP/internal/channel"
	"github.com/TUM-Dev/VMP/internal/clock"
	"github.com/TUM-Dev/VMP/internal/config"
	"github.com/TUM-Dev/VMP/internal/profile"
	"github.com/TUM-Dev/VMP/internal/rtsp"
	"github.com/TUM-Dev/VMP/internal/supervisor"
)

const adapterTestProfile = `
identifier: org.example.control
version: "1.0"
supportedPlatforms: [all]
channels:
  camera: "videotestsrc"
mountpoints:
  relay: "rtspclientsink location=rtsp://{path}"
recordings:
  default: "filesink location={path}"
audioProviders: {}
`

type fakePipeline struct{ bus chan supervisor.BusMessage }

func (p *fakePipeline) SetState(supervisor.RuntimeState) error { return nil }
func (p *fakePipeline) SendEOS() error                         { return nil }
func (p *fakePipeline) Bus() <-chan supervisor.BusMessage      { return p.bus }
func (p *fakePipeline) DotGraph() []byte                       { return []byte("digraph{}") }
func (p *fakePipeline) Close() error                           { return nil }

type fakeRuntime struct{}

func (fakeRuntime) Parse(string) (supervisor.Pipeline, error) {
	return &fakePipeline{bus: make(chan supervisor.BusMessage, 1)}, nil
}

func newAdapterForTest(t *testing.T) (*Adapter, *rtsp.MemoryRuntime) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(adapterTestProfile), 0o644))
	profiles, err := profile.NewRegistry(dir, "any", nil)
	require.NoError(t, err)

	fc := clock.NewFake(time.Unix(1000, 0))

	channels, err := channel.NewRegistry([]config.ChannelConfig{{Name: "camera", Type: "camera"}}, profiles, fakeRuntime{}, fc)
	require.NoError(t, err)
	channels.StartAll()

	mtRuntime := rtsp.NewMemoryRuntime()
	mountpoints, err := rtsp.NewBinder([]config.MountpointConfig{{Name: "lh1", Path: "/lh1", Type: "relay"}}, profiles, mtRuntime)
	require.NoError(t, err)

	recordings := broker.New(profiles, fakeRuntime{}, fc, t.TempDir(), nil)

	cfg := config.Config{Name: "test", HTTPPassword: "secret"}

	return New(channels, mountpoints, recordings, profiles, cfg), mtRuntime
}

func TestAdapterChannelsReflectsRegistrySnapshot(t *testing.T) {
	a, _ := newAdapterForTest(t)

	statuses := a.Channels()
	require.Len(t, statuses, 1)
	require.Equal(t, "camera", statuses[0].Name)
	require.Equal(t, supervisor.StatePlaying, statuses[0].State)
}

func TestAdapterChannelGraphUnknownNameIsNil(t *testing.T) {
	a, _ := newAdapterForTest(t)
	require.Nil(t, a.ChannelGraph("does-not-exist"))
}

func TestAdapterMountpointGraphCachesAfterConnect(t *testing.T) {
	a, mtRuntime := newAdapterForTest(t)

	require.Nil(t, a.MountpointGraph("lh1"))

	mtRuntime.SimulateClientConnect("/lh1", []byte("digraph { x }"))
	require.Equal(t, []byte("digraph { x }"), a.MountpointGraph("lh1"))
}

func TestAdapterScheduleAndListRecordings(t *testing.T) {
	a, _ := newAdapterForTest(t)

	entry, err := a.ScheduleRecording(context.Background(), broker.StartRequest{
		UID:      "U1",
		Path:     filepath.Join(t.TempDir(), "u1.mp4"),
		Deadline: time.Unix(1000, 0).Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, "U1", entry.UID)

	entries := a.Recordings()
	require.Len(t, entries, 1)
	require.Equal(t, "U1", entries[0].UID)
}

func TestAdapterConfigurationRedactsPassword(t *testing.T) {
	a, _ := newAdapterForTest(t)

	cfg := a.Configuration()
	require.Equal(t, "***", cfg.HTTPPassword)
}
