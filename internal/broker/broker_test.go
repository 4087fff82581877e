package broker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TUM-Dev/VMP/internal/clock"
	"github.com/TUM-Dev/VMP/internal/profile"
	"github.com/TUM-Dev/VMP/internal/supervisor"
)

const testProfile = `
identifier: org.example.rec
version: "1.0"
supportedPlatforms: [all]
channels: {}
mountpoints: {}
audioProviders: {}
recordings:
  default: "filesink location={path}"
`

func newTestRegistry(t *testing.T) *profile.Registry {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(testProfile), 0o644))
	reg, err := profile.NewRegistry(dir, "any", nil)
	require.NoError(t, err)
	return reg
}

type fakePipeline struct {
	mu  sync.Mutex
	bus chan supervisor.BusMessage
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{bus: make(chan supervisor.BusMessage, 4)}
}

func (p *fakePipeline) SetState(supervisor.RuntimeState) error { return nil }
func (p *fakePipeline) SendEOS() error {
	p.bus <- supervisor.BusMessage{Kind: supervisor.BusEOS}
	return nil
}
func (p *fakePipeline) Bus() <-chan supervisor.BusMessage { return p.bus }
func (p *fakePipeline) DotGraph() []byte                  { return nil }
func (p *fakePipeline) Close() error                      { return nil }

type fakeRuntime struct {
	mu       sync.Mutex
	failNext bool
}

func (r *fakeRuntime) Parse(string) (supervisor.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return nil, errParse
	}
	return newFakePipeline(), nil
}

var errParse = &parseError{}

type parseError struct{}

func (*parseError) Error() string { return "parse failed" }

func TestStartRejectsPastDeadline(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	b := New(newTestRegistry(t), &fakeRuntime{}, fc, t.TempDir(), nil)

	_, err := b.Start(context.Background(), StartRequest{UID: "U1", Path: "/tmp/x.mp4", Deadline: fc.Now().Add(-time.Second)})
	require.Error(t, err)
	var rej *ScheduleRejectedError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ReasonDeadlinePast, rej.Reason)
}

func TestStartRejectsDuplicateUID(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	b := New(newTestRegistry(t), &fakeRuntime{}, fc, t.TempDir(), nil)

	_, err := b.Start(context.Background(), StartRequest{UID: "U1", Path: filepath.Join(t.TempDir(), "u1.mp4"), Deadline: fc.Now().Add(time.Hour)})
	require.NoError(t, err)

	_, err = b.Start(context.Background(), StartRequest{UID: "U1", Path: filepath.Join(t.TempDir(), "u1b.mp4"), Deadline: fc.Now().Add(time.Hour)})
	require.Error(t, err)
	var rej *ScheduleRejectedError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ReasonUIDActive, rej.Reason)
}

func TestConcurrentStartWithSameUIDOnlyOneSucceeds(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	b := New(newTestRegistry(t), &fakeRuntime{}, fc, t.TempDir(), nil)

	const n = 8
	var wg sync.WaitGroup
	successes := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Start(context.Background(), StartRequest{
				UID:      "U-concurrent",
				Path:     filepath.Join(t.TempDir(), "rec.mp4"),
				Deadline: fc.Now().Add(time.Hour),
			})
			successes[i] = err == nil
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	require.Equal(t, 1, count, "exactly one concurrent Start with the same uid must succeed")
}

func TestStartFailurePropagatesReasonStartFailed(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	rt := &fakeRuntime{failNext: true}
	b := New(newTestRegistry(t), rt, fc, t.TempDir(), nil)

	_, err := b.Start(context.Background(), StartRequest{UID: "U1", Path: "/tmp/x.mp4", Deadline: fc.Now().Add(time.Hour)})
	require.Error(t, err)
	var rej *ScheduleRejectedError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ReasonStartFailed, rej.Reason)

	// The uid must be released so a later retry can succeed.
	_, err = b.Start(context.Background(), StartRequest{UID: "U1", Path: filepath.Join(t.TempDir(), "u1.mp4"), Deadline: fc.Now().Add(time.Hour)})
	require.NoError(t, err)
}

func TestStartDerivesExtensionFromRecordingTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(`
identifier: org.example.mkv
version: "1.0"
supportedPlatforms: [all]
channels: {}
mountpoints: {}
audioProviders: {}
recordings:
  default: "matroskamux ! filesink location={path}"
`), 0o644))
	reg, err := profile.NewRegistry(dir, "any", nil)
	require.NoError(t, err)

	fc := clock.NewFake(time.Unix(1000, 0))
	scratch := t.TempDir()
	b := New(reg, &fakeRuntime{}, fc, scratch, nil)

	entry, err := b.Start(context.Background(), StartRequest{UID: "U1", Deadline: fc.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(scratch, "U1.mkv"), entry.Path)
}

func TestListReflectsActiveRecordings(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	b := New(newTestRegistry(t), &fakeRuntime{}, fc, t.TempDir(), nil)

	_, err := b.Start(context.Background(), StartRequest{UID: "U1", Path: filepath.Join(t.TempDir(), "u1.mp4"), Deadline: fc.Now().Add(time.Hour)})
	require.NoError(t, err)

	entries := b.List()
	require.Len(t, entries, 1)
	require.Equal(t, "U1", entries[0].UID)
	require.Equal(t, supervisor.StatePlaying, entries[0].State)
}
