package gst

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TUM-Dev/VMP/internal/supervisor"
)

// fakeLaunchScript writes a tiny shell script standing in for
// gst-launch-1.0: it prints the given line and blocks until signalled,
// exactly like the real binary does while a pipeline plays.
func fakeLaunchScript(t *testing.T, line string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-gst-launch")
	script := "#!/bin/sh\n"
	if line != "" {
		script += "echo '" + line + "'\n"
	}
	script += "trap 'exit 0' INT TERM\nwhile true; do sleep 0.05; done\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func withFakeBinary(t *testing.T, path string) {
	t.Helper()
	old := Binary
	Binary = path
	t.Cleanup(func() { Binary = old })
}

func TestRuntimeParseRejectsEmptyDescription(t *testing.T) {
	rt := &Runtime{}
	_, err := rt.Parse("   ")
	require.Error(t, err)
}

func TestPipelineEmitsEOSFromSubprocessOutput(t *testing.T) {
	withFakeBinary(t, fakeLaunchScript(t, "Got EOS from element 'pipeline0'."))

	rt := &Runtime{}
	p, err := rt.Parse("videotestsrc ! fakesink")
	require.NoError(t, err)
	defer p.Close()

	select {
	case msg := <-p.Bus():
		require.Equal(t, supervisor.BusEOS, msg.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for EOS bus message")
	}
}

func TestPipelineEmitsErrorFromSubprocessOutput(t *testing.T) {
	withFakeBinary(t, fakeLaunchScript(t, "ERROR: from element /GstPipeline: could not open device"))

	rt := &Runtime{}
	p, err := rt.Parse("v4l2src ! fakesink")
	require.NoError(t, err)
	defer p.Close()

	select {
	case msg := <-p.Bus():
		require.Equal(t, supervisor.BusError, msg.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error bus message")
	}
}

func TestSendEOSSignalsProcessRatherThanKilling(t *testing.T) {
	withFakeBinary(t, fakeLaunchScript(t, ""))

	rt := &Runtime{}
	p, err := rt.Parse("videotestsrc ! fakesink")
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.SendEOS())
}

func TestSetStateNullTerminatesProcess(t *testing.T) {
	withFakeBinary(t, fakeLaunchScript(t, ""))

	rt := &Runtime{}
	p, err := rt.Parse("videotestsrc ! fakesink")
	require.NoError(t, err)

	require.NoError(t, p.SetState(supervisor.RuntimeStateNull))
	// Closing twice must stay idempotent.
	require.NoError(t, p.Close())
}

func TestDotGraphReadsBackLatestDump(t *testing.T) {
	dir := t.TempDir()
	rt, err := NewRuntime(dir)
	require.NoError(t, err)

	withFakeBinary(t, fakeLaunchScript(t, ""))
	p, err := rt.Parse("videotestsrc ! fakesink")
	require.NoError(t, err)
	defer p.Close()

	require.Nil(t, p.DotGraph())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "0.00-pipeline.dot"), []byte("digraph pipeline {}"), 0o644))

	require.Eventually(t, func() bool {
		return p.DotGraph() != nil
	}, time.Second, 10*time.Millisecond)
}

func TestNewRuntimeCreatesDumpDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dots")
	_, err := NewRuntime(dir)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
