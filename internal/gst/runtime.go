// Package gst is the default production supervisor.Runtime: it drives a
// real pipeline by shelling out to gst-launch-1.0, the same "launch a
// subprocess rather than bind the C library" idiom the pack's
// grimnir_radio mediaengine sketches (os/exec.Command, kill on stop)
// but does not actually wire up. Tests of the packages that drive a
// supervisor.Runtime use fakes defined in their own _test.go files instead.
package gst

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/TUM-Dev/VMP/internal/logging"
	"github.com/TUM-Dev/VMP/internal/supervisor"
)

// Binary is the gst-launch-1.0 executable name, overridable for tests.
var Binary = "gst-launch-1.0"

// Runtime parses a pipeline description into a gst-launch-1.0 subprocess.
// It implements supervisor.Runtime.
type Runtime struct {
	// DotDumpDir, when set, is passed to the subprocess as
	// GST_DEBUG_DUMP_DOT_DIR so DotGraph can read back the most recent
	// dump GStreamer itself writes on every state change.
	DotDumpDir string
}

// NewRuntime returns a Runtime that dumps dot graphs under dir (created
// if necessary). An empty dir disables dot-graph capture; DotGraph then
// always returns nil.
func NewRuntime(dir string) (*Runtime, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("gst: create dot dump dir: %w", err)
		}
	}
	return &Runtime{DotDumpDir: dir}, nil
}

// Parse starts gst-launch-1.0 with description as its argument list and
// returns a handle to the running process. The subprocess's stdout is
// scanned in the background for the lines gst-launch-1.0 itself prints
// on EOS and on error, translated into supervisor.BusMessage values.
func (r *Runtime) Parse(description string) (supervisor.Pipeline, error) {
	args, err := splitPipeline(description)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, Binary, args...)
	cmd.Env = append(os.Environ(), "GST_DEBUG_DUMP_DOT_DIR="+r.DotDumpDir)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gst: stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("gst: start %s: %w", Binary, err)
	}

	logger := logging.WithComponent("gst")
	logger.Info().Str("pipeline", description).Msg("starting gst-launch-1.0")

	p := &pipeline{
		description: description,
		cmd:         cmd,
		cancel:      cancel,
		dotDumpDir:  r.DotDumpDir,
		bus:         make(chan supervisor.BusMessage, 16),
		logger:      logger,
	}
	go p.scan(stdout)
	return p, nil
}

type pipeline struct {
	description string
	cmd         *exec.Cmd
	cancel      context.CancelFunc
	dotDumpDir  string
	bus         chan supervisor.BusMessage

	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

func (p *pipeline) SetState(state supervisor.RuntimeState) error {
	// gst-launch-1.0 has no external state-change control once running;
	// Playing is implied by the process being alive, and Null is
	// requested by terminating it (see Close/SendEOS below). A
	// SetState(Null) request kills the process and waits for it to exit.
	if state == supervisor.RuntimeStateNull {
		return p.terminate()
	}
	return nil
}

// SendEOS sends SIGINT, which gst-launch-1.0 handles by propagating an
// EOS event downstream and exiting once every sink has flushed — the
// "inject EOS, don't hard-kill" semantics a recording's deadline
// handling requires.
func (p *pipeline) SendEOS() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *pipeline) Bus() <-chan supervisor.BusMessage { return p.bus }

// DotGraph reads back the most recent .dot file in the runtime's dump
// directory, if dot-dump capture is enabled. Every pipeline of a Runtime
// dumps into the same directory, so the file read back may have been
// written by another pipeline. Returns nil if capture is disabled or
// nothing has been dumped yet.
func (p *pipeline) DotGraph() []byte {
	if p.dotDumpDir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(p.dotDumpDir, "*.dot"))
	if err != nil || len(matches) == 0 {
		return nil
	}
	latest := matches[0]
	for _, m := range matches[1:] {
		if fi, err := os.Stat(m); err == nil {
			if li, err := os.Stat(latest); err == nil && fi.ModTime().After(li.ModTime()) {
				latest = m
			}
		}
	}
	data, err := os.ReadFile(latest)
	if err != nil {
		return nil
	}
	return data
}

func (p *pipeline) Close() error {
	return p.terminate()
}

func (p *pipeline) terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.cancel()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	close(p.bus)
	return nil
}

// scan reads the subprocess's combined stdout/stderr and classifies each
// line gst-launch-1.0 emits for the events the supervisor cares about.
func (p *pipeline) scan(r interface{ Read([]byte) (int, error) }) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "Got EOS from element"), strings.HasPrefix(strings.TrimSpace(line), "EOS on shutdown"):
			p.emit(supervisor.BusMessage{Kind: supervisor.BusEOS, Text: line})
		case strings.Contains(line, "ERROR:") || strings.Contains(line, "Pipeline doesn't want to"):
			p.emit(supervisor.BusMessage{Kind: supervisor.BusError, Text: line})
		default:
			p.emit(supervisor.BusMessage{Kind: supervisor.BusOther, Text: line})
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn().Err(err).Msg("gst-launch-1.0 output scan ended")
	}
}

func (p *pipeline) emit(msg supervisor.BusMessage) {
	// The send stays under the lock so terminate cannot close the bus
	// between the closed check and the send.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.bus <- msg:
	default:
		// Bus subscriber is slow or gone; drop rather than block the
		// scanning goroutine (mirrors internal/supervisor's own
		// publisher-side buffered-channel idiom).
	}
}

// splitPipeline splits a gst-launch-style description into the argument
// list exec.Command needs. gst-launch-1.0 accepts the whole pipeline as
// a single positional string when invoked as one argument containing
// the full "elt1 ! elt2 ! ..." syntax, which is what every profile
// template in this repo produces, so no shell-style quoting/escaping is
// attempted here.
func splitPipeline(description string) ([]string, error) {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return nil, fmt.Errorf("gst: empty pipeline description")
	}
	return []string{trimmed}, nil
}
