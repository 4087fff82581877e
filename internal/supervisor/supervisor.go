package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TUM-Dev/VMP/internal/fsm"
	"github.com/TUM-Dev/VMP/internal/logging"
)

// Delegate is notified of every state transition and bus message. A nil
// Delegate is valid; notifications are simply dropped.
type Delegate interface {
	OnStateChanged(channel string, state State)
	OnBusEvent(channel string, msg BusMessage)
}

// Supervisor owns one named pipeline built from a single description. It
// is safe for concurrent use; all public methods take an internal lock.
type Supervisor struct {
	name        string
	description string
	runtime     Runtime
	delegate    Delegate
	logger      zerolog.Logger

	mu        sync.Mutex
	machine   *fsm.Machine[State, event]
	pipeline  Pipeline
	busCancel context.CancelFunc
	stats     Stats
}

// New constructs a Supervisor in the Created state. It does not parse or
// start the pipeline; call Start for that.
func New(name, description string, runtime Runtime, delegate Delegate) *Supervisor {
	machine, err := fsm.New(StateCreated, transitions())
	if err != nil {
		// transitions() is a fixed, hand-verified table; a duplicate edge
		// here is a programming error, not a runtime condition.
		panic(err)
	}

	s := &Supervisor{
		name:        name,
		description: description,
		runtime:     runtime,
		delegate:    delegate,
		logger:      logging.WithComponent("supervisor").With().Str("channel", name).Logger(),
		machine:     machine,
	}
	observeState(name, StateCreated)
	return s
}

// Name returns the channel or mountpoint name this supervisor was
// constructed with.
func (s *Supervisor) Name() string { return s.name }

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return s.machine.State()
}

// Statistics returns a snapshot of restart/error bookkeeping.
func (s *Supervisor) Statistics() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SendEOS forwards an end-of-stream request to the live pipeline without
// changing its runtime state. No-op if there is no live pipeline.
func (s *Supervisor) SendEOS() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline == nil {
		return nil
	}
	return s.pipeline.SendEOS()
}

// DotGraph returns the runtime's introspection dump, or nil if there is
// no live pipeline.
func (s *Supervisor) DotGraph() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline == nil {
		return nil
	}
	return s.pipeline.DotGraph()
}

// Start parses the description through the media runtime and drives the
// pipeline to Playing. Calls while the pipeline is already live
// (anything other than Created, Error, or EndOfStream) are no-ops that
// return true. Returns false if parsing failed, leaving the supervisor
// in the Error state.
func (s *Supervisor) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.machine.State() {
	case StateCreated:
	case StateError, StateEndOfStream:
		// Starting directly from a terminal state (without going through
		// Restart) still needs to pass through Created first so eventStart
		// and eventParseFail below have a valid edge to fire. This is the
		// retry loop's actual restart path (it calls Start, not Restart),
		// so the restart it performs must be counted here too.
		s.fire(eventRestart)
		s.stats.RestartCount++
		restartsTotal.WithLabelValues(s.name).Inc()
	default:
		return true
	}

	pipeline, err := s.runtime.Parse(s.description)
	if err != nil {
		s.logger.Error().Err(err).Msg("pipeline parse failed")
		s.recordError(err.Error())
		s.fire(eventParseFail)
		s.notifyStateChanged()
		return false
	}

	if err := pipeline.SetState(RuntimeStatePlaying); err != nil {
		s.logger.Error().Err(err).Msg("pipeline failed to reach Playing")
		s.recordError(err.Error())
		_ = pipeline.Close()
		s.fire(eventParseFail)
		s.notifyStateChanged()
		return false
	}

	s.pipeline = pipeline
	ctx, cancel := context.WithCancel(context.Background())
	s.busCancel = cancel
	go s.watchBus(ctx, pipeline)

	from, to := s.fire(eventStart)
	s.logger.Info().Str("from", string(from)).Str("to", string(to)).Str("event", string(eventStart)).Msg("pipeline transition")
	s.notifyStateChanged()
	return true
}

// fire applies event to the state machine, updates the state gauge and
// LastTransitionAt, and returns (from, to). Must be called with mu held.
func (s *Supervisor) fire(ev event) (from, to State) {
	from, to, _ = s.machine.Fire(ev)
	s.stats.LastTransitionAt = time.Now()
	observeState(s.name, to)
	return from, to
}

// Stop requests the runtime Null state, detaches the bus subscriber, and
// drops the pipeline handle. Idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	if s.pipeline == nil {
		return
	}
	if err := s.pipeline.SetState(RuntimeStateNull); err != nil {
		s.logger.Warn().Err(err).Msg("pipeline failed to reach Null during stop")
	}
	if s.busCancel != nil {
		s.busCancel()
		s.busCancel = nil
	}
	_ = s.pipeline.Close()
	s.pipeline = nil
}

// Restart stops then starts the pipeline. Safe to call from any
// goroutine; the internal lock serializes it against concurrent
// Start/Stop calls.
func (s *Supervisor) Restart() bool {
	s.mu.Lock()
	s.stopLocked()
	s.fire(eventRestart)
	s.stats.RestartCount++
	restartsTotal.WithLabelValues(s.name).Inc()
	s.mu.Unlock()

	return s.Start()
}

func (s *Supervisor) watchBus(ctx context.Context, pipeline Pipeline) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pipeline.Bus():
			if !ok {
				return
			}
			s.handleBusMessage(msg)
		}
	}
}

func (s *Supervisor) handleBusMessage(msg BusMessage) {
	s.mu.Lock()

	if s.delegate != nil {
		s.mu.Unlock()
		s.delegate.OnBusEvent(s.name, msg)
		s.mu.Lock()
	}

	var fired bool
	switch msg.Kind {
	case BusEOS:
		if s.machine.State() == StatePlaying {
			s.fire(eventEOS)
			fired = true
		}
	case BusError:
		if s.machine.State() == StatePlaying {
			s.recordError(msg.Text)
			s.fire(eventFail)
			fired = true
		}
	}
	s.mu.Unlock()

	if fired {
		s.logger.Info().Str("event", string(msg.Kind)).Str("to", string(s.State())).Msg("pipeline transition")
		s.notifyStateChanged()
	}
}

// recordError must be called with mu held.
func (s *Supervisor) recordError(msg string) {
	s.stats.LastError = redactPaths(msg)
}

func (s *Supervisor) notifyStateChanged() {
	if s.delegate == nil {
		return
	}
	s.delegate.OnStateChanged(s.name, s.State())
}
