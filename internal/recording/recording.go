// Package recording specialises internal/supervisor for deadline-bounded
// recordings: at the configured deadline it requests EOS (not a hard
// stop) so the file sink can finalise, and force-stops if EOS does not
// arrive within a grace period.
package recording

import (
	"sync"
	"time"

	"github.com/TUM-Dev/VMP/internal/clock"
	"github.com/TUM-Dev/VMP/internal/supervisor"
)

// gracePeriod is how long Recording waits for the bus EOS to arrive
// after requesting it, before force-stopping.
const gracePeriod = 10 * time.Second

// Status reports how a recording ended (or whether it is still active).
type Status string

const (
	StatusActive          Status = "active"
	StatusTerminated      Status = "terminated"
	StatusIncompleteFlush Status = "incompleteFlush"
)

// Recording is a supervisor.Supervisor specialised with a destination
// path and a deadline.
type Recording struct {
	name     string
	path     string
	deadline time.Time
	clk      clock.Clock
	sup      *supervisor.Supervisor
	delegate supervisor.Delegate

	// quit releases the deadline/grace goroutines once the recording is
	// stopped or reaches a terminal status, so no goroutine stays parked
	// on a timer that will never fire.
	quit     chan struct{}
	quitOnce sync.Once

	mu            sync.Mutex
	status        Status
	eosReceived   bool
	deadlineTimer clock.Timer
	graceTimer    clock.Timer
}

// New constructs a Recording in the Created state. delegate (optional)
// receives every state/bus notification in addition to Recording's own
// deadline handling.
func New(name, description string, runtime supervisor.Runtime, path string, deadline time.Time, clk clock.Clock, delegate supervisor.Delegate) *Recording {
	r := &Recording{
		name:     name,
		path:     path,
		deadline: deadline,
		clk:      clk,
		delegate: delegate,
		status:   StatusActive,
		quit:     make(chan struct{}),
	}
	r.sup = supervisor.New(name, description, runtime, r)
	return r
}

// Path returns the recording's destination file path.
func (r *Recording) Path() string { return r.path }

// Deadline returns the configured end-of-stream deadline.
func (r *Recording) Deadline() time.Time { return r.deadline }

// Status reports whether the recording is active, terminated cleanly,
// or was force-stopped with an incomplete flush.
func (r *Recording) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// State, Statistics, and DotGraph forward to the underlying supervisor.
func (r *Recording) State() supervisor.State      { return r.sup.State() }
func (r *Recording) Statistics() supervisor.Stats { return r.sup.Statistics() }
func (r *Recording) DotGraph() []byte             { return r.sup.DotGraph() }

// Start starts the underlying pipeline and, on success, arms the
// deadline timer.
func (r *Recording) Start() bool {
	ok := r.sup.Start()
	if ok {
		r.armDeadline()
	}
	return ok
}

// Stop cancels any pending timers and stops the underlying pipeline
// immediately, without waiting for EOS.
func (r *Recording) Stop() {
	r.shutdownTimers()
	r.sup.Stop()
}

// shutdownTimers stops both timers and releases their goroutines.
func (r *Recording) shutdownTimers() {
	r.mu.Lock()
	r.cancelTimersLocked()
	r.mu.Unlock()
	r.quitOnce.Do(func() { close(r.quit) })
}

func (r *Recording) cancelTimersLocked() {
	if r.deadlineTimer != nil {
		r.deadlineTimer.Stop()
		r.deadlineTimer = nil
	}
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
}

func (r *Recording) armDeadline() {
	delay := r.deadline.Sub(r.clk.Now())
	if delay < 0 {
		delay = 0
	}

	r.mu.Lock()
	timer := r.clk.NewTimer(delay)
	r.deadlineTimer = timer
	r.mu.Unlock()

	go func() {
		select {
		case <-r.quit:
			return
		case <-timer.C():
		}
		r.triggerEOS()
	}()
}

// triggerEOS requests EOS from the pipeline and arms the grace-period
// force-stop timer.
func (r *Recording) triggerEOS() {
	_ = r.sup.SendEOS()

	r.mu.Lock()
	timer := r.clk.NewTimer(gracePeriod)
	r.graceTimer = timer
	r.mu.Unlock()

	go func() {
		select {
		case <-r.quit:
			return
		case <-timer.C():
		}
		r.onGraceExpired()
	}()
}

func (r *Recording) onGraceExpired() {
	r.mu.Lock()
	if r.eosReceived {
		r.mu.Unlock()
		return
	}
	r.status = StatusIncompleteFlush
	r.mu.Unlock()

	r.shutdownTimers()
	r.sup.Stop()
}

// OnStateChanged implements supervisor.Delegate. On the first bus EOS it
// marks the recording terminated, cancels the grace timer, and takes the
// pipeline to Null.
func (r *Recording) OnStateChanged(channel string, state supervisor.State) {
	if state == supervisor.StateEndOfStream {
		r.mu.Lock()
		alreadyReceived := r.eosReceived
		if !alreadyReceived {
			r.eosReceived = true
			r.status = StatusTerminated
		}
		r.mu.Unlock()

		if !alreadyReceived {
			r.shutdownTimers()
			r.sup.Stop()
		}
	}

	if r.delegate != nil {
		r.delegate.OnStateChanged(channel, state)
	}
}

// OnBusEvent implements supervisor.Delegate, forwarding to the optional
// wrapped delegate.
func (r *Recording) OnBusEvent(channel string, msg supervisor.BusMessage) {
	if r.delegate != nil {
		r.delegate.OnBusEvent(channel, msg)
	}
}
