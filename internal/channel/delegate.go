package channel

import (
	"sync"
	"time"

	"github.com/TUM-Dev/VMP/internal/clock"
	"github.com/TUM-Dev/VMP/internal/retry"
	"github.com/TUM-Dev/VMP/internal/supervisor"
)

const (
	restartInitialDelay = 1 * time.Second
	restartIncrement    = 1 * time.Second
	restartCap          = 10 * time.Second
)

// restartDelegate implements supervisor.Delegate for channel-bound
// pipelines: on EndOfStream or Error it schedules a growing-delay
// restart loop that gives up once the delay has saturated at the cap.
// A restart requested while a loop is already running collapses into
// it — in particular the Error notification fired by the loop's own
// failed attempt must not restart the backoff from its initial delay.
type restartDelegate struct {
	clk clock.Clock

	mu        sync.Mutex
	sup       *supervisor.Supervisor
	pending   *retry.Handle
	inAttempt bool
}

func (d *restartDelegate) OnStateChanged(_ string, state supervisor.State) {
	switch state {
	case supervisor.StateEndOfStream, supervisor.StateError:
		d.scheduleRestart()
	}
}

func (d *restartDelegate) OnBusEvent(string, supervisor.BusMessage) {}

func (d *restartDelegate) scheduleRestart() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inAttempt {
		// The failure notification of the attempt currently running;
		// the loop itself retries with its grown delay.
		return
	}
	if d.pending != nil {
		// A loop is already waiting between attempts; collapse into it.
		return
	}

	var h *retry.Handle
	h = retry.Schedule(d.clk, func(delay time.Duration) bool {
		d.mu.Lock()
		d.inAttempt = true
		d.mu.Unlock()

		ok := d.sup.Start()

		d.mu.Lock()
		d.inAttempt = false
		done := ok || delay >= restartCap
		if done && d.pending == h {
			d.pending = nil
		}
		d.mu.Unlock()
		return done
	}, restartInitialDelay, restartIncrement, restartCap)
	d.pending = h
}

// cancelPending stops any scheduled restart loop; used on StopAll so a
// channel being shut down does not come back.
func (d *restartDelegate) cancelPending() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Cancel()
		d.pending = nil
	}
}
