// Package retry implements the growing-delay retry primitive shared by the
// pipeline supervisor's restart loop and (indirectly, via the scheduler's
// own backoff) the calendar poller.
package retry

import (
	"sync"
	"time"

	"github.com/TUM-Dev/VMP/internal/clock"
)

// Block is retried until it reports done=true. It receives the delay that
// was just waited out, so a caller layering a "give up once the delay has
// saturated at the cap" policy on top (as the pipeline supervisor's restart
// loop does) does not need to duplicate the growth arithmetic. Block is
// ctx-less by design: callers that need cancellation use the Handle
// returned by Schedule.
type Block func(delay time.Duration) (done bool)

// Handle cancels a pending or in-flight retry schedule. Cancelling a handle
// whose block has already run to completion is a no-op.
type Handle struct {
	mu        sync.Mutex
	cancelled bool
	timer     clock.Timer
	done      chan struct{}
}

// Cancel stops any future invocation of the scheduled block. It also
// unblocks the retry goroutine waiting out its delay, so a cancelled
// schedule does not linger until its timer would have fired.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
	}
	close(h.done)
}

func (h *Handle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func (h *Handle) setTimer(t clock.Timer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timer = t
}

// Schedule runs block after initialDelay; if it returns false, the delay is
// incremented by increment (capped at cap) and block is retried, repeating
// until block returns true or the returned Handle is cancelled; once the
// delay has reached cap, every further retry waits cap. Reaching cap does
// not by itself end the schedule. Schedule returns immediately; block
// runs on a goroutine it owns, so it is safe to call Schedule from any
// context. clk lets tests drive the delay deterministically.
func Schedule(clk clock.Clock, block Block, initialDelay, increment, cap time.Duration) *Handle {
	h := &Handle{done: make(chan struct{})}
	go runLoop(clk, h, block, initialDelay, increment, cap)
	return h
}

func runLoop(clk clock.Clock, h *Handle, block Block, delay, increment, cap time.Duration) {
	for {
		if h.isCancelled() {
			return
		}

		t := clk.NewTimer(delay)
		h.setTimer(t)
		select {
		case <-h.done:
			return
		case <-t.C():
		}

		if h.isCancelled() {
			return
		}

		if block(delay) {
			return
		}

		delay += increment
		if delay > cap {
			delay = cap
		}
	}
}
