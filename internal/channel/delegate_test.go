package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TUM-Dev/VMP/internal/clock"
	"github.com/TUM-Dev/VMP/internal/supervisor"
)

// countingRuntime fails the first failures Parse calls, then succeeds.
type countingRuntime struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *countingRuntime) Parse(string) (supervisor.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return nil, errBadDescription
	}
	return newFakePipeline(), nil
}

func (r *countingRuntime) parseCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newDelegateUnderTest(fc *clock.Fake, rt supervisor.Runtime) (*restartDelegate, *supervisor.Supervisor) {
	d := &restartDelegate{clk: fc}
	sup := supervisor.New("cam1", "desc", rt, d)
	d.sup = sup
	return d, sup
}

func TestRestartLoopGrowsDelayAndCountsEachAttempt(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fc := clock.NewFake(time.Unix(0, 0))
	rt := &countingRuntime{failures: 1 << 30} // never succeeds
	d, sup := newDelegateUnderTest(fc, rt)
	defer d.cancelPending()

	require.False(t, sup.Start())
	require.Equal(t, supervisor.StateError, sup.State())

	// Delays grow 1s, 2s, ... and saturate at the cap; the attempt made
	// at the capped delay is the last one.
	delays := []time.Duration{
		1 * time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second,
		5 * time.Second, 6 * time.Second, 7 * time.Second, 8 * time.Second,
		9 * time.Second, 10 * time.Second,
	}
	for i, delay := range delays {
		waitForPendingTimer(t, fc)
		fc.Advance(delay)

		attempt := i + 1
		require.Eventually(t, func() bool {
			return sup.Statistics().RestartCount == attempt
		}, 2*time.Second, time.Millisecond, "attempt %d must increment the restart count", attempt)
	}

	// Cap reached: the loop gives up, arming no further timer.
	require.Eventually(t, func() bool {
		return fc.PendingTimers() == 0
	}, 2*time.Second, time.Millisecond)
	require.Equal(t, supervisor.StateError, sup.State())
	require.Equal(t, len(delays), sup.Statistics().RestartCount)
}

func TestRestartLoopStopsOnceStartSucceeds(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fc := clock.NewFake(time.Unix(0, 0))
	rt := &countingRuntime{failures: 3} // initial start + first two retries fail
	d, sup := newDelegateUnderTest(fc, rt)
	defer sup.Stop()
	defer d.cancelPending()

	require.False(t, sup.Start())

	for _, delay := range []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second} {
		waitForPendingTimer(t, fc)
		fc.Advance(delay)
	}

	require.Eventually(t, func() bool {
		return sup.State() == supervisor.StatePlaying
	}, 2*time.Second, time.Millisecond)
	require.Equal(t, 3, sup.Statistics().RestartCount)
	require.Equal(t, 4, rt.parseCalls())

	// Success ends the loop: no retry timer stays armed.
	require.Eventually(t, func() bool {
		return fc.PendingTimers() == 0
	}, 2*time.Second, time.Millisecond)
}

func TestCancelPendingStopsScheduledRestart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fc := clock.NewFake(time.Unix(0, 0))
	rt := &countingRuntime{failures: 1 << 30}
	d, sup := newDelegateUnderTest(fc, rt)

	require.False(t, sup.Start())
	waitForPendingTimer(t, fc)

	d.cancelPending()
	fc.Advance(time.Minute)

	// Only the initial Start may have reached the runtime.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, rt.parseCalls())
}

func waitForPendingTimer(t *testing.T, fc *clock.Fake) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for fc.PendingTimers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the restart loop to arm its timer")
		}
		time.Sleep(time.Millisecond)
	}
}
