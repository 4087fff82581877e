package clock

import (
	"sync"
	"time"
)

// Fake is a manually-advanced Clock for deterministic tests.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

// NewFake returns a Fake clock seeded at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{c: make(chan time.Time, 1), fireAt: f.now.Add(d), parent: f}
	f.timers = append(f.timers, t)
	return t
}

// PendingTimers returns the number of timers currently registered and not
// yet stopped or fired. Tests use this to wait for a background goroutine
// to register its timer before calling Advance, avoiding a race between
// timer registration and advancement.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the fake clock forward by d, firing any timers whose
// deadline has elapsed, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	due := make([]*fakeTimer, 0, len(f.timers))
	remaining := f.timers[:0]
	for _, t := range f.timers {
		if t.stopped {
			continue
		}
		if !t.fireAt.After(now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	f.timers = remaining
	f.mu.Unlock()

	for _, t := range due {
		select {
		case t.c <- now:
		default:
		}
	}
}

type fakeTimer struct {
	mu      sync.Mutex
	c       chan time.Time
	fireAt  time.Time
	stopped bool
	parent  *Fake
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.mu.Lock()
	wasActive := !t.stopped
	t.stopped = false
	t.fireAt = t.parent.Now().Add(d)
	t.mu.Unlock()

	t.parent.mu.Lock()
	t.parent.timers = append(t.parent.timers, t)
	t.parent.mu.Unlock()
	return wasActive
}
