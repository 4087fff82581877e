package calendar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TUM-Dev/VMP/internal/clock"
)

type fakeFeed struct {
	mu     sync.Mutex
	events []Event
	err    error
	calls  int
}

func (f *fakeFeed) Fetch(context.Context) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]Event(nil), f.events...), nil
}

func (f *fakeFeed) setEvents(events []Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
}

func TestTickDeduplicatesByUID(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fc := clock.NewFake(time.Unix(0, 0))
	feed := &fakeFeed{events: []Event{
		{UID: "U1", Location: "room-a", StartDate: fc.Now().Add(time.Hour), EndDate: fc.Now().Add(2 * time.Hour)},
		{UID: "U2", Location: "room-a", StartDate: fc.Now().Add(time.Hour), EndDate: fc.Now().Add(2 * time.Hour)},
		{UID: "U2", Location: "room-a", StartDate: fc.Now().Add(time.Hour), EndDate: fc.Now().Add(2 * time.Hour)},
	}}
	store := NewMemoryStore()

	var mu sync.Mutex
	var notified []string
	notify := func(e Event) {
		mu.Lock()
		notified = append(notified, e.UID)
		mu.Unlock()
	}

	s, err := New(Config{PollInterval: time.Minute, NotifyBeforeStart: 0, Locations: []string{"room-a"}}, feed, store, fc, nil, notify)
	require.NoError(t, err)
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.tick(ctx)
	require.ElementsMatch(t, []string{"U1", "U2"}, s.KnownUIDs())
	require.Equal(t, 2, fc.PendingTimers(), "one notification timer per distinct UID")

	// Second tick over an unchanged feed must not register new UIDs, and
	// must not arm a second notification timer for either event already
	// seen on the first tick.
	s.tick(ctx)
	require.ElementsMatch(t, []string{"U1", "U2"}, s.KnownUIDs())
	require.Equal(t, 2, fc.PendingTimers(), "an unchanged feed must not arm additional timers")

	fc.Advance(time.Hour)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notified) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	require.ElementsMatch(t, []string{"U1", "U2"}, notified, "each UID must be notified exactly once across ticks")
	mu.Unlock()
}

func TestLocationFilterDropsNonMatchingEvents(t *testing.T) {
	events := []Event{
		{UID: "U1", Location: "room-a"},
		{UID: "U2", Location: "room-b"},
	}
	out := locationFilter(events, []string{"room-a"})
	require.Len(t, out, 1)
	require.Equal(t, "U1", out[0].UID)
}

func TestLocationFilterAllWildcardAcceptsEverything(t *testing.T) {
	events := []Event{
		{UID: "U1", Location: "room-a"},
		{UID: "U2", Location: "room-z"},
	}
	out := locationFilter(events, []string{"all"})
	require.Len(t, out, 2)
}

func TestPastEventsAreDropped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fc := clock.NewFake(time.Unix(1000, 0))
	feed := &fakeFeed{events: []Event{
		{UID: "past", EndDate: fc.Now().Add(-time.Minute)},
		{UID: "future", EndDate: fc.Now().Add(time.Minute)},
	}}
	store := NewMemoryStore()

	s, err := New(Config{PollInterval: time.Minute}, feed, store, fc, nil, func(Event) {})
	require.NoError(t, err)
	defer s.Stop()

	s.tick(context.Background())
	require.Equal(t, []string{"future"}, s.KnownUIDs())
}

func TestFilterBlockRejectionIsNotPersisted(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fc := clock.NewFake(time.Unix(0, 0))
	feed := &fakeFeed{events: []Event{
		{UID: "U1", EndDate: fc.Now().Add(time.Hour)},
	}}
	store := NewMemoryStore()

	rejected := true
	filter := func(Event) bool { return !rejected }

	s, err := New(Config{PollInterval: time.Minute}, feed, store, fc, filter, func(Event) {})
	require.NoError(t, err)
	defer s.Stop()

	s.tick(context.Background())
	require.Empty(t, s.KnownUIDs())

	rejected = false
	s.tick(context.Background())
	require.Equal(t, []string{"U1"}, s.KnownUIDs())
}

func TestEmptyFeedLeavesKnownUIDsUnchanged(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fc := clock.NewFake(time.Unix(0, 0))
	feed := &fakeFeed{}
	store := NewMemoryStore()

	s, err := New(Config{PollInterval: time.Minute}, feed, store, fc, nil, func(Event) {})
	require.NoError(t, err)
	defer s.Stop()

	s.tick(context.Background())
	require.Empty(t, s.KnownUIDs())
}

func TestNetworkErrorPreservesKnownUIDsAndBacksOff(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fc := clock.NewFake(time.Unix(0, 0))
	feed := &fakeFeed{events: []Event{
		{UID: "U1", EndDate: fc.Now().Add(time.Hour)},
	}}
	store := NewMemoryStore()

	s, err := New(Config{PollInterval: time.Minute}, feed, store, fc, nil, func(Event) {})
	require.NoError(t, err)
	defer s.Stop()

	s.tick(context.Background())
	require.Equal(t, []string{"U1"}, s.KnownUIDs())

	feed.err = errFakeNetwork
	s.tick(context.Background())
	require.Equal(t, []string{"U1"}, s.KnownUIDs(), "a failed fetch must not drop existing known UIDs")
	require.Equal(t, 2*time.Minute, s.currentInterval, "a failed fetch must back off the poll interval")
}

var errFakeNetwork = &fakeNetworkError{}

type fakeNetworkError struct{}

func (*fakeNetworkError) Error() string { return "network error" }
