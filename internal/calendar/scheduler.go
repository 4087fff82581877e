package calendar

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/TUM-Dev/VMP/internal/clock"
	"github.com/TUM-Dev/VMP/internal/logging"
	"github.com/TUM-Dev/VMP/internal/metrics"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxBackoff          = time.Hour
	allLocationWildcard = "all"
)

// FilterFunc decides whether a newly-seen (not-yet-known) event should be
// accepted. Returning false skips the event without adding it to
// KnownUIDs, so it may be reconsidered on a later tick under a changed
// policy.
type FilterFunc func(Event) bool

// NotifyFunc is invoked once per accepted event, on a goroutine started
// for that event, when it reaches its notifyBeforeStart threshold.
// Notifications are not serialised: those of different events may run
// concurrently with each other and with a tick. This is the integration
// point for internal/broker.
type NotifyFunc func(Event)

// Config configures a Scheduler.
type Config struct {
	PollInterval      time.Duration
	NotifyBeforeStart time.Duration
	Locations         []string
	FetchTimeout      time.Duration
	Jitter            time.Duration
}

// Scheduler periodically polls a Feed, filters and deduplicates events,
// and arms a notification timer per newly-accepted event. It polls on a
// single goroutine on which the filter callback is invoked serially, so
// a blocking filter delays subsequent ticks. The notify callback runs on
// the per-event notification goroutines instead (see NotifyFunc) and
// does not delay ticks.
type Scheduler struct {
	cfg    Config
	feed   Feed
	store  Store
	clk    clock.Clock
	filter FilterFunc
	notify NotifyFunc
	logger zerolog.Logger

	group singleflight.Group

	// quit releases every armed notification goroutine on Stop, so a
	// stopped scheduler leaves no goroutine parked on a timer that will
	// never fire.
	quit     chan struct{}
	quitOnce sync.Once

	mu              sync.Mutex
	known           map[string]Record
	currentInterval time.Duration
}

// New constructs a Scheduler and loads the persisted KnownUIDs set from
// store. filter may be nil (accept everything not already known).
func New(cfg Config, feed Feed, store Store, clk clock.Clock, filter FilterFunc, notify NotifyFunc) (*Scheduler, error) {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}

	records, err := store.Load(context.Background())
	if err != nil {
		return nil, err
	}
	known := make(map[string]Record, len(records))
	for _, r := range records {
		known[r.UID] = r
	}

	s := &Scheduler{
		cfg:             cfg,
		feed:            feed,
		store:           store,
		clk:             clk,
		filter:          filter,
		notify:          notify,
		logger:          logging.WithComponent("calendar"),
		quit:            make(chan struct{}),
		known:           known,
		currentInterval: cfg.PollInterval,
	}
	metrics.CalendarKnownUIDs.Set(float64(len(known)))
	metrics.CalendarBackoffSeconds.Set(s.currentInterval.Seconds())

	// Replay events already accepted but not yet fired (restart case): a
	// fired record stays deduped forever and needs nothing further. An
	// unfired one lost its in-memory timer when the previous process
	// exited, so it is re-armed exactly once here, from the persisted
	// StartDate alone. Every later tick that sees the same UID again in
	// the feed hits the "known" branch of processEvent and skips,
	// rather than re-arming — arming happens only here (restart) or in
	// processEvent's accept branch (first sighting), never both.
	for _, r := range records {
		if r.Fired {
			continue
		}
		s.armNotify(context.Background(), Event{UID: r.UID, StartDate: r.StartDate})
	}

	return s, nil
}

// Start begins the polling loop. It returns immediately; the loop stops
// when ctx is cancelled, which also cancels every armed notification
// timer.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop cancels every armed notification timer. Idempotent; called by the
// polling loop on its way out, or directly when tick is driven without
// Start (tests).
func (s *Scheduler) Stop() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Scheduler) loop(ctx context.Context) {
	s.logger.Info().Dur("interval", s.cfg.PollInterval).Msg("calendar scheduler started")
	defer s.Stop()

	timer := s.clk.NewTimer(s.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("calendar scheduler stopping")
			return
		case <-timer.C():
			s.tick(ctx)
			timer.Reset(s.nextDelay())
		}
	}
}

func (s *Scheduler) nextDelay() time.Duration {
	s.mu.Lock()
	interval := s.currentInterval
	s.mu.Unlock()
	return interval + s.jitter()
}

func (s *Scheduler) jitter() time.Duration {
	if s.cfg.Jitter <= 0 {
		return 0
	}
	ms := int64(s.cfg.Jitter / time.Millisecond)
	if ms <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(2*ms)-ms) * time.Millisecond
}

// tick fetches the feed (coalescing concurrent fetches via singleflight
// so a fetch already in flight when a tick fires is not started again),
// filters/dedupes the result, and arms notification timers.
func (s *Scheduler) tick(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	v, err, _ := s.group.Do("fetch", func() (interface{}, error) {
		return s.feed.Fetch(fetchCtx)
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("calendar feed fetch failed, keeping known UIDs")
		s.increaseBackoff()
		return
	}
	s.resetBackoff()

	events, _ := v.([]Event)
	now := s.clk.Now()

	for _, e := range locationFilter(events, s.cfg.Locations) {
		if !e.EndDate.After(now) {
			continue
		}
		s.processEvent(ctx, e)
	}
}

func (s *Scheduler) processEvent(ctx context.Context, e Event) {
	s.mu.Lock()
	_, known := s.known[e.UID]
	s.mu.Unlock()

	if known {
		// Already accepted on a previous tick (or a previous process
		// run, re-armed once in New()): every later sighting in the
		// feed is skipped outright, fired or not, so a steady-state
		// feed arms exactly one timer per event.
		return
	}

	if s.filter != nil && !s.filter(e) {
		// Rejected: do not add to KnownUIDs, so a later tick under a
		// changed filter policy may still accept it.
		return
	}

	if err := s.store.Add(ctx, e.UID, e.StartDate); err != nil {
		s.logger.Error().Err(err).Str("uid", e.UID).Msg("failed to persist known event")
		return
	}

	s.mu.Lock()
	s.known[e.UID] = Record{UID: e.UID, StartDate: e.StartDate}
	metrics.CalendarKnownUIDs.Set(float64(len(s.known)))
	s.mu.Unlock()

	s.armNotify(ctx, e)
}

func (s *Scheduler) armNotify(ctx context.Context, e Event) {
	delay := e.StartDate.Add(-s.cfg.NotifyBeforeStart).Sub(s.clk.Now())
	if delay < 0 {
		delay = 0
	}
	timer := s.clk.NewTimer(delay)

	go func() {
		select {
		case <-s.quit:
			timer.Stop()
			return
		case <-timer.C():
		}
		s.fireNotify(ctx, e)
	}()
}

func (s *Scheduler) fireNotify(ctx context.Context, e Event) {
	if s.notify != nil {
		s.notify(e)
	}

	if err := s.store.MarkFired(ctx, e.UID); err != nil {
		s.logger.Error().Err(err).Str("uid", e.UID).Msg("failed to mark known event fired")
	}

	s.mu.Lock()
	rec := s.known[e.UID]
	rec.Fired = true
	s.known[e.UID] = rec
	s.mu.Unlock()
}

func (s *Scheduler) increaseBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentInterval *= 2
	if s.currentInterval > maxBackoff {
		s.currentInterval = maxBackoff
	}
	metrics.CalendarBackoffSeconds.Set(s.currentInterval.Seconds())
}

func (s *Scheduler) resetBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentInterval != s.cfg.PollInterval {
		s.currentInterval = s.cfg.PollInterval
		metrics.CalendarBackoffSeconds.Set(s.currentInterval.Seconds())
	}
}

// KnownUIDs returns a snapshot of every UID currently tracked, for
// diagnostics and tests.
func (s *Scheduler) KnownUIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.known))
	for uid := range s.known {
		out = append(out, uid)
	}
	return out
}

// locationFilter keeps events whose Location is in locations, or every
// event if locations contains the "all" wildcard, for parity with a
// source configuration that treats an absent location list as "accept
// every location".
func locationFilter(events []Event, locations []string) []Event {
	if len(locations) == 0 {
		return events
	}
	allowed := make(map[string]struct{}, len(locations))
	acceptAll := false
	for _, l := range locations {
		if l == allLocationWildcard {
			acceptAll = true
			break
		}
		allowed[l] = struct{}{}
	}
	if acceptAll {
		return events
	}

	out := make([]Event, 0, len(events))
	for _, e := range events {
		if _, ok := allowed[e.Location]; ok {
			out = append(out, e)
		}
	}
	return out
}
