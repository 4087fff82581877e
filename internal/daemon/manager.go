// Package daemon wires the supervisory core's components into a runnable
// process: it owns the ordered start/shutdown sequence and the
// background goroutines (calendar scheduler, profile drift watcher,
// HTTP server) that run for the process lifetime.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TUM-Dev/VMP/internal/logging"
)

// ShutdownHook performs one component's cleanup during graceful shutdown.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// hookTimeout bounds how long any single shutdown hook may run before it
// is force-cancelled.
const hookTimeout = 5 * time.Second

// Manager runs registered shutdown hooks in reverse registration order
// (LIFO), each under its own timeout. Callers get the required shutdown
// sequence — stop the calendar scheduler first, then channel supervisors
// in reverse of start order, then the RTSP runtime, then the event loop
// — by registering hooks in the opposite order: event loop, RTSP
// runtime, channels (start order), calendar. LIFO unwinds that back into
// the required sequence.
type Manager struct {
	mu     sync.Mutex
	hooks  []namedHook
	logger zerolog.Logger
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{logger: logging.WithComponent("daemon")}
}

// RegisterShutdownHook appends a named cleanup step. Shutdown runs hooks
// in the reverse of registration order.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}

// Shutdown runs every registered hook, most-recently-registered first,
// each bounded by hookTimeout. A hook's failure or timeout does not
// prevent the remaining hooks from running; every error is collected and
// returned together.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		hookCtx, cancel := context.WithTimeout(ctx, hookTimeout)
		start := time.Now()
		err := h.hook(hookCtx)
		cancel()

		if err != nil {
			m.logger.Error().Err(err).Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		m.logger.Info().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("daemon: shutdown errors: %v", errs)
	}
	return nil
}
