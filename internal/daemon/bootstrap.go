package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	goruntime "runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/TUM-Dev/VMP/internal/broker"
	"github.com/TUM-Dev/VMP/internal/calendar"
	"github.com/TUM-Dev/VMP/internal/channel"
	"github.com/TUM-Dev/VMP/internal/clock"
	"github.com/TUM-Dev/VMP/internal/config"
	"github.com/TUM-Dev/VMP/internal/control"
	"github.com/TUM-Dev/VMP/internal/control/httpapi"
	"github.com/TUM-Dev/VMP/internal/gst"
	"github.com/TUM-Dev/VMP/internal/logging"
	"github.com/TUM-Dev/VMP/internal/metrics"
	"github.com/TUM-Dev/VMP/internal/profile"
	"github.com/TUM-Dev/VMP/internal/rtsp"
)

// App is the fully wired daemon: every component Bootstrap constructed,
// started, and registered for ordered shutdown via its Manager.
type App struct {
	Manager *Manager

	Channels    *channel.Registry
	Mountpoints *rtsp.Binder
	Recordings  *broker.Broker
	Profiles    *profile.Registry
	Adapter     *control.Adapter

	httpServer *http.Server
	serveErrCh chan error
	logger     zerolog.Logger
}

// Bootstrap loads cfg, resolves the active profile, starts every
// channel, binds every mountpoint, opens the calendar scheduler and
// recording broker, and starts the control-plane HTTP server. The
// returned App's Manager.Shutdown reverses the start sequence.
//
// Errors are wrapped with one of ErrConfig, ErrProfile, or
// ErrRuntimeStart so cmd/vmpd can map a Bootstrap failure to an exit
// code without needing to know which internal step failed.
func Bootstrap(ctx context.Context, configPath string) (*App, error) {
	logger := logging.WithComponent("daemon")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	platform := cfg.Platform
	if platform == "" {
		platform = goruntime.GOOS
	}

	profiles, err := profile.NewRegistry(cfg.ProfileDirectory, platform, metrics.ProfileDrift)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	active := profiles.Active()
	logger.Info().Str("profile", active.Identifier).Str("version", active.Version).Str("platform", platform).Msg("profile selected")

	driftCtx, driftCancel := context.WithCancel(ctx)
	if err := profiles.WatchDrift(driftCtx); err != nil {
		logger.Warn().Err(err).Msg("profile drift watcher unavailable, continuing without it")
	}

	clk := clock.Real{}

	dotDumpDir := filepath.Join(cfg.ScratchDirectory, "dot")
	mediaRuntime, err := gst.NewRuntime(dotDumpDir)
	if err != nil {
		driftCancel()
		return nil, fmt.Errorf("%w: %v", ErrRuntimeStart, err)
	}

	channels, err := channel.NewRegistry(cfg.Channels, profiles, mediaRuntime, clk)
	if err != nil {
		driftCancel()
		return nil, fmt.Errorf("%w: %v", ErrRuntimeStart, err)
	}
	channels.StartAll()

	mountRuntime := rtsp.NewMemoryRuntime()
	mountpoints, err := rtsp.NewBinder(cfg.Mountpoints, profiles, mountRuntime)
	if err != nil {
		driftCancel()
		channels.StopAll()
		return nil, fmt.Errorf("%w: %v", ErrRuntimeStart, err)
	}

	dbPath := filepath.Join(cfg.ScratchDirectory, "vmp.db")
	store, err := calendar.OpenStore(dbPath)
	if err != nil {
		driftCancel()
		channels.StopAll()
		return nil, fmt.Errorf("%w: %v", ErrRuntimeStart, err)
	}

	history, err := broker.OpenHistory(dbPath)
	if err != nil {
		driftCancel()
		channels.StopAll()
		_ = store.Close()
		return nil, fmt.Errorf("%w: %v", ErrRuntimeStart, err)
	}

	recordings := broker.New(profiles, mediaRuntime, clk, cfg.ScratchDirectory, history)

	feed := calendar.NewHTTPFeed(cfg.ICalURL, nil)
	notify := recordings.NotifyFunc(broker.RecordingChannels{
		Video: cfg.RecordingVideoChannel,
		Audio: cfg.RecordingAudioChannel,
	})
	scheduler, err := calendar.New(calendar.Config{
		PollInterval:      cfg.PollInterval,
		NotifyBeforeStart: cfg.NotifyBeforeStart,
		Locations:         cfg.Locations,
	}, feed, store, clk, nil, notify)
	if err != nil {
		driftCancel()
		channels.StopAll()
		_ = history.Close()
		_ = store.Close()
		return nil, fmt.Errorf("%w: %v", ErrRuntimeStart, err)
	}
	schedCtx, schedCancel := context.WithCancel(ctx)
	scheduler.Start(schedCtx)

	adapter := control.New(channels, mountpoints, recordings, profiles, *cfg)
	router := httpapi.NewRouter(adapter, httpapi.Config{
		HTTPAuth:     cfg.HTTPAuth,
		HTTPUsername: cfg.HTTPUsername,
		HTTPPassword: cfg.HTTPPassword,
	})
	httpServer := &http.Server{Handler: router}

	// net.Listen (rather than letting ListenAndServe bind internally)
	// surfaces a bad address/port synchronously, the same way the
	// teacher's daemon manager separates listener acquisition from
	// serving.
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HTTPPort))
	if err != nil {
		schedCancel()
		driftCancel()
		channels.StopAll()
		_ = history.Close()
		_ = store.Close()
		return nil, fmt.Errorf("%w: control-plane listen: %v", ErrRuntimeStart, err)
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", listener.Addr().String()).Msg("control plane listening")
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- fmt.Errorf("control-plane listener: %w", err)
		}
	}()

	mgr := NewManager()
	// Registered in the order the components were started; Shutdown
	// unwinds LIFO into the required sequence: calendar first (no new
	// recordings), then active recordings, then channels (reverse start
	// order), then the RTSP runtime, then the event loop (the HTTP
	// listener here stands in for it).
	mgr.RegisterShutdownHook("http-listener", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})
	mgr.RegisterShutdownHook("rtsp-runtime", func(ctx context.Context) error {
		return mountpoints.Close()
	})
	mgr.RegisterShutdownHook("channels", func(ctx context.Context) error {
		channels.StopAll()
		return nil
	})
	mgr.RegisterShutdownHook("recordings", func(ctx context.Context) error {
		recordings.StopAll()
		return nil
	})
	mgr.RegisterShutdownHook("calendar-scheduler", func(ctx context.Context) error {
		schedCancel()
		driftCancel()
		if err := history.Close(); err != nil {
			return err
		}
		return store.Close()
	})

	return &App{
		Manager:     mgr,
		Channels:    channels,
		Mountpoints: mountpoints,
		Recordings:  recordings,
		Profiles:    profiles,
		Adapter:     adapter,
		httpServer:  httpServer,
		serveErrCh:  serveErrCh,
		logger:      logger,
	}, nil
}

// Run blocks until ctx is cancelled (normal shutdown signal) or the
// control-plane listener fails, then tears every component down via
// Manager.Shutdown.
func (a *App) Run(ctx context.Context) error {
	select {
	case err := <-a.serveErrCh:
		a.logger.Error().Err(err).Msg("control plane failed, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := a.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("%w (shutdown: %v)", err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		a.logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	}
}

// shutdownTimeout bounds the overall graceful-shutdown sequence Run
// drives once it decides to stop.
const shutdownTimeout = 20 * time.Second

// Shutdown runs every registered hook, bounded overall by ctx.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("shutting down")
	return a.Manager.Shutdown(ctx)
}
