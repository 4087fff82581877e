package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/TUM-Dev/VMP/internal/daemon"
	"github.com/TUM-Dev/VMP/internal/logging"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	os.Exit(run())
}

// run contains the entrypoint body so defers unwind before os.Exit, which
// main() itself must not run under.
func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	logging.Configure(logging.Config{
		Level:   "info",
		Service: "vmpd",
		Version: version,
	})
	logger := logging.WithComponent("daemon")

	if *configPath == "" {
		logger.Error().Msg("missing required -config flag")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("config", *configPath).
		Msg("starting vmpd")

	app, err := daemon.Bootstrap(ctx, *configPath)
	if err != nil {
		return exitCodeFor(logger, err)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("daemon exited with error")
		return 1
	}

	logger.Info().Msg("vmpd exiting")
	return 0
}

// exitCodeFor maps a Bootstrap failure to a process exit code by stage:
// 1 configuration, 2 profile, 3 runtime start.
func exitCodeFor(logger zerolog.Logger, err error) int {
	switch {
	case errors.Is(err, daemon.ErrConfig):
		logger.Error().Err(err).Msg("configuration error")
		return 1
	case errors.Is(err, daemon.ErrProfile):
		logger.Error().Err(err).Msg("profile error")
		return 2
	case errors.Is(err, daemon.ErrRuntimeStart):
		logger.Error().Err(err).Msg("runtime start failure")
		return 3
	default:
		logger.Error().Err(err).Msg("bootstrap failed")
		return 1
	}
}
