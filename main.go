// Command fauxpostd is the privileged side: it owns the cache, the settings
// record and the classifier client, and serves the message protocol over a
// local HTTP bridge.
package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibeckermayer/fauxpost/internal/app"
	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/logger"
)

func main() {
	log := logger.Get()

	path, err := config.ConfigPath()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve config path")
	}

	// Load or create configuration
	cfg, err := config.LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run - create default config
			cfg = config.Default()
			if err := cfg.SaveFile(path); err != nil {
				log.Warn().Err(err).Msg("could not save default config")
			} else {
				log.Info().Str("path", path).Msg("created default config")
			}
		} else {
			log.Warn().Err(err).Msg("could not load config, using defaults")
			cfg = config.Default()
		}
	}

	logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log = logger.Named("daemon")

	a, err := app.New(cfg, path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("addr", cfg.Bridge.ListenAddr).Msg("fauxpost daemon starting")
	if err := a.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("daemon stopped")
		return
	}
	log.Info().Msg("daemon stopped")
}
