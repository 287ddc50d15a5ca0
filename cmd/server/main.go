// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/earthforus/earthforus/internal/config"
	"github.com/earthforus/earthforus/internal/logging"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("store", cfg.Store.Driver).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Starting EarthForUs realtime server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize server")
	}

	err = app.run(ctx)
	app.close()
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
	logging.Info().Msg("Server stopped")
}
