// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/earthforus/earthforus/internal/api"
	"github.com/earthforus/earthforus/internal/config"
	"github.com/earthforus/earthforus/internal/database"
	"github.com/earthforus/earthforus/internal/logging"
	"github.com/earthforus/earthforus/internal/notices"
	"github.com/earthforus/earthforus/internal/store"
	"github.com/earthforus/earthforus/internal/supervisor"
	"github.com/earthforus/earthforus/internal/supervisor/services"
	ws "github.com/earthforus/earthforus/internal/websocket"
)

// app holds the wired server components.
type app struct {
	cfg       *config.Config
	store     store.Store
	registry  *ws.Registry
	bus       *notices.Bus
	forwarder *notices.Forwarder
	server    *http.Server
	tree      *supervisor.SupervisorTree
}

// openStore opens the configured chat backend and instruments it.
func openStore(cfg config.StoreConfig) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Driver {
	case store.DriverDuckDB:
		s, err = database.NewChatStore(cfg.Path)
	case store.DriverBadger:
		s, err = store.OpenBadger(cfg.Path)
	case store.DriverMemory:
		s = store.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return store.Instrument(s), nil
}

func newRegistry(cfg config.WebSocketConfig) *ws.Registry {
	return ws.NewRegistry(
		ws.WithWelcomeMessage(cfg.WelcomeMessage),
		ws.WithPumpConfig(ws.PumpConfig{
			WriteWait:  cfg.WriteWait,
			PongWait:   cfg.PongWait,
			PingPeriod: cfg.PingPeriod,
			ReadLimit:  cfg.ReadLimit,
			SendBuffer: cfg.SendBuffer,
		}),
	)
}

func identityResolver(secret string) (ws.IdentityResolver, error) {
	if secret == "" {
		return ws.QueryIdentity{}, nil
	}
	return ws.NewJWTIdentity(secret)
}

// newApp wires every component. Nothing runs until run is called.
func newApp(cfg *config.Config) (*app, error) {
	s, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	logging.Info().Str("driver", s.Driver()).Str("path", cfg.Store.Path).Msg("Chat store opened")

	identity, err := identityResolver(cfg.Security.JWTSecret)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	bus, err := notices.NewBus(cfg.NATS, logging.NewWatermillAdapter())
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("notice bus: %w", err)
	}
	logging.Info().Str("transport", bus.Transport()).Str("topic", bus.Topic()).Msg("Notice bus ready")

	registry := newRegistry(cfg.WebSocket)
	forwarder := notices.NewForwarder(bus, registry)

	mwCfg := api.DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwCfg.RateLimitRequests = cfg.Security.RateLimitReqs
	mwCfg.RateLimitWindow = cfg.Security.RateLimitWindow
	mwCfg.AdminToken = cfg.Security.AdminToken
	if cfg.Security.AdminToken == "" {
		logging.Warn().Msg("ADMIN_TOKEN is not set; anyone can publish system notices")
	}

	wsHandler := ws.NewHandler(registry, ws.ServeOptions{
		AllowedOrigins: cfg.Security.CORSOrigins,
		Identity:       identity,
	})
	router := api.NewRouter(api.NewHandler(s, registry, bus), api.NewChiMiddleware(mwCfg), wsHandler)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		_ = bus.Close()
		_ = s.Close()
		return nil, fmt.Errorf("supervisor tree: %w", err)
	}
	tree.AddMessagingService(services.NewRegistryService(registry))
	tree.AddMessagingService(services.NewNoticeForwarderService(forwarder))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	return &app{
		cfg:       cfg,
		store:     s,
		registry:  registry,
		bus:       bus,
		forwarder: forwarder,
		server:    server,
		tree:      tree,
	}, nil
}

// run serves until ctx is canceled.
func (a *app) run(ctx context.Context) error {
	err := a.tree.Serve(ctx)
	if report, rerr := a.tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	return err
}

// close releases the bus and the store. Call after run returns.
func (a *app) close() {
	if err := errors.Join(a.bus.Close(), a.store.Close()); err != nil {
		logging.Error().Err(err).Msg("Error during shutdown")
	}
}
