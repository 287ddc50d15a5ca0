// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/earthforus/earthforus/internal/middleware"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	websocket     http.Handler
}

// NewRouter creates a router. ws serves the /ws upgrade route.
func NewRouter(handler *Handler, mw *ChiMiddleware, ws http.Handler) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw, websocket: ws}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Applied to all routes in order
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	// Origin checks happen in the upgrade handler.
	if router.websocket != nil {
		r.With(middleware.PrometheusMetrics).Get("/ws", router.websocket.ServeHTTP)
	}

	r.Route("/api/events/{eventId}/messages", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit("messages"))
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Compression)

		r.Get("/", router.handler.ListMessages)
		r.Post("/", router.handler.CreateMessage)
		r.Get("/{messageId}", router.handler.GetMessage)
	})

	r.Route("/api/v1/notices", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit("notices"))
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.chiMiddleware.RequireAdminToken())

		r.Post("/", router.handler.PostNotice)
	})

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Not found", nil)
	})

	return r
}
