// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Package api serves the HTTP surface of the realtime server: the chat
// history endpoints, system notice publishing, health probes, metrics and
// the websocket upgrade route.
package api

import (
	"context"
	"time"

	"github.com/earthforus/earthforus/internal/models"
	"github.com/earthforus/earthforus/internal/store"
)

// Connections reports registry state for the readiness probe.
// Satisfied by *websocket.Registry.
type Connections interface {
	ClientCount() int
	RoomCount() int
	Running() bool
}

// NoticePublisher puts a system notice on the notice bus.
// Satisfied by *notices.Bus.
type NoticePublisher interface {
	Publish(ctx context.Context, text string) (models.Notice, error)
	Transport() string
}

// Handler contains dependencies for API handlers.
//
// Methods are split across files:
//   - handlers_messages.go: chat history
//   - handlers_notices.go: system notices
//   - handlers_health.go: liveness and readiness
type Handler struct {
	store       store.Store
	connections Connections
	notices     NoticePublisher // optional
	startTime   time.Time
}

// NewHandler creates the API handler. notices may be nil, in which case
// notice publishing answers 503.
func NewHandler(s store.Store, conns Connections, notices NoticePublisher) *Handler {
	return &Handler{
		store:       s,
		connections: conns,
		notices:     notices,
		startTime:   time.Now(),
	}
}
