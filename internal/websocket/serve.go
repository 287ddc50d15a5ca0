// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package websocket

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/earthforus/earthforus/internal/logging"
)

// ServeOptions configures the upgrade endpoint.
type ServeOptions struct {
	// AllowedOrigins is the Origin allow-list. "*" matches any origin; an
	// empty list accepts every origin.
	AllowedOrigins []string

	// AllowMissingOrigin accepts requests without an Origin header, which
	// only non-browser clients send.
	AllowMissingOrigin bool

	// Identity resolves the user id. Nil means QueryIdentity.
	Identity IdentityResolver

	HandshakeTimeout time.Duration
}

// Handler upgrades HTTP requests and hands the sockets to a Registry.
type Handler struct {
	registry *Registry
	opts     ServeOptions
	upgrader websocket.Upgrader
}

// NewHandler returns an http.Handler serving the chat socket.
func NewHandler(r *Registry, opts ServeOptions) *Handler {
	if opts.Identity == nil {
		opts.Identity = QueryIdentity{}
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	h := &Handler{registry: r, opts: opts}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ServeWS(h, w, r)
}

// ServeWS resolves the caller's identity, upgrades the connection and starts
// its pumps.
func ServeWS(h *Handler, w http.ResponseWriter, r *http.Request) {
	if !h.registry.Running() {
		http.Error(w, "websocket service unavailable", http.StatusServiceUnavailable)
		return
	}

	userID, err := h.opts.Identity.Resolve(r)
	if err != nil {
		logging.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket connection rejected: bad identity token")
		status := http.StatusBadRequest
		if errors.Is(err, ErrInvalidToken) {
			status = http.StatusUnauthorized
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := NewClient(h.registry, conn, userID)
	if err := h.registry.Register(client); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.registry.pump.WriteWait))
		_ = conn.Close()
		return
	}
	client.Start()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		if h.opts.AllowMissingOrigin {
			return true
		}
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters and bounds the length of
// untrusted header values before they are logged.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b = append(b, r)
		if len(b) >= maxLen {
			break
		}
	}
	return string(b)
}
