// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package client

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/earthforus/earthforus/internal/wire"
)

// Config controls how a Manager connects and reconnects.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:3000/ws.
	URL string

	// Header is sent with every handshake. Servers that check origins
	// need an Origin entry here.
	Header http.Header

	// BaseDelay is the first reconnect delay; each later attempt doubles it.
	BaseDelay time.Duration

	// MaxAttempts is the number of automatic reconnects before giving up.
	// Zero uses the default; a negative value disables reconnecting.
	MaxAttempts int

	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration

	// Dialer overrides the default gorilla dialer.
	Dialer *websocket.Dialer
}

// DefaultConfig returns the reconnect and heartbeat defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		BaseDelay:         time.Second,
		MaxAttempts:       5,
		HeartbeatInterval: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.URL)
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	} else if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}

// Handlers are the lifecycle callbacks of a Manager. Every field is
// optional. Callbacks run on manager goroutines without internal locks held,
// so they may call back into the manager.
type Handlers struct {
	OnMessage func(wire.Frame)
	OnOpen    func()
	OnClose   func(code int)
	OnError   func(error)

	// OnReconnectExhausted fires once when the last automatic reconnect
	// has failed. The manager stays closed until Connect is called.
	OnReconnectExhausted func()
}

func (h Handlers) message(f wire.Frame) {
	if h.OnMessage != nil {
		h.OnMessage(f)
	}
}

func (h Handlers) open() {
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

func (h Handlers) close(code int) {
	if h.OnClose != nil {
		h.OnClose(code)
	}
}

func (h Handlers) error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h Handlers) exhausted() {
	if h.OnReconnectExhausted != nil {
		h.OnReconnectExhausted()
	}
}
