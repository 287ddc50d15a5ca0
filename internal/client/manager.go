// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Package client is the Go client for the realtime chat server.
//
// Manager owns one logical websocket connection and hides reconnection from
// its caller. RESTClient talks to the chat history API, and ChatSession
// combines both for a single event room, falling back to polling while the
// socket is down.
package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/earthforus/earthforus/internal/logging"
	"github.com/earthforus/earthforus/internal/wire"
)

// stopper is the part of *time.Timer the manager needs.
type stopper interface {
	Stop() bool
}

// Manager keeps a websocket connection open with exponential backoff
// reconnects and a periodic ping.
//
// Every socket the manager opens gets a generation number. Events from a
// socket whose generation is no longer current are ignored, so a late close
// from a replaced or deliberately closed socket never changes state.
type Manager struct {
	cfg      Config
	handlers Handlers
	dialer   *websocket.Dialer
	logger   zerolog.Logger

	// afterFunc schedules reconnects; tests replace it to observe delays.
	afterFunc func(d time.Duration, f func()) stopper

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	gen        uint64
	attempts   int
	backoff    backoff.BackOff
	reconnect  stopper
	heartbeat  chan struct{}
	cancelDial context.CancelFunc

	// gorilla connections support one concurrent writer.
	writeMu sync.Mutex
}

// NewManager creates a manager in StateIdle. Nothing is dialed until
// Connect.
func NewManager(cfg Config, handlers Handlers) *Manager {
	cfg = cfg.withDefaults()

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.BaseDelay
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = cfg.BaseDelay << 20
	eb.MaxElapsedTime = 0
	eb.Reset()

	return &Manager{
		cfg:      cfg,
		handlers: handlers,
		dialer:   dialer,
		logger:   logging.WithComponent("ws-client"),
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		state:   StateIdle,
		backoff: backoff.WithMaxRetries(eb, uint64(cfg.MaxAttempts)),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the socket is open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateOpen
}

// Attempts returns the number of reconnects scheduled since the last open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect starts connecting in the background. It is a no-op while a socket
// is open or a dial is in flight. Any pending reconnect is replaced and the
// attempt budget starts over. Failures are reported through the handlers.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateOpen || m.state == StateConnecting {
		m.logger.Debug().Str("state", m.state.String()).Msg("Connect ignored; already connected or connecting")
		return
	}

	m.stopReconnectLocked()
	m.attempts = 0
	m.backoff.Reset()
	m.dialLocked()
}

// Disconnect closes the socket with a normal closure and cancels any pending
// reconnect. It is safe to call at any time, any number of times.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	m.stopReconnectLocked()
	m.stopHeartbeatLocked()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	conn := m.conn
	m.conn = nil
	m.attempts = 0
	m.backoff.Reset()
	if m.state != StateIdle {
		m.state = StateClosed
	}
	m.mu.Unlock()

	if conn == nil {
		return
	}

	m.writeMu.Lock()
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
		time.Now().Add(m.cfg.WriteTimeout))
	m.writeMu.Unlock()
	if err != nil {
		m.logger.Debug().Err(err).Msg("Close frame not sent")
	}
	_ = conn.Close()

	m.logger.Info().Msg("Disconnected")
	m.handlers.close(websocket.CloseNormalClosure)
}

// Send writes env to the socket. It returns false when the manager is not
// open or the write fails; it never blocks on reconnection.
func (m *Manager) Send(env wire.Envelope) bool {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()
	if !open || conn == nil {
		return false
	}

	data, err := wire.Encode(env)
	if err != nil {
		m.logger.Warn().Err(err).Str("type", string(env.Type)).Msg("Failed to encode frame")
		return false
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.logger.Warn().Err(err).Str("type", string(env.Type)).Msg("Failed to send frame")
		return false
	}
	return true
}

func (m *Manager) dialLocked() {
	m.gen++
	gen := m.gen
	m.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	go m.dial(ctx, gen)
}

func (m *Manager) dial(ctx context.Context, gen uint64) {
	conn, resp, err := m.dialer.DialContext(ctx, m.cfg.URL, m.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.cancelDial = nil

	if err != nil {
		m.state = StateClosed
		m.mu.Unlock()

		m.logger.Warn().Err(err).Str("url", m.cfg.URL).Msg("Dial failed")
		m.handlers.error(err)
		m.handlers.close(websocket.CloseAbnormalClosure)
		m.scheduleReconnect(gen)
		return
	}

	m.conn = conn
	m.state = StateOpen
	m.attempts = 0
	m.backoff.Reset()
	m.startHeartbeatLocked()
	m.mu.Unlock()

	m.logger.Info().Str("url", m.cfg.URL).Msg("Connected")
	m.handlers.open()
	go m.readLoop(conn, gen)
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, gen, err)
			return
		}
		if !m.current(gen) {
			return
		}

		frame, err := wire.Decode(data)
		if err != nil {
			m.logger.Debug().Err(err).Msg("Dropping undecodable frame")
			continue
		}
		m.handlers.message(frame)
	}
}

// handleClose runs when the read side of a socket fails.
func (m *Manager) handleClose(conn *websocket.Conn, gen uint64, err error) {
	_ = conn.Close()
	if !m.current(gen) {
		return
	}

	code := websocket.CloseAbnormalClosure
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
	} else {
		m.handlers.error(err)
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	m.conn = nil
	m.state = StateClosed
	m.mu.Unlock()

	m.logger.Info().Int("code", code).Msg("Connection closed")
	m.handlers.close(code)

	if code != websocket.CloseNormalClosure {
		m.scheduleReconnect(gen)
	}
}

// scheduleReconnect arms the next reconnect for a socket of generation gen
// that has just closed, or reports exhaustion.
func (m *Manager) scheduleReconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateClosed || m.reconnect != nil {
		m.mu.Unlock()
		return
	}

	delay := m.backoff.NextBackOff()
	if delay == backoff.Stop {
		attempts := m.attempts
		m.mu.Unlock()
		m.logger.Warn().Int("attempts", attempts).Msg("Reconnect attempts exhausted")
		m.handlers.exhausted()
		return
	}

	m.attempts++
	attempt := m.attempts
	m.reconnect = m.afterFunc(delay, func() { m.fireReconnect(gen) })
	m.mu.Unlock()

	m.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnect scheduled")
}

func (m *Manager) fireReconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != StateClosed {
		return
	}
	m.reconnect = nil
	m.dialLocked()
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

func (m *Manager) startHeartbeatLocked() {
	stop := make(chan struct{})
	m.heartbeat = stop
	go m.runHeartbeat(stop, m.cfg.HeartbeatInterval)
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeat != nil {
		close(m.heartbeat)
		m.heartbeat = nil
	}
}

// runHeartbeat sends a ping every interval. A missing pong is not treated as
// a failure; dead peers are detected by the transport.
func (m *Manager) runHeartbeat(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !m.Send(wire.Ping()) {
				m.logger.Debug().Msg("Heartbeat ping not sent")
			}
		}
	}
}
