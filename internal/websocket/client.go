// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package websocket

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// PumpConfig holds transport timings and buffer sizes.
type PumpConfig struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	ReadLimit  int64
	SendBuffer int
}

// DefaultPumpConfig returns the standard transport settings.
func DefaultPumpConfig() PumpConfig {
	return PumpConfig{
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: (60 * time.Second * 9) / 10,
		ReadLimit:  512 * 1024,
		SendBuffer: 256,
	}
}

func (p PumpConfig) withDefaults() PumpConfig {
	d := DefaultPumpConfig()
	if p.WriteWait <= 0 {
		p.WriteWait = d.WriteWait
	}
	if p.PongWait <= 0 {
		p.PongWait = d.PongWait
	}
	if p.PingPeriod <= 0 || p.PingPeriod >= p.PongWait {
		p.PingPeriod = (p.PongWait * 9) / 10
	}
	if p.ReadLimit <= 0 {
		p.ReadLimit = d.ReadLimit
	}
	if p.SendBuffer <= 0 {
		p.SendBuffer = d.SendBuffer
	}
	return p
}

// clientSeq orders clients by accept time so fan-out order is deterministic.
var clientSeq atomic.Uint64

// Client is one accepted socket: the connection record plus its transport.
type Client struct {
	seq    uint64
	id     string
	userID string

	registry *Registry
	conn     *websocket.Conn
	send     chan []byte
	pump     PumpConfig

	// rooms is written only by the registry loop, under registry.mu.
	rooms map[int64]struct{}
}

// NewClient creates a connection record with a fresh client id. conn may be
// nil for clients that are driven directly through the registry.
func NewClient(r *Registry, conn *websocket.Conn, userID string) *Client {
	return &Client{
		seq:      clientSeq.Add(1),
		id:       uuid.NewString(),
		userID:   userID,
		registry: r,
		conn:     conn,
		send:     make(chan []byte, r.pump.SendBuffer),
		pump:     r.pump,
		rooms:    make(map[int64]struct{}),
	}
}

// ID returns the client id, unique for the life of the process.
func (c *Client) ID() string {
	return c.id
}

// UserID returns the transport-level identity, or "".
func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) sortedRooms() []int64 {
	rooms := make([]int64, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

// readPump forwards inbound frames to the registry until the transport fails.
func (c *Client) readPump() {
	defer func() {
		_ = c.registry.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.pump.ReadLimit)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pump.PongWait)); err != nil {
		c.registry.telemetry.TransportError(c.id, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pump.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.registry.telemetry.TransportError(c.id, err)
			}
			return
		}
		if err := c.registry.Submit(c, raw); err != nil {
			return
		}
	}
}

// writePump drains the outbound queue and keeps the connection alive with
// transport pings. A closed queue means the registry dropped the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pump.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.pump.WriteWait)); err != nil {
				c.registry.telemetry.TransportError(c.id, err)
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.registry.telemetry.TransportError(c.id, err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.pump.WriteWait)); err != nil {
				c.registry.telemetry.TransportError(c.id, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start runs both pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
