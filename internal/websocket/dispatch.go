// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package websocket

import (
	"github.com/earthforus/earthforus/internal/wire"
)

// dispatcher applies one decoded frame from c. It runs on the registry loop.
type dispatcher struct {
	r *Registry
	c *Client
}

var _ wire.FrameVisitor = (*dispatcher)(nil)

// VisitChat relays to the whole room, sender included.
func (d *dispatcher) VisitChat(f *wire.ChatFrame) {
	d.r.broadcastToRoom(f.Room, f.Relay(), "")
}

// VisitJoin is idempotent; only a first join is announced, and never to the
// joiner.
func (d *dispatcher) VisitJoin(f *wire.JoinFrame) {
	if !d.r.join(d.c, f.Room) {
		return
	}
	d.r.telemetry.RoomJoined(d.c.id, f.Room, d.r.RoomCount())
	d.r.broadcastToRoom(f.Room, wire.UserJoined(f.Room, d.c.id, d.c.userID), d.c.id)
}

// VisitLeave mirrors VisitJoin. Leaving a room that was never joined is a
// silent no-op.
func (d *dispatcher) VisitLeave(f *wire.LeaveFrame) {
	if !d.r.leave(d.c, f.Room) {
		return
	}
	d.r.telemetry.RoomLeft(d.c.id, f.Room, d.r.RoomCount())
	d.r.broadcastToRoom(f.Room, wire.UserLeft(f.Room, d.c.id, d.c.userID), d.c.id)
}

// VisitUserJoined drops presence frames; only the server originates them.
func (d *dispatcher) VisitUserJoined(f *wire.UserJoinedFrame) {
	d.r.telemetry.FrameDropped(d.c.id, f.Kind())
}

// VisitUserLeft drops presence frames; only the server originates them.
func (d *dispatcher) VisitUserLeft(f *wire.UserLeftFrame) {
	d.r.telemetry.FrameDropped(d.c.id, f.Kind())
}

// VisitSystem answers pings to the sender only.
func (d *dispatcher) VisitSystem(f *wire.SystemFrame) {
	if f.IsPing() {
		d.r.sendTo(d.c, wire.Pong())
		return
	}
	d.r.telemetry.FrameDropped(d.c.id, f.Kind())
}

// VisitUnknown drops the frame without replying.
func (d *dispatcher) VisitUnknown(f *wire.UnknownFrame) {
	d.r.telemetry.FrameDropped(d.c.id, f.Kind())
}
