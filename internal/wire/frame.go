// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package wire

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/earthforus/earthforus/internal/models"
)

// Frame is a decoded, classified frame. The set of implementations is closed;
// callers dispatch with Accept so that adding a variant breaks every visitor
// that does not handle it.
type Frame interface {
	Kind() Type
	Envelope() Envelope
	Accept(v FrameVisitor)
	sealed()
}

// FrameVisitor handles every Frame variant.
type FrameVisitor interface {
	VisitChat(f *ChatFrame)
	VisitJoin(f *JoinFrame)
	VisitLeave(f *LeaveFrame)
	VisitUserJoined(f *UserJoinedFrame)
	VisitUserLeft(f *UserLeftFrame)
	VisitSystem(f *SystemFrame)
	VisitUnknown(f *UnknownFrame)
}

type base struct {
	env Envelope
}

func (b base) Envelope() Envelope { return b.env }

func (base) sealed() {}

// ChatFrame is a chat_message scoped to Room.
type ChatFrame struct {
	base
	Room int64
}

// Kind implements Frame.
func (*ChatFrame) Kind() Type { return TypeChatMessage }

// Accept implements Frame.
func (f *ChatFrame) Accept(v FrameVisitor) { v.VisitChat(f) }

// Message decodes the persisted chat message carried in the frame.
func (f *ChatFrame) Message() (models.ChatMessage, error) {
	var m models.ChatMessage
	if err := json.Unmarshal(f.env.Data, &m); err != nil {
		return models.ChatMessage{}, fmt.Errorf("decode chat payload: %w", err)
	}
	return m, nil
}

// Relay returns the frame as broadcast to the room: the same data and
// timestamp, with the top-level eventId set.
func (f *ChatFrame) Relay() Envelope {
	env := f.env
	room := f.Room
	env.Type = TypeChatMessage
	env.EventID = &room
	return env
}

// JoinFrame is a join_event for Room.
type JoinFrame struct {
	base
	Room int64
}

// Kind implements Frame.
func (*JoinFrame) Kind() Type { return TypeJoinEvent }

// Accept implements Frame.
func (f *JoinFrame) Accept(v FrameVisitor) { v.VisitJoin(f) }

// LeaveFrame is a leave_event for Room.
type LeaveFrame struct {
	base
	Room int64
}

// Kind implements Frame.
func (*LeaveFrame) Kind() Type { return TypeLeaveEvent }

// Accept implements Frame.
func (f *LeaveFrame) Accept(v FrameVisitor) { v.VisitLeave(f) }

// UserJoinedFrame is a server presence notification.
type UserJoinedFrame struct {
	base
	Presence PresencePayload
}

// Kind implements Frame.
func (*UserJoinedFrame) Kind() Type { return TypeUserJoined }

// Accept implements Frame.
func (f *UserJoinedFrame) Accept(v FrameVisitor) { v.VisitUserJoined(f) }

// UserLeftFrame is a server presence notification.
type UserLeftFrame struct {
	base
	Presence PresencePayload
}

// Kind implements Frame.
func (*UserLeftFrame) Kind() Type { return TypeUserLeft }

// Accept implements Frame.
func (f *UserLeftFrame) Accept(v FrameVisitor) { v.VisitUserLeft(f) }

// SystemFrame is a system_message. Payload is zero when data is not an object.
type SystemFrame struct {
	base
	Payload SystemPayload
}

// Kind implements Frame.
func (*SystemFrame) Kind() Type { return TypeSystemMessage }

// Accept implements Frame.
func (f *SystemFrame) Accept(v FrameVisitor) { v.VisitSystem(f) }

// IsPing reports whether the frame is a heartbeat ping.
func (f *SystemFrame) IsPing() bool { return f.Payload.Action == ActionPing }

// UnknownFrame carries a well-formed frame whose type is missing or not
// recognized.
type UnknownFrame struct {
	base
}

// Kind implements Frame.
func (f *UnknownFrame) Kind() Type { return f.env.Type }

// Accept implements Frame.
func (f *UnknownFrame) Accept(v FrameVisitor) { v.VisitUnknown(f) }

// Decode parses raw and classifies it. It returns ErrMalformedFrame for
// non-object input and ErrMissingRoom for room-scoped frames without a
// positive integer room id. A missing or unrecognized type is not an error;
// it decodes to an UnknownFrame.
func Decode(raw []byte) (Frame, error) {
	env, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Classify(env)
}

// Classify turns an already parsed envelope into a Frame.
func Classify(env Envelope) (Frame, error) {
	b := base{env: env}

	switch env.Type {
	case TypeChatMessage:
		room, err := chatRoom(env.Data)
		if err != nil {
			return nil, err
		}
		return &ChatFrame{base: b, Room: room}, nil
	case TypeJoinEvent:
		room, err := roomRef(env.Data)
		if err != nil {
			return nil, err
		}
		return &JoinFrame{base: b, Room: room}, nil
	case TypeLeaveEvent:
		room, err := roomRef(env.Data)
		if err != nil {
			return nil, err
		}
		return &LeaveFrame{base: b, Room: room}, nil
	case TypeUserJoined:
		return &UserJoinedFrame{base: b, Presence: presence(env.Data)}, nil
	case TypeUserLeft:
		return &UserLeftFrame{base: b, Presence: presence(env.Data)}, nil
	case TypeSystemMessage:
		var p SystemPayload
		_ = json.Unmarshal(env.Data, &p)
		return &SystemFrame{base: b, Payload: p}, nil
	default:
		return &UnknownFrame{base: b}, nil
	}
}

func presence(data json.RawMessage) PresencePayload {
	var p PresencePayload
	_ = json.Unmarshal(data, &p)
	return p
}
