// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Package wire defines the JSON frames exchanged over the chat websocket.
//
// Every frame is one JSON object:
//
//	{"type":"chat_message","data":{...},"timestamp":"2026-01-02T15:04:05.000Z","eventId":42}
//
// Parse turns raw bytes into an Envelope. Decode goes one step further and
// classifies the envelope into a Frame variant, validating the room id that
// room-scoped types require.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Type is the frame discriminator.
type Type string

// Frame types.
const (
	TypeChatMessage   Type = "chat_message"
	TypeJoinEvent     Type = "join_event"
	TypeLeaveEvent    Type = "leave_event"
	TypeUserJoined    Type = "user_joined"
	TypeUserLeft      Type = "user_left"
	TypeSystemMessage Type = "system_message"
)

// System actions.
const (
	ActionPing = "ping"
	ActionPong = "pong"
)

// TimestampLayout renders millisecond UTC timestamps ("2026-01-02T15:04:05.000Z").
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	// ErrMalformedFrame is returned for bytes that are not a JSON object.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrMissingRoom is returned when a room-scoped frame lacks a usable room id.
	ErrMissingRoom = errors.New("missing room id")
)

// Envelope is the outer shape of every frame.
type Envelope struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
	EventID   *int64          `json:"eventId,omitempty"`
}

// inbound tolerates a non-numeric top-level eventId, which is advisory only.
type inbound struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
	EventID   json.RawMessage `json:"eventId"`
}

// SystemPayload is the data of a system_message frame.
type SystemPayload struct {
	Action  string `json:"action,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RoomPayload is the data of join_event and leave_event frames.
type RoomPayload struct {
	EventID int64 `json:"eventId"`
}

// PresencePayload is the data of user_joined and user_left frames.
type PresencePayload struct {
	ClientID string `json:"clientId"`
	UserID   string `json:"userId,omitempty"`
	EventID  int64  `json:"eventId"`
}

// Now returns the current time in the frame timestamp format.
func Now() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// Parse decodes raw into an Envelope. Any valid JSON object parses, including
// one without a type.
func Parse(raw []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, ErrMalformedFrame
	}

	var in inbound
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	env := Envelope{Type: in.Type, Data: in.Data, Timestamp: in.Timestamp}
	if id, ok := parseRoomID(in.EventID); ok {
		env.EventID = &id
	}
	return env, nil
}

// Encode serializes an envelope, stamping the timestamp when it is empty.
func Encode(env Envelope) ([]byte, error) {
	if env.Timestamp == "" {
		env.Timestamp = Now()
	}
	return json.Marshal(env)
}

// New builds an envelope with data marshaled from payload.
func New(t Type, payload interface{}, room *int64) (Envelope, error) {
	env := Envelope{Type: t, Timestamp: Now(), EventID: room}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Data = data
	}
	return env, nil
}

// mustNew is for payload types that always marshal.
func mustNew(t Type, payload interface{}, room *int64) Envelope {
	env, err := New(t, payload, room)
	if err != nil {
		panic(err)
	}
	return env
}

// System builds a system_message frame.
func System(p SystemPayload) Envelope {
	return mustNew(TypeSystemMessage, p, nil)
}

// Notice builds a system_message carrying a human-readable message.
func Notice(message string) Envelope {
	return System(SystemPayload{Message: message})
}

// ErrorReply builds a system_message carrying an error description.
func ErrorReply(reason string) Envelope {
	return System(SystemPayload{Error: reason})
}

// Ping builds the heartbeat frame sent by clients.
func Ping() Envelope {
	return System(SystemPayload{Action: ActionPing})
}

// Pong builds the heartbeat reply.
func Pong() Envelope {
	return System(SystemPayload{Action: ActionPong})
}

// Join builds a join_event frame for room.
func Join(room int64) Envelope {
	return mustNew(TypeJoinEvent, RoomPayload{EventID: room}, &room)
}

// Leave builds a leave_event frame for room.
func Leave(room int64) Envelope {
	return mustNew(TypeLeaveEvent, RoomPayload{EventID: room}, &room)
}

// UserJoined builds the presence frame broadcast on a first join.
func UserJoined(room int64, clientID, userID string) Envelope {
	return mustNew(TypeUserJoined, PresencePayload{ClientID: clientID, UserID: userID, EventID: room}, &room)
}

// UserLeft builds the presence frame broadcast on leave or disconnect.
func UserLeft(room int64, clientID, userID string) Envelope {
	return mustNew(TypeUserLeft, PresencePayload{ClientID: clientID, UserID: userID, EventID: room}, &room)
}

// Chat builds a chat_message frame from a persisted message payload. The
// payload must carry an event_id, which is mirrored to the top-level eventId.
func Chat(payload interface{}) (Envelope, error) {
	env, err := New(TypeChatMessage, payload, nil)
	if err != nil {
		return Envelope{}, err
	}
	room, err := chatRoom(env.Data)
	if err != nil {
		return Envelope{}, err
	}
	env.EventID = &room
	return env, nil
}

// parseRoomID accepts a positive JSON integer.
func parseRoomID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func chatRoom(data json.RawMessage) (int64, error) {
	var ref struct {
		EventID json.RawMessage `json:"event_id"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return 0, fmt.Errorf("%w: chat data is not an object", ErrMissingRoom)
	}
	id, ok := parseRoomID(ref.EventID)
	if !ok {
		return 0, fmt.Errorf("%w: data.event_id is required", ErrMissingRoom)
	}
	return id, nil
}

func roomRef(data json.RawMessage) (int64, error) {
	var ref struct {
		EventID json.RawMessage `json:"eventId"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return 0, fmt.Errorf("%w: data is not an object", ErrMissingRoom)
	}
	id, ok := parseRoomID(ref.EventID)
	if !ok {
		return 0, fmt.Errorf("%w: data.eventId is required", ErrMissingRoom)
	}
	return id, nil
}
