// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Package models holds the data types shared by the HTTP API, the chat
// stores, and the websocket wire format.
package models

import "time"

// ChatMessage is a persisted event chat message. It is also the data payload
// of a relayed chat_message frame.
type ChatMessage struct {
	ID        int64     `json:"id"`
	EventID   int64     `json:"event_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	IsSystem  bool      `json:"is_system,omitempty"`
}

// NewChatMessage is the body of POST /api/events/{eventId}/messages.
// EventID may be omitted; when present it must match the path.
type NewChatMessage struct {
	EventID  int64  `json:"event_id" validate:"gte=0"`
	UserID   int64  `json:"user_id" validate:"gt=0"`
	UserName string `json:"user_name" validate:"required,notblank,max=100"`
	Message  string `json:"message" validate:"required,notblank,max=2000"`
}

// MessageQuery filters a chat history listing.
type MessageQuery struct {
	EventID int64
	AfterID int64 // only messages with id > AfterID
	Limit   int
}

// Notice is a server-wide announcement delivered to every live socket.
type Notice struct {
	Message string    `json:"message" validate:"required,notblank,max=500"`
	SentAt  time.Time `json:"sent_at"`
}
