// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package wire

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/earthforus/earthforus/internal/models"
)

// kindRecorder records which visitor method ran.
type kindRecorder struct {
	got string
}

func (r *kindRecorder) VisitChat(*ChatFrame)             { r.got = "chat" }
func (r *kindRecorder) VisitJoin(*JoinFrame)             { r.got = "join" }
func (r *kindRecorder) VisitLeave(*LeaveFrame)           { r.got = "leave" }
func (r *kindRecorder) VisitUserJoined(*UserJoinedFrame) { r.got = "user_joined" }
func (r *kindRecorder) VisitUserLeft(*UserLeftFrame)     { r.got = "user_left" }
func (r *kindRecorder) VisitSystem(*SystemFrame)         { r.got = "system" }
func (r *kindRecorder) VisitUnknown(*UnknownFrame)       { r.got = "unknown" }

func TestDecodeDispatch(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"chat", `{"type":"chat_message","data":{"id":1,"event_id":42,"message":"hi"}}`, "chat"},
		{"join", `{"type":"join_event","data":{"eventId":42}}`, "join"},
		{"leave", `{"type":"leave_event","data":{"eventId":42}}`, "leave"},
		{"user joined", `{"type":"user_joined","data":{"clientId":"a","eventId":42}}`, "user_joined"},
		{"user left", `{"type":"user_left","data":{"clientId":"a","eventId":42}}`, "user_left"},
		{"system", `{"type":"system_message","data":{"action":"ping"}}`, "system"},
		{"unknown type", `{"type":"typing_indicator","data":{}}`, "unknown"},
		{"missing type", `{"data":{"eventId":42}}`, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			var r kindRecorder
			f.Accept(&r)
			if r.got != tt.want {
				t.Errorf("dispatched to %q, want %q", r.got, tt.want)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{"not json", "", "42", `"text"`, `{"type":`, "[1,2]"} {
		_, err := Decode([]byte(raw))
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("Decode(%q) error = %v, want ErrMalformedFrame", raw, err)
		}
	}
}

func TestDecodeMissingRoom(t *testing.T) {
	tests := []string{
		`{"type":"chat_message","data":{"message":"hi"}}`,
		`{"type":"chat_message","data":{"event_id":"abc"}}`,
		`{"type":"chat_message"}`,
		`{"type":"join_event","data":{}}`,
		`{"type":"join_event","data":{"eventId":0}}`,
		`{"type":"join_event","data":{"eventId":-3}}`,
		`{"type":"leave_event","data":"42"}`,
		`{"type":"leave_event","data":{"eventId":4.5}}`,
	}
	for _, raw := range tests {
		_, err := Decode([]byte(raw))
		if !errors.Is(err, ErrMissingRoom) {
			t.Errorf("Decode(%s) error = %v, want ErrMissingRoom", raw, err)
		}
	}
}

func TestDecodeRoomIDs(t *testing.T) {
	f, err := Decode([]byte(`{"type":"join_event","data":{"eventId":42},"timestamp":"2026-01-01T00:00:00.000Z"}`))
	if err != nil {
		t.Fatal(err)
	}
	join, ok := f.(*JoinFrame)
	if !ok {
		t.Fatalf("got %T, want *JoinFrame", f)
	}
	if join.Room != 42 {
		t.Errorf("Room = %d, want 42", join.Room)
	}
	if join.Envelope().Timestamp != "2026-01-01T00:00:00.000Z" {
		t.Errorf("timestamp not preserved: %q", join.Envelope().Timestamp)
	}
}

func TestParseToleratesBadTopLevelEventID(t *testing.T) {
	env, err := Parse([]byte(`{"type":"system_message","data":{},"eventId":"nope"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if env.EventID != nil {
		t.Errorf("EventID = %v, want nil", *env.EventID)
	}
}

func TestChatRelayKeepsData(t *testing.T) {
	raw := `{"type":"chat_message","data":{"id":7,"event_id":42,"user_id":3,"user_name":"Ada","message":"hello","created_at":"2026-01-01T10:00:00Z"},"timestamp":"2026-01-01T10:00:00.123Z"}`
	f, err := Decode([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	chat := f.(*ChatFrame)
	relay := chat.Relay()

	if relay.EventID == nil || *relay.EventID != 42 {
		t.Fatalf("relay eventId = %v, want 42", relay.EventID)
	}
	if string(relay.Data) != string(chat.Envelope().Data) {
		t.Errorf("relay data changed: %s", relay.Data)
	}
	if relay.Timestamp != "2026-01-01T10:00:00.123Z" {
		t.Errorf("relay timestamp = %q", relay.Timestamp)
	}

	msg, err := chat.Message()
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != 7 || msg.UserName != "Ada" || msg.Message != "hello" {
		t.Errorf("decoded message = %+v", msg)
	}
}

func TestBuilders(t *testing.T) {
	out, err := Encode(Pong())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"type":"system_message"`) || !strings.Contains(string(out), `"action":"pong"`) {
		t.Errorf("pong = %s", out)
	}
	if strings.Contains(string(out), "eventId") {
		t.Errorf("system frames must not carry eventId: %s", out)
	}

	joined := UserJoined(42, "c1", "")
	if joined.EventID == nil || *joined.EventID != 42 {
		t.Errorf("user_joined eventId = %v", joined.EventID)
	}
	var p PresencePayload
	if err := json.Unmarshal(joined.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.ClientID != "c1" || p.EventID != 42 || p.UserID != "" {
		t.Errorf("presence = %+v", p)
	}

	msg := models.ChatMessage{ID: 1, EventID: 9, UserID: 2, UserName: "Bo", Message: "x", CreatedAt: time.Now()}
	chat, err := Chat(msg)
	if err != nil {
		t.Fatal(err)
	}
	if chat.EventID == nil || *chat.EventID != 9 {
		t.Errorf("chat eventId = %v, want 9", chat.EventID)
	}

	if _, err := Chat(models.ChatMessage{Message: "no room"}); !errors.Is(err, ErrMissingRoom) {
		t.Errorf("Chat without event_id error = %v", err)
	}
}

func TestEncodeStampsTimestamp(t *testing.T) {
	out, err := Encode(Envelope{Type: TypeSystemMessage})
	if err != nil {
		t.Fatal(err)
	}
	env, err := Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := time.Parse(TimestampLayout, env.Timestamp); err != nil {
		t.Errorf("timestamp %q does not parse: %v", env.Timestamp, err)
	}
}
