// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/earthforus/earthforus/internal/models"
)

// inbox records delivered chat messages.
type inbox struct {
	mu   sync.Mutex
	msgs []models.ChatMessage
}

func (b *inbox) add(m models.ChatMessage) {
	b.mu.Lock()
	b.msgs = append(b.msgs, m)
	b.mu.Unlock()
}

func (b *inbox) ids() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int64, 0, len(b.msgs))
	for _, m := range b.msgs {
		out = append(out, m.ID)
	}
	return out
}

func (b *inbox) count(id int64) int {
	n := 0
	for _, got := range b.ids() {
		if got == id {
			n++
		}
	}
	return n
}

func runSession(t *testing.T, s *ChatSession) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestSessionsExchangeMessagesOnce(t *testing.T) {
	cs := newChatServer(t)
	ctx := context.Background()

	seeded, err := cs.store.Create(ctx, 42, models.NewChatMessage{UserID: 9, UserName: "Organizer", Message: "Welcome"})
	if err != nil {
		t.Fatal(err)
	}

	newSession := func(userID int64, name string, box *inbox) *ChatSession {
		rest := NewRESTClient(RESTConfig{BaseURL: cs.baseURL, BreakerName: "test-session-" + name})
		return NewChatSession(DefaultConfig(cs.wsURL), rest, SessionConfig{
			EventID:  42,
			UserID:   userID,
			UserName: name,
		}, box.add)
	}

	var aBox, bBox inbox
	a := newSession(1, "Ada", &aBox)
	b := newSession(2, "Lin", &bBox)
	runSession(t, a)
	runSession(t, b)

	waitFor(t, func() bool { return cs.registry.RoomSize(42) == 2 })
	waitFor(t, func() bool { return aBox.count(seeded.ID) == 1 && bBox.count(seeded.ID) == 1 })

	m1, err := a.Say(ctx, "Gloves are in the van")
	if err != nil {
		t.Fatalf("Say: %v", err)
	}
	if m1.ID <= seeded.ID || m1.UserName != "Ada" || m1.EventID != 42 {
		t.Errorf("persisted = %+v", m1)
	}
	m2, err := b.Say(ctx, "On my way")
	if err != nil {
		t.Fatalf("Say: %v", err)
	}

	waitFor(t, func() bool {
		return aBox.count(m2.ID) == 1 && bBox.count(m1.ID) == 1
	})
	// Let echoes and resync polls land before checking for duplicates.
	time.Sleep(100 * time.Millisecond)

	for name, box := range map[string]*inbox{"a": &aBox, "b": &bBox} {
		for _, id := range []int64{seeded.ID, m1.ID, m2.ID} {
			if n := box.count(id); n != 1 {
				t.Errorf("session %s got message %d %d times, want once", name, id, n)
			}
		}
		if got := len(box.ids()); got != 3 {
			t.Errorf("session %s got %d messages, want 3: %v", name, got, box.ids())
		}
	}
}

func TestSessionPollsWhileDisconnected(t *testing.T) {
	cs := newChatServer(t)
	ctx := context.Background()

	rest := NewRESTClient(RESTConfig{BaseURL: cs.baseURL, BreakerName: "test-session-poll"})
	wsCfg := DefaultConfig("ws://127.0.0.1:1/ws")
	wsCfg.MaxAttempts = -1

	var box inbox
	s := NewChatSession(wsCfg, rest, SessionConfig{
		EventID:      7,
		UserID:       3,
		UserName:     "Sam",
		PollInterval: 20 * time.Millisecond,
	}, box.add)
	runSession(t, s)

	// Written by someone else while this session has no socket.
	other, err := cs.store.Create(ctx, 7, models.NewChatMessage{UserID: 4, UserName: "Kim", Message: "Route changed"})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return box.count(other.ID) == 1 })

	mine, err := s.Say(ctx, "Thanks")
	if err != nil {
		t.Fatalf("Say with socket down: %v", err)
	}
	if mine.ID <= other.ID {
		t.Errorf("persisted id = %d, want > %d", mine.ID, other.ID)
	}
	if s.Manager().IsConnected() {
		t.Error("manager reports connected")
	}

	time.Sleep(100 * time.Millisecond)
	if n := box.count(mine.ID); n != 1 {
		t.Errorf("own message delivered %d times, want once", n)
	}
	if n := box.count(other.ID); n != 1 {
		t.Errorf("polled message delivered %d times, want once", n)
	}
}

func TestSayReturnsAPIErrors(t *testing.T) {
	cs := newChatServer(t)
	rest := NewRESTClient(RESTConfig{BaseURL: cs.baseURL, BreakerName: "test-session-say"})

	var box inbox
	s := NewChatSession(DefaultConfig(cs.wsURL), rest, SessionConfig{EventID: 5, UserID: 1, UserName: "Ada"}, box.add)

	if _, err := s.Say(context.Background(), ""); err == nil {
		t.Fatal("Say accepted an empty message")
	}
	if got := box.ids(); len(got) != 0 {
		t.Errorf("delivered %v after a failed Say", got)
	}
}
