// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Package storetest holds the behavioral test suite every store.Store driver
// must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/earthforus/earthforus/internal/models"
	"github.com/earthforus/earthforus/internal/store"
)

// Factory opens a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run exercises s against the store.Store contract.
func Run(t *testing.T, open Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAssignsIDAndTime", testCreate},
		{"CreateRejectsBadEvent", testCreateBadEvent},
		{"GetAndNotFound", testGet},
		{"ListAscendingPerEvent", testListOrder},
		{"ListAfterID", testListAfter},
		{"ListLimit", testListLimit},
		{"ListEmpty", testListEmpty},
		{"ConcurrentCreateUniqueIDs", testConcurrentCreate},
		{"CursorListSeesConcurrentCreates", testCursorDuringCreates},
		{"CanceledContext", testCanceled},
		{"Closed", testClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func newMsg(text string) models.NewChatMessage {
	return models.NewChatMessage{UserID: 1, UserName: "Ada", Message: text}
}

func mustCreate(t *testing.T, s store.Store, eventID int64, text string) models.ChatMessage {
	t.Helper()
	m, err := s.Create(context.Background(), eventID, newMsg(text))
	if err != nil {
		t.Fatalf("Create(%d, %q) error = %v", eventID, text, err)
	}
	return m
}

func testCreate(t *testing.T, s store.Store) {
	m := mustCreate(t, s, 42, "hello")
	if m.ID <= 0 {
		t.Errorf("ID = %d, want > 0", m.ID)
	}
	if m.EventID != 42 || m.UserID != 1 || m.UserName != "Ada" || m.Message != "hello" {
		t.Errorf("message = %+v", m)
	}
	if m.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	next := mustCreate(t, s, 42, "again")
	if next.ID <= m.ID {
		t.Errorf("ids not increasing: %d then %d", m.ID, next.ID)
	}
}

func testCreateBadEvent(t *testing.T, s store.Store) {
	for _, ev := range []int64{0, -1} {
		if _, err := s.Create(context.Background(), ev, newMsg("x")); !errors.Is(err, store.ErrInvalidEvent) {
			t.Errorf("Create(%d) error = %v, want ErrInvalidEvent", ev, err)
		}
	}
}

func testGet(t *testing.T, s store.Store) {
	m := mustCreate(t, s, 7, "find me")
	got, err := s.Get(context.Background(), 7, m.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != m.ID || got.Message != "find me" {
		t.Errorf("Get() = %+v", got)
	}
	if _, err := s.Get(context.Background(), 8, m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() in other event error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(context.Background(), 7, m.ID+1000); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() missing id error = %v, want ErrNotFound", err)
	}
}

func testListOrder(t *testing.T, s store.Store) {
	for i := 0; i < 3; i++ {
		mustCreate(t, s, 1, fmt.Sprintf("one-%d", i))
		mustCreate(t, s, 2, fmt.Sprintf("two-%d", i))
	}
	msgs, err := s.List(context.Background(), models.MessageQuery{EventID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.EventID != 1 {
			t.Errorf("message %d belongs to event %d", m.ID, m.EventID)
		}
		if want := fmt.Sprintf("one-%d", i); m.Message != want {
			t.Errorf("msgs[%d] = %q, want %q", i, m.Message, want)
		}
		if i > 0 && msgs[i-1].ID >= m.ID {
			t.Errorf("not ascending at %d", i)
		}
	}
}

func testListAfter(t *testing.T, s store.Store) {
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, mustCreate(t, s, 3, fmt.Sprint(i)).ID)
	}
	msgs, err := s.List(context.Background(), models.MessageQuery{EventID: 3, AfterID: ids[2]})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ID != ids[3] || msgs[1].ID != ids[4] {
		t.Errorf("after %d = %v", ids[2], msgs)
	}
}

func testListLimit(t *testing.T, s store.Store) {
	for i := 0; i < 5; i++ {
		mustCreate(t, s, 4, fmt.Sprint(i))
	}
	msgs, err := s.List(context.Background(), models.MessageQuery{EventID: 4, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Message != "0" || msgs[1].Message != "1" {
		t.Errorf("limit 2 = %v", msgs)
	}
}

func testListEmpty(t *testing.T, s store.Store) {
	msgs, err := s.List(context.Background(), models.MessageQuery{EventID: 99})
	if err != nil {
		t.Fatal(err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("List() = %#v, want empty non-nil slice", msgs)
	}
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	const workers, each = 8, 10
	var wg sync.WaitGroup
	errCh := make(chan error, workers*each)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if _, err := s.Create(context.Background(), 5, newMsg("x")); err != nil {
					errCh <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent Create() error = %v", err)
	}

	msgs, err := s.List(context.Background(), models.MessageQuery{EventID: 5, Limit: store.MaxLimit})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != workers*each {
		t.Fatalf("len = %d, want %d", len(msgs), workers*each)
	}
	seen := make(map[int64]bool)
	for _, m := range msgs {
		if seen[m.ID] {
			t.Fatalf("duplicate id %d", m.ID)
		}
		seen[m.ID] = true
	}
}

// testCursorDuringCreates polls by advancing an after-id cursor while writers
// race, the way a disconnected chat client catches up. Every message must
// turn up exactly once.
func testCursorDuringCreates(t *testing.T, s store.Store) {
	const workers, each, eventID = 8, 25, 6
	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, workers*each)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if _, err := s.Create(ctx, eventID, newMsg("x")); err != nil {
					errCh <- err
				}
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	seen := make(map[int64]int)
	var cursor int64
	poll := func() {
		msgs, err := s.List(ctx, models.MessageQuery{EventID: eventID, AfterID: cursor, Limit: store.MaxLimit})
		if err != nil {
			t.Fatalf("List(after %d) error = %v", cursor, err)
		}
		for _, m := range msgs {
			seen[m.ID]++
			if m.ID > cursor {
				cursor = m.ID
			}
		}
	}

	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		poll()
	}
	// Drain anything committed after the last in-flight poll.
	poll()

	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent Create() error = %v", err)
	}
	if len(seen) != workers*each {
		t.Errorf("cursor polling saw %d of %d messages", len(seen), workers*each)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("message %d listed %d times", id, n)
		}
	}
}

func testCanceled(t *testing.T, s store.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Create(ctx, 1, newMsg("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Create() error = %v, want context.Canceled", err)
	}
	if _, err := s.List(ctx, models.MessageQuery{EventID: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("List() error = %v, want context.Canceled", err)
	}
}

func testClosed(t *testing.T, s store.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Ping() after Close error = %v, want ErrClosed", err)
	}
	if _, err := s.Create(context.Background(), 1, newMsg("x")); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Create() after Close error = %v, want ErrClosed", err)
	}
}
