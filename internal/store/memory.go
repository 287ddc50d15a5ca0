// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/earthforus/earthforus/internal/models"
)

// MemoryStore keeps messages in process memory. It is meant for development
// and tests; nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	events map[int64][]models.ChatMessage // ascending by id
	closed bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[int64][]models.ChatMessage)}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, eventID int64, msg models.NewChatMessage) (models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.ChatMessage{}, err
	}
	if eventID <= 0 {
		return models.ChatMessage{}, ErrInvalidEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.ChatMessage{}, ErrClosed
	}

	s.nextID++
	m := newMessage(s.nextID, eventID, msg)
	s.events[eventID] = append(s.events[eventID], m)
	return m, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, eventID, id int64) (models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.ChatMessage{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return models.ChatMessage{}, ErrClosed
	}

	msgs := s.events[eventID]
	i := sort.Search(len(msgs), func(i int) bool { return msgs[i].ID >= id })
	if i < len(msgs) && msgs[i].ID == id {
		return msgs[i], nil
	}
	return models.ChatMessage{}, ErrNotFound
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, q models.MessageQuery) ([]models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := NormalizeLimit(q.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	msgs := s.events[q.EventID]
	start := sort.Search(len(msgs), func(i int) bool { return msgs[i].ID > q.AfterID })
	end := start + limit
	if end > len(msgs) {
		end = len(msgs)
	}

	out := make([]models.ChatMessage, end-start)
	copy(out, msgs[start:end])
	return out, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Driver implements Store.
func (s *MemoryStore) Driver() string { return DriverMemory }

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
