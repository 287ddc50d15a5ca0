// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/earthforus/earthforus/internal/database/query"
	"github.com/earthforus/earthforus/internal/models"
	"github.com/earthforus/earthforus/internal/store"
)

var errClosed = store.ErrClosed

// ChatStore implements store.Store on DuckDB.
type ChatStore struct {
	db *DB

	// Inserts are serialized; DuckDB commits are optimistic.
	writeMu sync.Mutex
}

var _ store.Store = (*ChatStore)(nil)

// NewChatStore opens path (empty for in-memory) and returns a store that owns
// the connection.
func NewChatStore(path string) (*ChatStore, error) {
	db, err := New(path)
	if err != nil {
		return nil, err
	}
	return &ChatStore{db: db}, nil
}

const selectColumns = "id, event_id, user_id, user_name, message, created_at, is_system"

// Create implements store.Store.
func (s *ChatStore) Create(ctx context.Context, eventID int64, msg models.NewChatMessage) (models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.ChatMessage{}, err
	}
	if eventID <= 0 {
		return models.ChatMessage{}, store.ErrInvalidEvent
	}
	if s.db.closed.Load() {
		return models.ChatMessage{}, errClosed
	}

	// DuckDB timestamps carry microseconds.
	created := time.Now().UTC().Truncate(time.Microsecond)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var id int64
	err := s.db.conn.QueryRowContext(ctx,
		`INSERT INTO chat_messages (event_id, user_id, user_name, message, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`,
		eventID, msg.UserID, msg.UserName, msg.Message, created,
	).Scan(&id)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}

	return models.ChatMessage{
		ID:        id,
		EventID:   eventID,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
		Message:   msg.Message,
		CreatedAt: created,
	}, nil
}

// Get implements store.Store.
func (s *ChatStore) Get(ctx context.Context, eventID, id int64) (models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.ChatMessage{}, err
	}
	if s.db.closed.Load() {
		return models.ChatMessage{}, errClosed
	}

	where, args := query.NewWhereBuilder().Event(eventID).AddClause("id = ?", id).BuildWithPrefix()
	row := s.db.conn.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM chat_messages "+where, args...)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatMessage{}, store.ErrNotFound
	}
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("get chat message: %w", err)
	}
	return m, nil
}

// List implements store.Store.
func (s *ChatStore) List(ctx context.Context, q models.MessageQuery) ([]models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db.closed.Load() {
		return nil, errClosed
	}

	where, args := query.NewWhereBuilder().Event(q.EventID).AfterID(q.AfterID).BuildWithPrefix()
	limit := store.NormalizeLimit(q.Limit)

	rows, err := s.db.conn.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM chat_messages %s ORDER BY id ASC LIMIT %d", selectColumns, where, limit), args...)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer closeQuietly(rows)

	out := make([]models.ChatMessage, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return out, nil
}

// Ping implements store.Store.
func (s *ChatStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Driver implements store.Store.
func (s *ChatStore) Driver() string { return store.DriverDuckDB }

// Close implements store.Store.
func (s *ChatStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(sc scanner) (models.ChatMessage, error) {
	var m models.ChatMessage
	if err := sc.Scan(&m.ID, &m.EventID, &m.UserID, &m.UserName, &m.Message, &m.CreatedAt, &m.IsSystem); err != nil {
		return models.ChatMessage{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}
