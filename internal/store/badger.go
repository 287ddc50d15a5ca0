// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/earthforus/earthforus/internal/models"
)

// Key layout. Ids are big-endian so lexical key order is numeric order:
//
//	msg:<event uint64><id uint64> -> JSON ChatMessage
const (
	badgerMessagePrefix = "msg:"
	badgerSequenceKey   = "seq:chat_messages"
	badgerSequenceLease = 100
)

// BadgerStore persists messages in an embedded BadgerDB.
type BadgerStore struct {
	db    *badger.DB
	seq   *badger.Sequence
	owner bool

	// writeMu keeps id allocation and commit in the same order, so a
	// listing after id N never misses a later-committed smaller id.
	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) a database at path. An empty path opens an
// in-memory database.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for chat messages: %w", err)
	}

	s, err := NewBadgerStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owner = true
	return s, nil
}

// NewBadgerStore uses an already opened database. Close releases the id
// sequence but leaves db open.
func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	seq, err := db.GetSequence([]byte(badgerSequenceKey), badgerSequenceLease)
	if err != nil {
		return nil, fmt.Errorf("get message id sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func messageKey(eventID, id int64) []byte {
	key := make([]byte, 0, len(badgerMessagePrefix)+16)
	key = append(key, badgerMessagePrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(eventID))
	key = binary.BigEndian.AppendUint64(key, uint64(id))
	return key
}

func eventPrefix(eventID int64) []byte {
	key := make([]byte, 0, len(badgerMessagePrefix)+8)
	key = append(key, badgerMessagePrefix...)
	return binary.BigEndian.AppendUint64(key, uint64(eventID))
}

// Create implements Store.
func (s *BadgerStore) Create(ctx context.Context, eventID int64, msg models.NewChatMessage) (models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.ChatMessage{}, err
	}
	if eventID <= 0 {
		return models.ChatMessage{}, ErrInvalidEvent
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return models.ChatMessage{}, ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n, err := s.seq.Next()
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("next message id: %w", err)
	}
	m := newMessage(int64(n)+1, eventID, msg)

	data, err := json.Marshal(m)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("marshal chat message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(eventID, m.ID), data)
	})
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("set chat message: %w", err)
	}
	return m, nil
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, eventID, id int64) (models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.ChatMessage{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return models.ChatMessage{}, ErrClosed
	}

	var m models.ChatMessage
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(eventID, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get chat message: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	if err != nil {
		return models.ChatMessage{}, err
	}
	return m, nil
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context, q models.MessageQuery) ([]models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := NormalizeLimit(q.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]models.ChatMessage, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.PrefetchSize = limit
		prefix := eventPrefix(q.EventID)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		start := messageKey(q.EventID, q.AfterID+1)
		if q.AfterID < 0 {
			start = prefix
		}
		for it.Seek(start); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var m models.ChatMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return fmt.Errorf("decode chat message: %w", err)
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return out, nil
}

// Ping implements Store.
func (s *BadgerStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Driver implements Store.
func (s *BadgerStore) Driver() string { return DriverBadger }

// Close releases the unused part of the id lease and, when the store opened
// the database itself, closes it.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release message id sequence: %w", err))
	}
	if s.owner {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close badger db: %w", err))
		}
	}
	return errors.Join(errs...)
}
