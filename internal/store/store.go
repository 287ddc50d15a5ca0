// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Package store defines the chat message persistence contract and its
// embedded backends.
//
// Three drivers implement Store: an in-process memory store, a BadgerDB
// key-value store (this package) and a DuckDB relational store (package
// database). Message ids are assigned by the store, are unique across events
// and increase monotonically, so listing "after id N" is a stable cursor.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/earthforus/earthforus/internal/metrics"
	"github.com/earthforus/earthforus/internal/models"
)

// Driver names accepted by configuration.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverDuckDB = "duckdb"
)

// Listing limits.
const (
	DefaultLimit = 100
	MaxLimit     = 500
)

var (
	// ErrNotFound is returned when a message does not exist in the event.
	ErrNotFound = errors.New("chat message not found")

	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("chat store closed")

	// ErrInvalidEvent is returned for a non-positive event id.
	ErrInvalidEvent = errors.New("event id must be positive")
)

// Store persists event chat messages.
type Store interface {
	// Create assigns an id and timestamp and persists the message.
	Create(ctx context.Context, eventID int64, msg models.NewChatMessage) (models.ChatMessage, error)

	// Get returns one message of an event.
	Get(ctx context.Context, eventID, id int64) (models.ChatMessage, error)

	// List returns messages in ascending id order.
	List(ctx context.Context, q models.MessageQuery) ([]models.ChatMessage, error)

	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// NormalizeLimit clamps a requested page size into [1, MaxLimit], using
// DefaultLimit for zero or negative values.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// newMessage builds the persisted form of msg.
func newMessage(id, eventID int64, msg models.NewChatMessage) models.ChatMessage {
	return models.ChatMessage{
		ID:        id,
		EventID:   eventID,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
		Message:   msg.Message,
		CreatedAt: time.Now().UTC(),
	}
}

// Instrumented records operation latency and errors for any Store.
type Instrumented struct {
	Store
}

// Instrument wraps s with Prometheus instrumentation.
func Instrument(s Store) *Instrumented {
	return &Instrumented{Store: s}
}

// Create implements Store.
func (i *Instrumented) Create(ctx context.Context, eventID int64, msg models.NewChatMessage) (models.ChatMessage, error) {
	start := time.Now()
	out, err := i.Store.Create(ctx, eventID, msg)
	metrics.RecordStoreOperation("create", i.Driver(), time.Since(start), err)
	return out, err
}

// Get implements Store.
func (i *Instrumented) Get(ctx context.Context, eventID, id int64) (models.ChatMessage, error) {
	start := time.Now()
	out, err := i.Store.Get(ctx, eventID, id)
	recorded := err
	if errors.Is(err, ErrNotFound) {
		recorded = nil // a miss is not a store failure
	}
	metrics.RecordStoreOperation("get", i.Driver(), time.Since(start), recorded)
	return out, err
}

// List implements Store.
func (i *Instrumented) List(ctx context.Context, q models.MessageQuery) ([]models.ChatMessage, error) {
	start := time.Now()
	out, err := i.Store.List(ctx, q)
	metrics.RecordStoreOperation("list", i.Driver(), time.Since(start), err)
	return out, err
}
