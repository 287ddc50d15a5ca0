// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Package database implements the DuckDB-backed chat message store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/earthforus/earthforus/internal/logging"
)

// DB wraps the DuckDB connection pool.
type DB struct {
	conn   *sql.DB
	path   string
	closed atomic.Bool
}

// New opens the database at path and creates the schema. An empty path opens
// an in-memory database.
func New(path string) (*DB, error) {
	if path != "" {
		// 0750 per gosec G301
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	// Extensions are never needed by the chat schema; auto-install would try
	// the network on first use.
	connStr := fmt.Sprintf("%s?threads=%d&autoinstall_known_extensions=false&autoload_known_extensions=false",
		dsnPath(path), runtime.NumCPU())

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, path: path}
	db.configureConnectionPool()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.createTables(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().Str("path", dsnPath(path)).Msg("DuckDB chat store ready")
	return db, nil
}

func dsnPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

func (db *DB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// Ping checks that the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.closed.Load() {
		return errClosed
	}
	return db.conn.PingContext(ctx)
}

// Checkpoint flushes the WAL into the database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "CHECKPOINT")
	return err
}

// Close checkpoints a file-backed database and closes the pool. It is safe to
// call more than once.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	if db.path != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.Checkpoint(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
		}
		cancel()
	}
	return db.conn.Close()
}

const schema = `
CREATE SEQUENCE IF NOT EXISTS chat_messages_id_seq START 1;
CREATE TABLE IF NOT EXISTS chat_messages (
	id         BIGINT PRIMARY KEY DEFAULT nextval('chat_messages_id_seq'),
	event_id   BIGINT NOT NULL,
	user_id    BIGINT NOT NULL,
	user_name  VARCHAR NOT NULL,
	message    VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL,
	is_system  BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_event_id ON chat_messages (event_id, id);
`

func (db *DB) createTables(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create chat_messages schema: %w", err)
	}
	return nil
}
