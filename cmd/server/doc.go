// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Command server runs the EarthForUs realtime chat server.
//
// It serves the websocket room broadcaster on /ws, the event chat history API
// under /api/events/{eventId}/messages, system notices on /api/v1/notices,
// health probes under /api/v1/health and Prometheus metrics on /metrics.
//
// # Configuration
//
// Settings are layered by koanf (highest priority wins):
//   - environment variables, e.g. SERVER_PORT, STORE_DRIVER, NATS_ENABLED
//   - config.yaml (or the file named by CONFIG_PATH)
//   - built-in defaults
//
// # Storage
//
// STORE_DRIVER selects the chat message backend:
//
//	duckdb   relational store (default); STORE_PATH empty means in-memory
//	badger   embedded key-value store; STORE_PATH empty means in-memory
//	memory   process memory, for development
//
// # Notices
//
// Notices travel over an in-process watermill channel unless NATS_ENABLED is
// set, in which case they use NATS core, optionally served by an embedded
// nats-server (NATS_EMBEDDED=true).
//
// # Signals
//
// SIGINT and SIGTERM cancel the supervisor tree: the HTTP server drains, the
// registry closes every socket with 1001, and the store is closed last.
package main
