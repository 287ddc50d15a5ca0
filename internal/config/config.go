// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Package config loads the realtime server configuration.
//
// Values are layered by koanf: built-in defaults, then an optional YAML file,
// then a fixed set of environment variables. See LoadWithKoanf.
package config

import (
	"fmt"
	"time"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	WebSocket WebSocketConfig `koanf:"websocket"`
	Store     StoreConfig     `koanf:"store"`
	Security  SecurityConfig  `koanf:"security"`
	NATS      NATSConfig      `koanf:"nats"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WebSocketConfig tunes the connection registry and its transport pumps.
type WebSocketConfig struct {
	WelcomeMessage string        `koanf:"welcome_message"`
	SendBuffer     int           `koanf:"send_buffer"` // per-client outbound queue depth
	ReadLimit      int64         `koanf:"read_limit"`  // max inbound frame size in bytes
	WriteWait      time.Duration `koanf:"write_wait"`
	PongWait       time.Duration `koanf:"pong_wait"`
	PingPeriod     time.Duration `koanf:"ping_period"`
}

// StoreConfig selects the chat message backend.
type StoreConfig struct {
	Driver string `koanf:"driver"` // duckdb, badger or memory
	Path   string `koanf:"path"`   // empty means in-memory for duckdb and badger
}

// SecurityConfig holds origin, rate limit and token settings.
type SecurityConfig struct {
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	JWTSecret       string        `koanf:"jwt_secret"`  // enables token identity on /ws
	AdminToken      string        `koanf:"admin_token"` // guards POST /api/v1/notices
}

// NATSConfig selects the transport of the system notice bus.
// When disabled, notices travel over an in-process channel.
type NATSConfig struct {
	Enabled     bool   `koanf:"enabled"`
	URL         string `koanf:"url"`
	Embedded    bool   `koanf:"embedded"`
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	NoticeTopic string `koanf:"notice_topic"`
}

// LoggingConfig mirrors logging.Config for file and env loading.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
