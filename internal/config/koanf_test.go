// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 3001 {
		t.Errorf("Server.Port = %d, want 3001", cfg.Server.Port)
	}
	if cfg.WebSocket.WelcomeMessage != "Connected to chat server" {
		t.Errorf("WebSocket.WelcomeMessage = %q", cfg.WebSocket.WelcomeMessage)
	}
	if cfg.WebSocket.PingPeriod >= cfg.WebSocket.PongWait {
		t.Errorf("ping period %s must be shorter than pong wait %s", cfg.WebSocket.PingPeriod, cfg.WebSocket.PongWait)
	}
	if cfg.Store.Driver != "duckdb" {
		t.Errorf("Store.Driver = %q, want duckdb", cfg.Store.Driver)
	}
	if cfg.NATS.Enabled {
		t.Error("NATS.Enabled should be false by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := load("")
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Security.RateLimitWindow != time.Minute {
		t.Errorf("RateLimitWindow = %s, want 1m", cfg.Security.RateLimitWindow)
	}
	if len(cfg.Security.CORSOrigins) != 1 {
		t.Errorf("CORSOrigins = %v, want one default origin", cfg.Security.CORSOrigins)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 8080
store:
  driver: badger
  path: /tmp/chat
websocket:
  welcome_message: hello volunteers
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CORS_ORIGINS", "https://earthforus.org, http://localhost:3000")
	t.Setenv("WS_PONG_WAIT", "90s")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("NATS_EMBEDDED", "true")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("env should override file: port = %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != "badger" || cfg.Store.Path != "/tmp/chat" {
		t.Errorf("store = %+v, want badger at /tmp/chat", cfg.Store)
	}
	if cfg.WebSocket.WelcomeMessage != "hello volunteers" {
		t.Errorf("welcome = %q", cfg.WebSocket.WelcomeMessage)
	}
	if cfg.WebSocket.PongWait != 90*time.Second {
		t.Errorf("PongWait = %s, want 90s", cfg.WebSocket.PongWait)
	}
	want := []string{"https://earthforus.org", "http://localhost:3000"}
	if strings.Join(cfg.Security.CORSOrigins, "|") != strings.Join(want, "|") {
		t.Errorf("CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
	if !cfg.NATS.Enabled || !cfg.NATS.Embedded {
		t.Errorf("NATS = %+v, want enabled and embedded", cfg.NATS)
	}
}

func TestFindConfigFileFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 4000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	if got := findConfigFile(); got != path {
		t.Errorf("findConfigFile() = %q, want %q", got, path)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"HTTP_PORT":         "server.port",
		"CHAT_STORE_DRIVER": "store.driver",
		"JWT_SECRET":        "security.jwt_secret",
		"LOG_LEVEL":         "logging.level",
		"PATH":              "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"bad driver", func(c *Config) { c.Store.Driver = "postgres" }, "CHAT_STORE_DRIVER"},
		{"ping after pong", func(c *Config) { c.WebSocket.PingPeriod = 2 * c.WebSocket.PongWait }, "WS_PING_PERIOD"},
		{"tiny send buffer", func(c *Config) { c.WebSocket.SendBuffer = 0 }, "WS_SEND_BUFFER"},
		{"bad origin", func(c *Config) { c.Security.CORSOrigins = []string{"earthforus.org"} }, "CORS_ORIGINS"},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }, "JWT_SECRET"},
		{"bad nats url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "http://x" }, "NATS_URL"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
