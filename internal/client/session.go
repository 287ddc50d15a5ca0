// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/earthforus/earthforus/internal/logging"
	"github.com/earthforus/earthforus/internal/models"
	"github.com/earthforus/earthforus/internal/wire"
)

const pollPageSize = 100

// SessionConfig identifies the user and event of a ChatSession.
type SessionConfig struct {
	EventID  int64
	UserID   int64
	UserName string

	// PollInterval is how often history is polled while the socket is down.
	PollInterval time.Duration

	// Handlers are called in addition to the session's own handling.
	Handlers Handlers
}

// ChatSession is one user's view of an event chat room.
type ChatSession struct {
	cfg     SessionConfig
	rest    *RESTClient
	manager *Manager
	onChat  func(models.ChatMessage)
	logger  zerolog.Logger

	resync chan struct{}

	mu     sync.Mutex
	seen   map[int64]struct{}
	cursor int64
}

// NewChatSession creates a session. onChat receives every chat message of
// the event exactly once, whether it arrived over the socket, from a poll,
// or from the session's own Say.
func NewChatSession(wsCfg Config, rest *RESTClient, cfg SessionConfig, onChat func(models.ChatMessage)) *ChatSession {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	s := &ChatSession{
		cfg:    cfg,
		rest:   rest,
		onChat: onChat,
		logger: logging.WithComponent("chat-session").With().Int64("event_id", cfg.EventID).Logger(),
		resync: make(chan struct{}, 1),
		seen:   make(map[int64]struct{}),
	}

	user := cfg.Handlers
	handlers := user
	handlers.OnOpen = func() {
		if !s.manager.Send(wire.Join(cfg.EventID)) {
			s.logger.Warn().Msg("Join not sent")
		}
		select {
		case s.resync <- struct{}{}:
		default:
		}
		user.open()
	}
	handlers.OnMessage = func(f wire.Frame) {
		if chat, ok := f.(*wire.ChatFrame); ok && chat.Room == cfg.EventID {
			msg, err := chat.Message()
			if err != nil {
				s.logger.Debug().Err(err).Msg("Dropping chat frame")
			} else {
				s.deliver(msg)
			}
		}
		user.message(f)
	}

	s.manager = NewManager(wsCfg, handlers)
	return s
}

// Manager returns the session's connection manager.
func (s *ChatSession) Manager() *Manager {
	return s.manager
}

// Run connects, loads history, and polls while the socket is down. It
// returns when ctx is done, after disconnecting.
func (s *ChatSession) Run(ctx context.Context) error {
	s.manager.Connect()
	defer s.manager.Disconnect()

	s.poll(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.resync:
			s.poll(ctx)
		case <-ticker.C:
			if !s.manager.IsConnected() {
				s.poll(ctx)
			}
		}
	}
}

// Say persists text, relays it to the room, and delivers it locally. The
// persisted message is returned even when the relay could not be sent.
func (s *ChatSession) Say(ctx context.Context, text string) (models.ChatMessage, error) {
	msg, err := s.rest.PostMessage(ctx, s.cfg.EventID, models.NewChatMessage{
		UserID:   s.cfg.UserID,
		UserName: s.cfg.UserName,
		Message:  text,
	})
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("post message: %w", err)
	}

	env, err := wire.Chat(msg)
	if err != nil {
		return msg, fmt.Errorf("build relay: %w", err)
	}
	if !s.manager.Send(env) {
		s.logger.Debug().Int64("message_id", msg.ID).Msg("Relay skipped; socket not open")
	}

	s.deliver(msg)
	return msg, nil
}

// poll pages through history newer than the cursor.
func (s *ChatSession) poll(ctx context.Context) {
	for {
		s.mu.Lock()
		after := s.cursor
		s.mu.Unlock()

		msgs, err := s.rest.ListMessagesAfter(ctx, s.cfg.EventID, after, pollPageSize)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("History poll failed")
			}
			return
		}

		for _, m := range msgs {
			s.deliver(m)
		}
		if len(msgs) > 0 {
			s.mu.Lock()
			if last := msgs[len(msgs)-1].ID; last > s.cursor {
				s.cursor = last
			}
			s.mu.Unlock()
		}
		if len(msgs) < pollPageSize {
			return
		}
	}
}

func (s *ChatSession) deliver(msg models.ChatMessage) {
	s.mu.Lock()
	if _, dup := s.seen[msg.ID]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[msg.ID] = struct{}{}
	s.mu.Unlock()

	if s.onChat != nil {
		s.onChat(msg)
	}
}
