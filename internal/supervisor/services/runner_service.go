// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package services

import (
	"context"
	"errors"
	"fmt"
)

// ContextRunner is a component whose loop runs until ctx ends.
// Satisfied by *websocket.Registry and *notices.Forwarder.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RegistryService supervises the websocket connection registry.
//
// The registry loop already returns ctx.Err() on shutdown, after closing
// every client with 1001, so this wrapper only delegates and names it.
type RegistryService struct {
	registry ContextRunner
	name     string
}

// NewRegistryService wraps a registry.
func NewRegistryService(registry ContextRunner) *RegistryService {
	return &RegistryService{registry: registry, name: "websocket-registry"}
}

// Serve implements suture.Service.
func (s *RegistryService) Serve(ctx context.Context) error {
	return s.registry.RunWithContext(ctx)
}

// String implements fmt.Stringer.
func (s *RegistryService) String() string {
	return s.name
}

// NoticeForwarderService supervises the notice bus subscription. When the
// subscription drops, Serve returns an error and suture subscribes again
// after its backoff.
type NoticeForwarderService struct {
	forwarder ContextRunner
	name      string
}

// NewNoticeForwarderService wraps a notice forwarder.
func NewNoticeForwarderService(forwarder ContextRunner) *NoticeForwarderService {
	return &NoticeForwarderService{forwarder: forwarder, name: "notice-forwarder"}
}

// Serve implements suture.Service.
func (s *NoticeForwarderService) Serve(ctx context.Context) error {
	err := s.forwarder.RunWithContext(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("notice forwarder: %w", err)
}

// String implements fmt.Stringer.
func (s *NoticeForwarderService) String() string {
	return s.name
}
