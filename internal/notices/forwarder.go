// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package notices

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/earthforus/earthforus/internal/logging"
	"github.com/earthforus/earthforus/internal/metrics"
	"github.com/earthforus/earthforus/internal/models"
	"github.com/earthforus/earthforus/internal/wire"
)

// errStreamClosed is returned when the subscription ends while the forwarder
// is still meant to run, so the supervisor restarts it.
var errStreamClosed = errors.New("notice stream closed")

// Broadcaster delivers an envelope to every live connection.
// Satisfied by *websocket.Registry.
type Broadcaster interface {
	BroadcastToAll(env wire.Envelope)
}

// Forwarder moves notices from the bus to the connection registry.
type Forwarder struct {
	bus         *Bus
	broadcaster Broadcaster
	subscribed  atomic.Bool
}

// NewForwarder creates a forwarder; call RunWithContext to start it.
func NewForwarder(bus *Bus, b Broadcaster) *Forwarder {
	return &Forwarder{bus: bus, broadcaster: b}
}

// Subscribed reports whether the forwarder currently holds a subscription.
func (f *Forwarder) Subscribed() bool {
	return f.subscribed.Load()
}

// RunWithContext consumes notices until ctx is canceled.
func (f *Forwarder) RunWithContext(ctx context.Context) error {
	messages, err := f.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", f.bus.Topic(), err)
	}
	f.subscribed.Store(true)
	defer f.subscribed.Store(false)

	logging.Info().Str("topic", f.bus.Topic()).Str("transport", f.bus.Transport()).Msg("Notice forwarder started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errStreamClosed
			}
			f.handle(msg)
		}
	}
}

// handle always acks: a notice that cannot be decoded will not decode on
// redelivery either.
func (f *Forwarder) handle(msg *message.Message) {
	defer msg.Ack()

	var n models.Notice
	if err := json.Unmarshal(msg.Payload, &n); err != nil || n.Message == "" {
		metrics.NoticesFailed.Inc()
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable notice")
		return
	}

	f.broadcaster.BroadcastToAll(wire.Notice(n.Message))
	metrics.NoticesDelivered.Inc()
	logging.Debug().Str("message_uuid", msg.UUID).Msg("Notice forwarded")
}
