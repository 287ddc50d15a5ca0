// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Package notices carries server-wide system notices from the HTTP API to
// every live websocket.
//
// Notices travel over a watermill bus. The default transport is an in-process
// go channel; with NATS enabled the bus uses core NATS subjects so that every
// server instance behind a load balancer receives each notice.
package notices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/earthforus/earthforus/internal/config"
	"github.com/earthforus/earthforus/internal/metrics"
	"github.com/earthforus/earthforus/internal/models"
)

// DefaultTopic is used when the configuration leaves the topic empty.
const DefaultTopic = "system.notices"

// Transport names reported by Bus.Transport.
const (
	TransportChannel = "gochannel"
	TransportNATS    = "nats"
)

// ErrEmptyNotice is returned by Publish for a blank message.
var ErrEmptyNotice = errors.New("notice message is empty")

// Bus publishes and subscribes notices on a single topic.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	embedded   *EmbeddedServer
	topic      string
	transport  string
	logger     watermill.LoggerAdapter
}

// NewBus builds the notice bus described by cfg. With cfg.Enabled false the
// bus is an in-process channel and the remaining NATS fields are ignored.
func NewBus(cfg config.NATSConfig, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	topic := cfg.NoticeTopic
	if topic == "" {
		topic = DefaultTopic
	}

	if !cfg.Enabled {
		// Blocking publish keeps notices in order.
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		}, logger)
		return &Bus{
			publisher:  ch,
			subscriber: ch,
			topic:      topic,
			transport:  TransportChannel,
			logger:     logger,
		}, nil
	}

	b := &Bus{topic: topic, transport: TransportNATS, logger: logger}
	url := cfg.URL
	if cfg.Embedded {
		srv, err := NewEmbeddedServer(cfg.Host, cfg.Port)
		if err != nil {
			return nil, err
		}
		b.embedded = srv
		url = srv.ClientURL()
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOptions("publisher", logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		b.shutdownEmbedded()
		return nil, fmt.Errorf("create notice publisher: %w", err)
	}
	b.publisher = pub

	// No queue group: every instance must see every notice.
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		SubscribersCount: 1,
		CloseTimeout:     10 * time.Second,
		AckWaitTimeout:   10 * time.Second,
		NatsOptions:      natsOptions("subscriber", logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		b.shutdownEmbedded()
		return nil, fmt.Errorf("create notice subscriber: %w", err)
	}
	b.subscriber = sub

	return b, nil
}

func natsOptions(role string, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("earthforus-notices-" + role),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, watermill.LogFields{"role": role})
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"role": role, "url": nc.ConnectedUrl()})
		}),
	}
}

// Topic returns the subject notices are published on.
func (b *Bus) Topic() string { return b.topic }

// Transport returns TransportChannel or TransportNATS.
func (b *Bus) Transport() string { return b.transport }

// Embedded returns the embedded NATS server, or nil.
func (b *Bus) Embedded() *EmbeddedServer { return b.embedded }

// Publish stamps text as a notice and puts it on the bus.
func (b *Bus) Publish(ctx context.Context, text string) (models.Notice, error) {
	if strings.TrimSpace(text) == "" {
		return models.Notice{}, ErrEmptyNotice
	}
	n := models.Notice{Message: text, SentAt: time.Now().UTC()}

	payload, err := json.Marshal(n)
	if err != nil {
		return models.Notice{}, fmt.Errorf("marshal notice: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("content_type", "application/json")
	msg.SetContext(ctx)

	if err := b.publisher.Publish(b.topic, msg); err != nil {
		return models.Notice{}, fmt.Errorf("publish notice: %w", err)
	}
	metrics.NoticesPublished.Inc()
	return n, nil
}

// Subscribe returns the notice stream. It is closed when ctx is canceled or
// the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.subscriber.Subscribe(ctx, b.topic)
}

// Close stops the subscriber and publisher, then the embedded server.
func (b *Bus) Close() error {
	var errs []error
	if b.subscriber != nil {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close notice subscriber: %w", err))
		}
	}
	// gochannel serves both roles.
	if b.publisher != nil && b.transport == TransportNATS {
		if err := b.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close notice publisher: %w", err))
		}
	}
	b.shutdownEmbedded()
	return errors.Join(errs...)
}

func (b *Bus) shutdownEmbedded() {
	if b.embedded == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.embedded.Shutdown(ctx); err != nil {
		b.logger.Error("Embedded NATS shutdown", err, nil)
	}
	b.embedded = nil
}
