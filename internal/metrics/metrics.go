// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_rooms",
			Help: "Current number of rooms with at least one member",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket frames queued for delivery",
		},
		[]string{"type"},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket frames received",
		},
		[]string{"type"},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"}, // transport, malformed, missing_room, dropped
	)

	WSDeliverySkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_delivery_skipped_total",
			Help: "Total number of deliveries skipped because the recipient queue was full",
		},
	)

	WSBroadcastRecipients = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "websocket_broadcast_recipients",
			Help:    "Number of recipients per broadcast",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"type"},
	)

	// Chat Store Metrics
	ChatStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_store_operation_duration_seconds",
			Help:    "Duration of chat store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "driver"},
	)

	ChatStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_store_errors_total",
			Help: "Total number of failed chat store operations",
		},
		[]string{"operation", "driver"},
	)

	// Notice Metrics
	NoticesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notices_published_total",
			Help: "Total number of system notices published to the notice bus",
		},
	)

	NoticesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notices_delivered_total",
			Help: "Total number of system notices handed to the connection registry",
		},
	)

	NoticesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notices_failed_total",
			Help: "Total number of notices that could not be decoded",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordStoreOperation records the latency and outcome of a chat store call.
func RecordStoreOperation(operation, driver string, duration time.Duration, err error) {
	ChatStoreDuration.WithLabelValues(operation, driver).Observe(duration.Seconds())
	if err != nil {
		ChatStoreErrors.WithLabelValues(operation, driver).Inc()
	}
}

// RecordBroadcast records one fan-out and its recipient count.
func RecordBroadcast(messageType string, recipients int) {
	WSBroadcastRecipients.WithLabelValues(messageType).Observe(float64(recipients))
	WSMessagesSent.WithLabelValues(messageType).Add(float64(recipients))
}

// RecordCircuitBreakerTransition updates the breaker gauges on a state change.
// States follow gobreaker's String() values.
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	switch to {
	case "closed":
		CircuitBreakerState.WithLabelValues(name).Set(0)
	case "half-open":
		CircuitBreakerState.WithLabelValues(name).Set(1)
	case "open":
		CircuitBreakerState.WithLabelValues(name).Set(2)
	}
}
