// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/events/{eventId}/messages", "200"))

	RecordAPIRequest("GET", "/api/events/{eventId}/messages", "200", 5*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/events/{eventId}/messages", "200"))
	if after != before+1 {
		t.Errorf("api_requests_total = %v, want %v", after, before+1)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	start := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != start+1 {
		t.Errorf("after inc = %v, want %v", got, start+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != start {
		t.Errorf("after dec = %v, want %v", got, start)
	}
}

func TestRecordStoreOperation(t *testing.T) {
	errsBefore := testutil.ToFloat64(ChatStoreErrors.WithLabelValues("insert", "memory"))

	RecordStoreOperation("insert", "memory", time.Millisecond, nil)
	RecordStoreOperation("insert", "memory", time.Millisecond, errors.New("disk full"))

	if got := testutil.ToFloat64(ChatStoreErrors.WithLabelValues("insert", "memory")); got != errsBefore+1 {
		t.Errorf("chat_store_errors_total = %v, want %v", got, errsBefore+1)
	}
}

func TestRecordBroadcast(t *testing.T) {
	before := testutil.ToFloat64(WSMessagesSent.WithLabelValues("chat_message"))
	RecordBroadcast("chat_message", 3)
	if got := testutil.ToFloat64(WSMessagesSent.WithLabelValues("chat_message")); got != before+3 {
		t.Errorf("websocket_messages_sent_total = %v, want %v", got, before+3)
	}
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	tests := []struct {
		to   string
		want float64
	}{
		{"open", 2},
		{"half-open", 1},
		{"closed", 0},
	}
	for _, tt := range tests {
		RecordCircuitBreakerTransition("chat-api", "closed", tt.to)
		if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("chat-api")); got != tt.want {
			t.Errorf("state after %s = %v, want %v", tt.to, got, tt.want)
		}
	}
}
