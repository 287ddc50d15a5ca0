// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package websocket

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/earthforus/earthforus/internal/logging"
	"github.com/earthforus/earthforus/internal/metrics"
	"github.com/earthforus/earthforus/internal/wire"
)

// Telemetry receives every observable registry event. Implementations must
// not block; they are called from the registry loop.
type Telemetry interface {
	ClientConnected(clientID string, totalClients int)
	ClientDisconnected(clientID string, totalClients int)
	TransportError(clientID string, err error)
	FrameReceived(clientID string, t wire.Type)
	FrameRejected(clientID string, reason error)
	FrameDropped(clientID string, t wire.Type)
	RoomJoined(clientID string, room int64, totalRooms int)
	RoomLeft(clientID string, room int64, totalRooms int)
	DeliverySkipped(clientID string, t wire.Type)
	Broadcast(t wire.Type, room int64, recipients int)
}

// LogTelemetry writes registry events to zerolog and Prometheus.
type LogTelemetry struct {
	log zerolog.Logger
}

var _ Telemetry = (*LogTelemetry)(nil)

// NewLogTelemetry returns the default telemetry sink.
func NewLogTelemetry() *LogTelemetry {
	return &LogTelemetry{log: logging.WithComponent("websocket")}
}

// ClientConnected implements Telemetry.
func (l *LogTelemetry) ClientConnected(clientID string, totalClients int) {
	metrics.WSConnections.Set(float64(totalClients))
	l.log.Info().Str("client_id", clientID).Int("total_clients", totalClients).Msg("websocket client connected")
}

// ClientDisconnected implements Telemetry. The camelCase field names are the
// shape the external error sink expects.
func (l *LogTelemetry) ClientDisconnected(clientID string, totalClients int) {
	metrics.WSConnections.Set(float64(totalClients))
	l.log.Info().Str("clientId", clientID).Int("totalClients", totalClients).Msg("websocket client disconnected")
}

// TransportError implements Telemetry, with the same sink field names.
func (l *LogTelemetry) TransportError(clientID string, err error) {
	metrics.WSErrors.WithLabelValues("transport").Inc()
	l.log.Error().Str("error", err.Error()).Str("clientId", clientID).Msg("websocket transport error")
}

// FrameReceived implements Telemetry.
func (l *LogTelemetry) FrameReceived(_ string, t wire.Type) {
	metrics.WSMessagesReceived.WithLabelValues(typeLabel(t)).Inc()
}

// FrameRejected implements Telemetry.
func (l *LogTelemetry) FrameRejected(clientID string, reason error) {
	kind := "malformed"
	if errors.Is(reason, wire.ErrMissingRoom) {
		kind = "missing_room"
	}
	metrics.WSErrors.WithLabelValues(kind).Inc()
	l.log.Warn().Err(reason).Str("client_id", clientID).Msg("rejected websocket frame")
}

// FrameDropped implements Telemetry.
func (l *LogTelemetry) FrameDropped(clientID string, t wire.Type) {
	metrics.WSErrors.WithLabelValues("dropped").Inc()
	l.log.Debug().Str("client_id", clientID).Str("message_type", string(t)).Msg("dropped websocket frame")
}

// RoomJoined implements Telemetry.
func (l *LogTelemetry) RoomJoined(clientID string, room int64, totalRooms int) {
	metrics.WSRooms.Set(float64(totalRooms))
	l.log.Debug().Str("client_id", clientID).Int64("event_id", room).Msg("client joined room")
}

// RoomLeft implements Telemetry.
func (l *LogTelemetry) RoomLeft(clientID string, room int64, totalRooms int) {
	metrics.WSRooms.Set(float64(totalRooms))
	l.log.Debug().Str("client_id", clientID).Int64("event_id", room).Msg("client left room")
}

// DeliverySkipped implements Telemetry.
func (l *LogTelemetry) DeliverySkipped(clientID string, t wire.Type) {
	metrics.WSDeliverySkipped.Inc()
	l.log.Warn().Str("client_id", clientID).Str("message_type", string(t)).Msg("client queue full, skipping delivery")
}

// Broadcast implements Telemetry.
func (l *LogTelemetry) Broadcast(t wire.Type, room int64, recipients int) {
	metrics.RecordBroadcast(typeLabel(t), recipients)
	if room != 0 {
		l.log.Trace().Str("message_type", string(t)).Int64("event_id", room).Int("recipients", recipients).Msg("room broadcast")
	}
}

// typeLabel bounds metric label cardinality to the known frame types.
func typeLabel(t wire.Type) string {
	switch t {
	case wire.TypeChatMessage, wire.TypeJoinEvent, wire.TypeLeaveEvent,
		wire.TypeUserJoined, wire.TypeUserLeft, wire.TypeSystemMessage:
		return string(t)
	default:
		return "unknown"
	}
}

// NopTelemetry discards every event.
type NopTelemetry struct{}

var _ Telemetry = NopTelemetry{}

func (NopTelemetry) ClientConnected(string, int)       {}
func (NopTelemetry) ClientDisconnected(string, int)    {}
func (NopTelemetry) TransportError(string, error)      {}
func (NopTelemetry) FrameReceived(string, wire.Type)   {}
func (NopTelemetry) FrameRejected(string, error)       {}
func (NopTelemetry) FrameDropped(string, wire.Type)    {}
func (NopTelemetry) RoomJoined(string, int64, int)     {}
func (NopTelemetry) RoomLeft(string, int64, int)       {}
func (NopTelemetry) DeliverySkipped(string, wire.Type) {}
func (NopTelemetry) Broadcast(wire.Type, int64, int)   {}
