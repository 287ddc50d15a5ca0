// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package models

import "time"

// APIResponse is the envelope used for error responses and for endpoints
// that do not return a bare resource.
//
//	{"status":"error","metadata":{"timestamp":"..."},"error":{"code":"VALIDATION_ERROR","message":"..."}}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response bookkeeping.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is a machine-readable error code plus a human-readable message.
//
// Codes in use: VALIDATION_ERROR, BAD_REQUEST, DATABASE_ERROR, UNAUTHORIZED,
// SERVICE_UNAVAILABLE, INTERNAL_ERROR.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthStatus is returned by the readiness probe.
type HealthStatus struct {
	Status        string `json:"status"`
	Store         string `json:"store"`
	StoreOK       bool   `json:"store_ok"`
	Clients       int    `json:"websocket_clients"`
	Rooms         int    `json:"websocket_rooms"`
	NoticeBus     string `json:"notice_bus"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
