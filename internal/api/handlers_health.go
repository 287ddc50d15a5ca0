// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/earthforus/earthforus/internal/models"
)

// HealthLive handles liveness probe requests.
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(h.startTime).Seconds(),
		},
	})
}

// HealthReady handles readiness probe requests.
// Returns 200 only while the store answers and the registry loop is running.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	storeOK := h.store != nil && h.store.Ping(ctx) == nil
	registryOK := h.connections != nil && h.connections.Running()

	health := models.HealthStatus{
		Status:        "ready",
		StoreOK:       storeOK,
		NoticeBus:     "disabled",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	if h.store != nil {
		health.Store = h.store.Driver()
	}
	if h.connections != nil {
		health.Clients = h.connections.ClientCount()
		health.Rooms = h.connections.RoomCount()
	}
	if h.notices != nil {
		health.NoticeBus = h.notices.Transport()
	}

	statusCode := http.StatusOK
	if !storeOK || !registryOK {
		statusCode = http.StatusServiceUnavailable
		health.Status = "not_ready"
	}

	respondJSON(w, statusCode, &models.APIResponse{
		Status: health.Status,
		Data:   health,
	})
}
