// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package api

import (
	"net/http"

	"github.com/earthforus/earthforus/internal/logging"
	"github.com/earthforus/earthforus/internal/models"
)

// PostNotice publishes a server-wide system notice. Delivery to sockets is
// asynchronous, so the response is 202.
//
//	POST /api/v1/notices {"message": "..."}
func (h *Handler) PostNotice(w http.ResponseWriter, r *http.Request) {
	if h.notices == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Notice bus is not configured", nil)
		return
	}

	var req models.Notice
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	notice, err := h.notices.Publish(r.Context(), req.Message)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Failed to publish notice", err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("transport", h.notices.Transport()).
		Int("length", len(notice.Message)).
		Msg("System notice published")

	respondJSON(w, http.StatusAccepted, &models.APIResponse{
		Status: "success",
		Data:   notice,
	})
}
