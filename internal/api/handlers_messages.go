// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/earthforus/earthforus/internal/logging"
	"github.com/earthforus/earthforus/internal/models"
	"github.com/earthforus/earthforus/internal/store"
)

// eventIDParam parses the {eventId} path segment as a positive integer.
func eventIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// nonNegativeParam reads an optional integer query parameter.
func nonNegativeParam(r *http.Request, key string) (int64, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ListMessages returns an event's chat history in ascending id order.
//
//	GET /api/events/{eventId}/messages?limit=&after_id=
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "Event id must be a positive integer", nil)
		return
	}
	limit, ok := nonNegativeParam(r, "limit")
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a non-negative integer", nil)
		return
	}
	afterID, ok := nonNegativeParam(r, "after_id")
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "after_id must be a non-negative integer", nil)
		return
	}

	msgs, err := h.store.List(r.Context(), models.MessageQuery{
		EventID: eventID,
		AfterID: afterID,
		Limit:   store.NormalizeLimit(int(min(limit, int64(store.MaxLimit)))),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to load messages", err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

// GetMessage returns one message of an event.
//
//	GET /api/events/{eventId}/messages/{messageId}
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "Event id must be a positive integer", nil)
		return
	}
	messageID, err := strconv.ParseInt(chi.URLParam(r, "messageId"), 10, 64)
	if err != nil || messageID <= 0 {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "Message id must be a positive integer", nil)
		return
	}

	msg, err := h.store.Get(r.Context(), eventID, messageID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Message not found", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to load message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// CreateMessage persists a chat message and returns it with its id.
//
//	POST /api/events/{eventId}/messages
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "Event id must be a positive integer", nil)
		return
	}

	var req models.NewChatMessage
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}
	if req.EventID != 0 && req.EventID != eventID {
		respondValidationError(w, &models.APIError{
			Code:    ErrCodeValidationFailed,
			Message: "event_id does not match the event in the path",
			Details: map[string]interface{}{"field": "event_id"},
		})
		return
	}
	req.EventID = eventID

	msg, err := h.store.Create(r.Context(), eventID, req)
	switch {
	case errors.Is(err, store.ErrInvalidEvent):
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "Event id must be a positive integer", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to save message", err)
		return
	}

	logging.Ctx(r.Context()).Debug().
		Int64("event_id", eventID).
		Int64("message_id", msg.ID).
		Msg("Chat message stored")
	writeJSON(w, http.StatusCreated, msg)
}
