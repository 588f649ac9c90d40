package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/go-chi/chi/v5"
)

// Dispatcher is the dispatch operation exposed over HTTP.
type Dispatcher interface {
	DispatchClosestResponder(ctx context.Context, fireID string) (*domain.FireAssignment, error)
}

// DispatchHandler triggers nearest-responder dispatch for a fire.
type DispatchHandler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewDispatchHandler creates a new DispatchHandler.
func NewDispatchHandler(dispatcher Dispatcher, logger *slog.Logger) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher, logger: logger}
}

// Dispatch assigns the closest available responder.
// POST /admin/fires/{fireID}/dispatch
//
// 201 with the assignment, 404 unknown fire, 409 nobody available, 504 query timeout, and
// 502 with the assignment when it was stored but could not be announced.
func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	fireID := chi.URLParam(r, "fireID")

	a, err := h.dispatcher.DispatchClosestResponder(r.Context(), fireID)
	switch {
	case err == nil:
		respondWithJSON(w, h.logger, http.StatusCreated, a)
	case a != nil:
		h.logger.Error("assignment stored but not announced", "fire_id", fireID, "assignment_id", a.ID, "error", err)
		respondWithJSON(w, h.logger, http.StatusBadGateway, map[string]any{
			"assignment": a,
			"error":      err.Error(),
		})
	default:
		respondWithError(w, h.logger, "dispatch failed", err)
	}
}
