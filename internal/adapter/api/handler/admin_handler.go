package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/usecase"
	"github.com/go-chi/chi/v5"
)

// AdminHandler handles HTTP requests for bus administration.
type AdminHandler struct {
	uc     *usecase.BusAdminUseCase
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(uc *usecase.BusAdminUseCase, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{uc: uc, logger: logger}
}

// ListConsumers lists every durable consumer and its per-subject state.
// GET /admin/consumers
func (h *AdminHandler) ListConsumers(w http.ResponseWriter, r *http.Request) {
	consumers, err := h.uc.ListConsumers(r.Context())
	if err != nil {
		respondWithError(w, h.logger, "failed to list consumers", err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, consumers)
}

// GetPendingSummary handles requests to get a summary of pending messages.
// GET /admin/subjects/{subject}/consumers/{consumer}/pending
func (h *AdminHandler) GetPendingSummary(w http.ResponseWriter, r *http.Request) {
	subject := domain.Subject(chi.URLParam(r, "subject"))
	consumer := chi.URLParam(r, "consumer")

	summary, err := h.uc.GetPendingSummary(r.Context(), subject, consumer)
	if err != nil {
		respondWithError(w, h.logger, "failed to get pending summary", err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, summary)
}

// GetPendingMessages handles requests to list pending messages.
// GET /admin/subjects/{subject}/consumers/{consumer}/pending/messages?start={startID}&count={count}
func (h *AdminHandler) GetPendingMessages(w http.ResponseWriter, r *http.Request) {
	subject := domain.Subject(chi.URLParam(r, "subject"))
	consumer := chi.URLParam(r, "consumer")

	count, ok := parseCount(w, r)
	if !ok {
		return
	}

	messages, err := h.uc.GetPendingMessages(r.Context(), subject, consumer, r.URL.Query().Get("start"), count)
	if err != nil {
		respondWithError(w, h.logger, "failed to get pending messages", err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, messages)
}

// AcknowledgeMessages handles requests to acknowledge messages by hand.
// POST /admin/subjects/{subject}/consumers/{consumer}/ack
func (h *AdminHandler) AcknowledgeMessages(w http.ResponseWriter, r *http.Request) {
	subject := domain.Subject(chi.URLParam(r, "subject"))
	consumer := chi.URLParam(r, "consumer")

	var payload struct {
		MessageIDs []string `json:"message_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(payload.MessageIDs) == 0 {
		http.Error(w, "message_ids cannot be empty", http.StatusBadRequest)
		return
	}

	count, err := h.uc.AcknowledgeMessages(r.Context(), subject, consumer, payload.MessageIDs...)
	if err != nil {
		respondWithError(w, h.logger, "failed to acknowledge messages", err)
		return
	}
	h.logger.Info("messages acknowledged by operator", "subject", subject, "consumer", consumer, "count", count)
	respondWithJSON(w, h.logger, http.StatusOK, map[string]int64{"acknowledged": count})
}

// ListDeadLetters lists the most recent dead letters.
// GET /admin/deadletters?count={count}
func (h *AdminHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	count, ok := parseCount(w, r)
	if !ok {
		return
	}

	letters, err := h.uc.ListDeadLetters(r.Context(), count)
	if err != nil {
		respondWithError(w, h.logger, "failed to list dead letters", err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, letters)
}

// ReplayDeadLetter republishes a dead letter to its original subject.
// POST /admin/deadletters/{id}/replay
func (h *AdminHandler) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ack, err := h.uc.ReplayDeadLetter(r.Context(), id)
	if err != nil {
		respondWithError(w, h.logger, "failed to replay dead letter", err)
		return
	}
	h.logger.Info("dead letter replayed", "dead_letter_id", id, "subject", ack.Subject, "sequence", ack.Sequence)
	respondWithJSON(w, h.logger, http.StatusOK, ack)
}

func parseCount(w http.ResponseWriter, r *http.Request) (int64, bool) {
	countStr := r.URL.Query().Get("count")
	if countStr == "" {
		return 0, true
	}
	count, err := strconv.ParseInt(countStr, 10, 64)
	if err != nil || count < 0 {
		http.Error(w, "invalid count parameter", http.StatusBadRequest)
		return 0, false
	}
	return count, true
}
