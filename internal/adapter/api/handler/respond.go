package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/V4T54L/firewatch/internal/domain"
)

func respondWithJSON(w http.ResponseWriter, logger *slog.Logger, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError maps domain errors to status codes. Anything unrecognised is logged
// and reported as a 500 without its details.
func respondWithError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownSubject), errors.Is(err, domain.ErrMalformedPayload):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrFireNotFound), errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrNoResponderAvailable):
		code = http.StatusConflict
	case errors.Is(err, domain.ErrDispatchTimeout):
		code = http.StatusGatewayTimeout
	}

	if code == http.StatusInternalServerError {
		logger.Error(msg, "error", err)
		respondWithJSON(w, logger, code, map[string]string{"error": "internal server error"})
		return
	}
	logger.Warn(msg, "error", err, "status", code)
	respondWithJSON(w, logger, code, map[string]string{"error": err.Error()})
}
