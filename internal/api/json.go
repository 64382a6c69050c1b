package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/assistant"
	"github.com/starford/pantry/internal/inventory"
	"github.com/starford/pantry/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error   string                     `json:"error" validate:"required"`
	Missing []models.MissingIngredient `json:"missing,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP statuses. Unknown errors are logged
// and reported as 500.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var short *inventory.InsufficientError
	switch {
	case errors.As(err, &short):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Error: "not enough ingredients", Missing: short.Missing})
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrCodeNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrAborted):
		writeJSON(w, http.StatusConflict, errorBody("confirmation required"))
	case errors.Is(err, apperr.ErrReadOnly):
		writeJSON(w, http.StatusForbidden, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotInitialized), errors.Is(err, assistant.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
	default:
		h.logger.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
