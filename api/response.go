package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/knowbot-ai/knowbot/internal/config"
	"github.com/knowbot-ai/knowbot/internal/knowledge"
	"github.com/knowbot-ai/knowbot/internal/llm"
	"github.com/knowbot-ai/knowbot/internal/log"
	"github.com/knowbot-ai/knowbot/internal/retrieval"
	"github.com/knowbot-ai/knowbot/internal/session"
	"github.com/knowbot-ai/knowbot/internal/settings"
	"github.com/knowbot-ai/knowbot/internal/status"
)

// writeJSON writes a JSON response with the given status code.
// If encoding fails after WriteHeader the status is already on the wire;
// the error is only logged.
func writeJSON(w http.ResponseWriter, logger log.Logger, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, logger log.Logger, statusCode int, code, message string) {
	writeJSON(w, logger, statusCode, ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps domain sentinel errors onto HTTP status codes.
// Unrecognized errors become 500 without leaking internals.
func writeDomainError(w http.ResponseWriter, logger log.Logger, err error) {
	switch {
	case errors.Is(err, knowledge.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, knowledge.ErrValidation),
		errors.Is(err, settings.ErrValidation),
		errors.Is(err, config.ErrInvalidModelName):
		writeError(w, logger, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, knowledge.ErrDeleteDefault):
		writeError(w, logger, http.StatusBadRequest, "cannot_delete_default", err.Error())
	case errors.Is(err, status.ErrAdminStopped):
		writeError(w, logger, http.StatusForbidden, "admin_stopped", err.Error())
	case errors.Is(err, retrieval.ErrUnavailable):
		writeError(w, logger, http.StatusServiceUnavailable, "retrieval_unavailable",
			"knowledge retrieval is temporarily unavailable")
	case errors.Is(err, llm.ErrQuotaExceeded):
		writeError(w, logger, http.StatusTooManyRequests, "quota_exceeded",
			"model quota exceeded, try again later")
	case errors.Is(err, llm.ErrUnavailable):
		writeError(w, logger, http.StatusBadGateway, "model_unavailable",
			"the language model is temporarily unavailable")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, logger, http.StatusInternalServerError, "internal_error", "")
	}
}
