package api

import (
	"encoding/json"
	"net/http"

	"github.com/knowbot-ai/knowbot/internal/chat"
	"github.com/knowbot-ai/knowbot/internal/log"
)

// ModelHandler handles the per-account chat model endpoints.
type ModelHandler struct {
	models *chat.ModelStore
	logger log.Logger
}

// NewModelHandler creates a model handler.
func NewModelHandler(models *chat.ModelStore, logger log.Logger) *ModelHandler {
	return &ModelHandler{models: models, logger: logger}
}

// RegisterRoutes registers model routes on the given mux.
func (h *ModelHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/model", h.get)
	mux.HandleFunc("PUT /api/model", h.set)
}

func (h *ModelHandler) get(w http.ResponseWriter, r *http.Request) {
	model, err := h.models.Get(r.Context(), accountFrom(r))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"model": model})
}

// SetModelRequest selects the account's chat model.
type SetModelRequest struct {
	Model string `json:"model"`
}

func (h *ModelHandler) set(w http.ResponseWriter, r *http.Request) {
	var req SetModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	if err := h.models.Set(r.Context(), accountFrom(r), req.Model); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"model": req.Model})
}
