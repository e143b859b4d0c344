package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/knowbot-ai/knowbot/internal/knowledge"
	"github.com/knowbot-ai/knowbot/internal/log"
	"github.com/knowbot-ai/knowbot/internal/settings"
)

// SaveSettingsRequest updates a KB's persona. Tone must be present; humor
// and brevity fall back to the balanced level when omitted.
type SaveSettingsRequest struct {
	Tone             *int   `json:"tone"`
	Humor            *int   `json:"humor"`
	Brevity          *int   `json:"brevity"`
	AdditionalPrompt string `json:"additional_prompt"`
}

// SettingsHandler handles persona settings endpoints.
type SettingsHandler struct {
	registry *knowledge.Registry
	store    *settings.Store
	logger   log.Logger
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(registry *knowledge.Registry, store *settings.Store, logger log.Logger) *SettingsHandler {
	return &SettingsHandler{registry: registry, store: store, logger: logger}
}

// RegisterRoutes registers settings routes on the given mux.
func (h *SettingsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/kbs/{kb_id}/settings", h.get)
	mux.HandleFunc("PUT /api/kbs/{kb_id}/settings", h.save)
}

func (h *SettingsHandler) resolveKB(w http.ResponseWriter, r *http.Request) (string, bool) {
	kbID := r.PathValue("kb_id")
	if _, err := h.registry.Get(r.Context(), accountFrom(r), kbID); err != nil {
		writeDomainError(w, h.logger, err)
		return "", false
	}
	return kbID, true
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	kbID, ok := h.resolveKB(w, r)
	if !ok {
		return
	}

	set, err := h.store.Get(r.Context(), kbID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, set)
}

func (h *SettingsHandler) save(w http.ResponseWriter, r *http.Request) {
	kbID, ok := h.resolveKB(w, r)
	if !ok {
		return
	}

	var req SaveSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.Tone == nil {
		writeDomainError(w, h.logger, fmt.Errorf("%w: tone is required", settings.ErrValidation))
		return
	}

	set := settings.Defaults()
	set.Tone = *req.Tone
	if req.Humor != nil {
		set.Humor = *req.Humor
	}
	if req.Brevity != nil {
		set.Brevity = *req.Brevity
	}
	set.AdditionalPrompt = req.AdditionalPrompt

	if err := h.store.Save(r.Context(), kbID, set); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, set)
}
