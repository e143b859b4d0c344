package api

import (
	"encoding/json"
	"net/http"

	"github.com/knowbot-ai/knowbot/internal/knowledge"
	"github.com/knowbot-ai/knowbot/internal/log"
	"github.com/knowbot-ai/knowbot/internal/session"
)

// KBHandler handles knowledge base lifecycle endpoints.
type KBHandler struct {
	registry *knowledge.Registry
	sessions *session.Manager
	logger   log.Logger
}

// NewKBHandler creates a KB handler.
func NewKBHandler(registry *knowledge.Registry, sessions *session.Manager, logger log.Logger) *KBHandler {
	return &KBHandler{registry: registry, sessions: sessions, logger: logger}
}

// RegisterRoutes registers KB routes on the given mux.
func (h *KBHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/kbs", h.list)
	mux.HandleFunc("POST /api/kbs", h.create)
	mux.HandleFunc("GET /api/kbs/current", h.current)
	mux.HandleFunc("POST /api/kbs/select", h.selectKB)
	mux.HandleFunc("PUT /api/kbs/{kb_id}", h.update)
	mux.HandleFunc("DELETE /api/kbs/{kb_id}", h.delete)
}

func (h *KBHandler) list(w http.ResponseWriter, r *http.Request) {
	bases, err := h.registry.List(r.Context(), accountFrom(r))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"kbs": bases})
}

// CreateKBRequest is the request body for creating a knowledge base.
type CreateKBRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *KBHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateKBRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	kb, err := h.registry.Create(r.Context(), accountFrom(r), req.Name, req.Password)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, kb)
}

func (h *KBHandler) current(w http.ResponseWriter, r *http.Request) {
	kb, err := h.registry.Current(r.Context(), accountFrom(r))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, kb)
}

// SelectKBRequest switches the current KB either directly by ID or by a
// KB password.
type SelectKBRequest struct {
	KBID     string `json:"kb_id"`
	Password string `json:"password"`
}

func (h *KBHandler) selectKB(w http.ResponseWriter, r *http.Request) {
	var req SelectKBRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	account := accountFrom(r)
	kbID := req.KBID
	if kbID == "" && req.Password != "" {
		kb, err := h.registry.FindByPassword(r.Context(), account, req.Password)
		if err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		kbID = kb.KBID
	}
	if kbID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "validation_failed", "kb_id or password is required")
		return
	}

	if err := h.registry.Select(r.Context(), account, kbID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	kb, err := h.registry.Get(r.Context(), account, kbID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, kb)
}

// UpdateKBRequest carries optional KB updates; absent fields are untouched.
type UpdateKBRequest struct {
	Name           *string `json:"name,omitempty"`
	Password       *string `json:"password,omitempty"`
	AnalyzeClients *bool   `json:"analyze_clients,omitempty"`
}

func (h *KBHandler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateKBRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	account := accountFrom(r)
	kbID := r.PathValue("kb_id")

	if req.Name != nil {
		if err := h.registry.Rename(r.Context(), account, kbID, *req.Name); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
	}
	if req.Password != nil {
		if err := h.registry.SetPassword(r.Context(), account, kbID, *req.Password); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
	}
	if req.AnalyzeClients != nil {
		if err := h.registry.SetAnalyzeClients(r.Context(), account, kbID, *req.AnalyzeClients); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
	}

	kb, err := h.registry.Get(r.Context(), account, kbID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, kb)
}

func (h *KBHandler) delete(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	kbID := r.PathValue("kb_id")

	switched, err := h.registry.Delete(r.Context(), account, kbID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	// Transcripts of the deleted KB go with it. A failure here leaves
	// orphaned sessions, which is tolerable; the KB itself is gone.
	if err := h.sessions.DeleteByKB(r.Context(), kbID); err != nil {
		h.logger.Error("failed to delete sessions of deleted KB", "kb_id", kbID, "error", err)
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"deleted":             true,
		"switched_to_default": switched,
	})
}
