package api

import (
	"encoding/json"
	"net/http"

	"github.com/knowbot-ai/knowbot/internal/knowledge"
	"github.com/knowbot-ai/knowbot/internal/log"
	"github.com/knowbot-ai/knowbot/internal/session"
)

// SessionHandler handles session inspection and management endpoints.
type SessionHandler struct {
	registry *knowledge.Registry
	sessions *session.Manager
	logger   log.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(registry *knowledge.Registry, sessions *session.Manager, logger log.Logger) *SessionHandler {
	return &SessionHandler{registry: registry, sessions: sessions, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/kbs/{kb_id}/sessions", h.listByKB)
	mux.HandleFunc("GET /api/sessions/{session_id}", h.get)
	mux.HandleFunc("POST /api/sessions/{session_id}/read", h.markRead)
	mux.HandleFunc("POST /api/sessions/{session_id}/flag", h.flag)
	mux.HandleFunc("POST /api/sessions/{session_id}/clear", h.clear)
	mux.HandleFunc("DELETE /api/sessions/{session_id}", h.delete)
}

func (h *SessionHandler) listByKB(w http.ResponseWriter, r *http.Request) {
	kbID := r.PathValue("kb_id")
	if _, err := h.registry.Get(r.Context(), accountFrom(r), kbID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	summaries, err := h.sessions.List(r.Context(), kbID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"sessions": summaries})
}

// resolveSession loads the session and verifies that its KB belongs to the
// requesting account. A session of a foreign account reads as not found.
func (h *SessionHandler) resolveSession(w http.ResponseWriter, r *http.Request) (session.Summary, bool) {
	sessionID := r.PathValue("session_id")
	summary, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return session.Summary{}, false
	}
	if _, err := h.registry.Get(r.Context(), accountFrom(r), summary.KBID); err != nil {
		writeError(w, h.logger, http.StatusNotFound, "session_not_found", "session not found")
		return session.Summary{}, false
	}
	return summary, true
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	messages, err := h.sessions.History(r.Context(), summary.SessionID, 0)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"session":  summary,
		"messages": messages,
	})
}

func (h *SessionHandler) markRead(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.resolveSession(w, r)
	if !ok {
		return
	}
	if err := h.sessions.MarkRead(r.Context(), summary.SessionID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"unread": false})
}

// FlagRequest sets the potential-client flag.
type FlagRequest struct {
	PotentialClient bool `json:"potential_client"`
}

func (h *SessionHandler) flag(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	var req FlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	if err := h.sessions.SetPotentialClient(r.Context(), summary.SessionID, req.PotentialClient); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"potential_client": req.PotentialClient})
}

func (h *SessionHandler) clear(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.resolveSession(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Clear(r.Context(), summary.SessionID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"cleared": true})
}

func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.resolveSession(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Delete(r.Context(), summary.SessionID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"deleted": true})
}
