package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/knowbot-ai/knowbot/internal/chat"
	"github.com/knowbot-ai/knowbot/internal/config"
	"github.com/knowbot-ai/knowbot/internal/knowledge"
	"github.com/knowbot-ai/knowbot/internal/log"
	"github.com/knowbot-ai/knowbot/internal/retrieval"
)

// Searcher runs semantic search over a knowledge base.
type Searcher interface {
	Retrieve(ctx context.Context, kbID, query string, k int) ([]retrieval.Source, error)
}

// ChatHandler handles the chat turn and semantic search endpoints.
type ChatHandler struct {
	orchestrator *chat.Orchestrator
	registry     *knowledge.Registry
	searcher     Searcher
	logger       log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(orchestrator *chat.Orchestrator, registry *knowledge.Registry, searcher Searcher, logger log.Logger) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		registry:     registry,
		searcher:     searcher,
		logger:       logger,
	}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.ask)
	mux.HandleFunc("GET /api/search", h.search)
}

// ChatRequest is the request body for a chat turn.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// StoppedResponse is returned instead of an answer when the bot is stopped.
type StoppedResponse struct {
	Stopped      bool   `json:"stopped"`
	AdminStopped bool   `json:"admin_stopped"`
	Message      string `json:"message,omitempty"`
}

func (h *ChatHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	resp, err := h.orchestrator.Ask(r.Context(), chat.Request{
		Account:   accountFrom(r),
		SessionID: req.SessionID,
		Question:  req.Question,
	})
	if err != nil {
		var stopped *chat.StoppedError
		if errors.As(err, &stopped) {
			writeJSON(w, h.logger, http.StatusServiceUnavailable, StoppedResponse{
				Stopped:      true,
				AdminStopped: stopped.Admin(),
				Message:      stopped.Message,
			})
			return
		}
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

func (h *ChatHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, h.logger, http.StatusBadRequest, "validation_failed", "query parameter q is required")
		return
	}
	k := parseIntParam(r, "k", config.DefaultTopK, 1, config.MaxTopK)

	account := accountFrom(r)
	kb, err := h.registry.Current(r.Context(), account)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	sources, err := h.searcher.Retrieve(r.Context(), kb.KBID, query, k)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"kb_id":   kb.KBID,
		"query":   query,
		"results": sources,
	})
}
