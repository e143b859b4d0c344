package api

import (
	"encoding/json"
	"net/http"

	"github.com/knowbot-ai/knowbot/internal/log"
	"github.com/knowbot-ai/knowbot/internal/status"
)

// StatusHandler handles the chatbot stop switch endpoints.
type StatusHandler struct {
	sw     *status.Switch
	logger log.Logger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(sw *status.Switch, logger log.Logger) *StatusHandler {
	return &StatusHandler{sw: sw, logger: logger}
}

// RegisterRoutes registers status routes on the given mux. The admin routes
// act with admin authority; deployments front them with their own access
// control.
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", h.get)
	mux.HandleFunc("POST /api/status/stop", h.stop(status.ActorUser))
	mux.HandleFunc("POST /api/status/start", h.start(status.ActorUser))
	mux.HandleFunc("POST /api/admin/status/stop", h.stop(status.ActorAdmin))
	mux.HandleFunc("POST /api/admin/status/start", h.start(status.ActorAdmin))
}

func (h *StatusHandler) get(w http.ResponseWriter, r *http.Request) {
	st, err := h.sw.Get(r.Context(), accountFrom(r))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, st)
}

// StopRequest carries the message shown to chat users while stopped.
type StopRequest struct {
	Message string `json:"message"`
}

func (h *StatusHandler) stop(actor string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StopRequest
		if r.Body != nil {
			// A missing or empty body just means no custom message.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		account := accountFrom(r)
		if err := h.sw.Stop(r.Context(), account, actor, req.Message); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}

		st, err := h.sw.Get(r.Context(), account)
		if err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, st)
	}
}

func (h *StatusHandler) start(actor string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := accountFrom(r)
		if err := h.sw.Start(r.Context(), account, actor); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}

		st, err := h.sw.Get(r.Context(), account)
		if err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, st)
	}
}
