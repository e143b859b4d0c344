package api

import (
	"net/http"

	"github.com/knowbot-ai/knowbot/internal/log"
	"github.com/knowbot-ai/knowbot/internal/usage"
)

// Transaction listing bounds.
const (
	DefaultTransactionLimit = 50
	MaxTransactionLimit     = 1000
)

// UsageHandler handles usage reporting endpoints.
type UsageHandler struct {
	ledger *usage.Ledger
	logger log.Logger
}

// NewUsageHandler creates a usage handler.
func NewUsageHandler(ledger *usage.Ledger, logger log.Logger) *UsageHandler {
	return &UsageHandler{ledger: ledger, logger: logger}
}

// RegisterRoutes registers usage routes on the given mux.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/usage", h.summary)
	mux.HandleFunc("GET /api/usage/transactions", h.transactions)
}

func (h *UsageHandler) summary(w http.ResponseWriter, r *http.Request) {
	totals, err := h.ledger.Summary(r.Context(), accountFrom(r))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, totals)
}

func (h *UsageHandler) transactions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultTransactionLimit, 1, MaxTransactionLimit)

	records, err := h.ledger.Transactions(r.Context(), accountFrom(r), limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"transactions": records,
		"limit":        limit,
	})
}
