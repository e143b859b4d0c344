package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/knowbot-ai/knowbot/internal/knowledge"
	"github.com/knowbot-ai/knowbot/internal/log"
)

// MaxListPage bounds the page query parameter.
const MaxListPage = 100000

// DocumentHandler handles document CRUD endpoints.
type DocumentHandler struct {
	registry *knowledge.Registry
	store    *knowledge.Store
	logger   log.Logger
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(registry *knowledge.Registry, store *knowledge.Store, logger log.Logger) *DocumentHandler {
	return &DocumentHandler{registry: registry, store: store, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/kbs/{kb_id}/documents", h.list)
	mux.HandleFunc("POST /api/kbs/{kb_id}/documents", h.create)
	mux.HandleFunc("GET /api/kbs/{kb_id}/documents/{doc_id}", h.get)
	mux.HandleFunc("PUT /api/kbs/{kb_id}/documents/{doc_id}", h.update)
	mux.HandleFunc("DELETE /api/kbs/{kb_id}/documents/{doc_id}", h.delete)
}

// resolveKB checks that the KB exists and belongs to the requesting account.
func (h *DocumentHandler) resolveKB(w http.ResponseWriter, r *http.Request) (string, bool) {
	kbID := r.PathValue("kb_id")
	if _, err := h.registry.Get(r.Context(), accountFrom(r), kbID); err != nil {
		writeDomainError(w, h.logger, err)
		return "", false
	}
	return kbID, true
}

func (h *DocumentHandler) list(w http.ResponseWriter, r *http.Request) {
	kbID, ok := h.resolveKB(w, r)
	if !ok {
		return
	}

	page := parseIntParam(r, "page", 1, 1, MaxListPage)
	search := r.URL.Query().Get("search")

	docs, pagination, err := h.store.List(r.Context(), kbID, page, search)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"documents":  docs,
		"pagination": pagination,
	})
}

// DocumentRequest is the request body for adding or updating a document.
type DocumentRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (h *DocumentHandler) create(w http.ResponseWriter, r *http.Request) {
	kbID, ok := h.resolveKB(w, r)
	if !ok {
		return
	}

	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	docID, err := h.store.Add(r.Context(), kbID, req.Question, req.Answer)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	doc, err := h.store.Get(r.Context(), kbID, docID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, doc)
}

func (h *DocumentHandler) get(w http.ResponseWriter, r *http.Request) {
	kbID, ok := h.resolveKB(w, r)
	if !ok {
		return
	}
	docID, ok := parseDocID(w, r, h.logger)
	if !ok {
		return
	}

	doc, err := h.store.Get(r.Context(), kbID, docID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, doc)
}

func (h *DocumentHandler) update(w http.ResponseWriter, r *http.Request) {
	kbID, ok := h.resolveKB(w, r)
	if !ok {
		return
	}
	docID, ok := parseDocID(w, r, h.logger)
	if !ok {
		return
	}

	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	if err := h.store.Update(r.Context(), kbID, docID, req.Question, req.Answer); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	doc, err := h.store.Get(r.Context(), kbID, docID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, doc)
}

func (h *DocumentHandler) delete(w http.ResponseWriter, r *http.Request) {
	kbID, ok := h.resolveKB(w, r)
	if !ok {
		return
	}
	docID, ok := parseDocID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), kbID, docID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"deleted": true})
}

func parseDocID(w http.ResponseWriter, r *http.Request, logger log.Logger) (int64, bool) {
	docID, err := strconv.ParseInt(r.PathValue("doc_id"), 10, 64)
	if err != nil || docID < 0 {
		writeError(w, logger, http.StatusBadRequest, "validation_failed", "invalid document id")
		return 0, false
	}
	return docID, true
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
