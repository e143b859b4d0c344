// Package retrieval answers "which documents are relevant to this question"
// and keeps each knowledge base's vector index in sync with its content.
//
// Synchronization is fingerprint-driven: every retrieval compares the
// store's current content digest with the digest the in-memory index was
// built from, and rebuilds the index before querying when they differ. A
// fresh index is never rebuilt, no matter how many reads arrive.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/knowbot-ai/knowbot/internal/embed"
	"github.com/knowbot-ai/knowbot/internal/knowledge"
	"github.com/knowbot-ai/knowbot/internal/log"
	"github.com/knowbot-ai/knowbot/internal/vector"
)

// ErrUnavailable indicates retrieval could not complete, typically because
// the embedding provider failed. The caller must fail the whole operation;
// answering without retrieved context is worse than not answering.
var ErrUnavailable = errors.New("retrieval unavailable")

// Source is one retrieved document with its relevance score.
type Source struct {
	DocumentID int64   `json:"document_id"`
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Score      float64 `json:"score"`
}

// DocumentLister supplies the ordered document set of a knowledge base.
type DocumentLister interface {
	ListAll(ctx context.Context, kbID string) ([]knowledge.Document, error)
}

// kbIndex is the synchronized index state of one knowledge base. The write
// lock serializes rebuilds; fresh reads share a read lock and work on an
// immutable snapshot, so retrievals see either the old or the new index,
// never a partial one.
type kbIndex struct {
	mu          sync.RWMutex
	fingerprint string
	index       *vector.Index
	docs        map[int64]knowledge.Document
	rebuilds    int
}

// Retriever embeds questions and ranks documents against them.
type Retriever struct {
	docs     DocumentLister
	embedder embed.Embedder
	logger   log.Logger

	mu      sync.Mutex
	indexes map[string]*kbIndex
}

// New creates a retriever over the given document source and embedder.
func New(docs DocumentLister, embedder embed.Embedder, logger log.Logger) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{
		docs:     docs,
		embedder: embedder,
		logger:   logger,
		indexes:  make(map[string]*kbIndex),
	}
}

// Retrieve returns the k most relevant documents for the query, rebuilding
// the KB's index first if its content changed. An empty KB yields an empty
// result. Embedding failures surface as ErrUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, kbID, query string, k int) ([]Source, error) {
	index, docs, err := r.current(ctx, kbID)
	if err != nil {
		return nil, err
	}
	if index.Len() == 0 {
		return []Source{}, nil
	}

	// The snapshot is immutable, so the query runs without any lock and a
	// concurrent rebuild cannot affect it.
	qvec, err := embed.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrUnavailable, err)
	}

	matches, err := index.Query(qvec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		doc, ok := docs[m.DocID]
		if !ok {
			continue
		}
		sources = append(sources, Source{
			DocumentID: doc.ID,
			Question:   doc.Question,
			Answer:     doc.Answer,
			Score:      m.Score,
		})
	}
	return sources, nil
}

// Sync forces a staleness check (and rebuild if needed) without querying.
func (r *Retriever) Sync(ctx context.Context, kbID string) error {
	state := r.state(kbID)
	state.mu.Lock()
	defer state.mu.Unlock()
	return r.syncLocked(ctx, kbID, state)
}

// Invalidate drops the in-memory index of a KB, e.g. after the KB itself is
// deleted. The next retrieval rebuilds from scratch.
func (r *Retriever) Invalidate(kbID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.indexes, kbID)
}

// Rebuilds reports how many times the KB's index has been rebuilt. Exposed
// for observability.
func (r *Retriever) Rebuilds(kbID string) int {
	state := r.state(kbID)
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.rebuilds
}

// current returns the KB's fresh index and document snapshot, rebuilding
// first when the store content drifted. The fresh path only takes the read
// lock, so concurrent retrievals of an unchanged KB do not serialize.
func (r *Retriever) current(ctx context.Context, kbID string) (*vector.Index, map[int64]knowledge.Document, error) {
	state := r.state(kbID)

	docs, err := r.docs.ListAll(ctx, kbID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: loading documents: %v", ErrUnavailable, err)
	}
	fp := knowledge.FingerprintDocuments(docs)

	state.mu.RLock()
	if fp == state.fingerprint {
		index, byID := state.index, state.docs
		state.mu.RUnlock()
		return index, byID, nil
	}
	state.mu.RUnlock()

	// Stale: take the write lock and rebuild. syncLocked re-lists and
	// re-compares, so concurrent first-readers trigger exactly one rebuild
	// and latecomers just pick up the swapped-in state.
	state.mu.Lock()
	defer state.mu.Unlock()
	if err := r.syncLocked(ctx, kbID, state); err != nil {
		return nil, nil, err
	}
	return state.index, state.docs, nil
}

func (r *Retriever) state(kbID string) *kbIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.indexes[kbID]
	if !ok {
		state = &kbIndex{index: &vector.Index{}}
		r.indexes[kbID] = state
	}
	return state
}

// syncLocked rebuilds the index when the store content diverged from what
// the index was built from. Caller holds state.mu for writing.
func (r *Retriever) syncLocked(ctx context.Context, kbID string, state *kbIndex) error {
	docs, err := r.docs.ListAll(ctx, kbID)
	if err != nil {
		return fmt.Errorf("%w: loading documents: %v", ErrUnavailable, err)
	}

	fp := knowledge.FingerprintDocuments(docs)
	if fp == state.fingerprint {
		return nil
	}

	blocks := make([]string, len(docs))
	for i, d := range docs {
		blocks[i] = d.Block()
	}

	var entries []vector.Entry
	if len(blocks) > 0 {
		vecs, err := r.embedder.Embed(ctx, blocks)
		if err != nil {
			return fmt.Errorf("%w: embedding documents: %v", ErrUnavailable, err)
		}
		entries = make([]vector.Entry, len(docs))
		for i, d := range docs {
			entries[i] = vector.Entry{DocID: d.ID, Vector: vecs[i]}
		}
	}

	index, err := vector.Build(entries)
	if err != nil {
		return fmt.Errorf("%w: building index: %v", ErrUnavailable, err)
	}

	byID := make(map[int64]knowledge.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	state.index = index
	state.docs = byID
	state.fingerprint = fp
	state.rebuilds++

	r.logger.Info("vector index rebuilt",
		"kb_id", kbID, "documents", len(docs), "rebuilds", state.rebuilds)
	return nil
}
