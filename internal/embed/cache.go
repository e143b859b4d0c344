package embed

import (
	"context"
	"crypto/sha256"
	"sync"
)

// Cache wraps an Embedder with an in-memory cache keyed by the SHA-256 of
// the input text. During an index rebuild only documents whose content
// actually changed hit the provider.
type Cache struct {
	inner Embedder

	mu      sync.Mutex
	entries map[[32]byte][]float32
}

// NewCache wraps inner with a content-addressed cache.
func NewCache(inner Embedder) *Cache {
	return &Cache{
		inner:   inner,
		entries: make(map[[32]byte][]float32),
	}
}

// Embed implements [Embedder]. Cached texts are served from memory; the rest
// are forwarded to the wrapped embedder in a single batch.
func (c *Cache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var (
		missing    []string
		missingIdx []int
	)

	c.mu.Lock()
	for i, t := range texts {
		if vec, ok := c.entries[sha256.Sum256([]byte(t))]; ok {
			vectors[i] = vec
		} else {
			missing = append(missing, t)
			missingIdx = append(missingIdx, i)
		}
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for i, vec := range fresh {
		c.entries[sha256.Sum256([]byte(missing[i]))] = vec
		vectors[missingIdx[i]] = vec
	}
	c.mu.Unlock()

	return vectors, nil
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
