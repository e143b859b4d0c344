package embed

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable indicates the embedding provider could not be reached or
// rejected the request. Retrieval treats this as a hard failure for the
// current operation; it does not fall back to stale or keyword results.
var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder produces one vector per input text, in input order. All vectors
// of a response have the same dimensionality.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrUnavailable, len(vecs))
	}
	return vecs[0], nil
}
