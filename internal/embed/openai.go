package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/knowbot-ai/knowbot/internal/log"
)

// OpenAI embeds text through the OpenAI embeddings API.
type OpenAI struct {
	client *openai.Client
	model  string
	logger log.Logger
}

// NewOpenAI creates an OpenAI embedder for the given model.
func NewOpenAI(apiKey, model string, logger log.Logger) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embed: API key must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("embed: model must not be empty")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{client: &client, model: model, logger: logger}, nil
}

// Embed implements [Embedder].
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		o.logger.Error("embedding request failed", "model", o.model, "texts", len(texts), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrUnavailable, len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}

	o.logger.Debug("texts embedded", "model", o.model, "count", len(texts))
	return vectors, nil
}
