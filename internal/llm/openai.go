package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/knowbot-ai/knowbot/internal/log"
)

// OpenAI generates completions through the OpenAI chat API.
type OpenAI struct {
	client *openai.Client
	logger log.Logger
}

// NewOpenAI creates an OpenAI chat client.
func NewOpenAI(apiKey string, logger log.Logger) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: API key must not be empty")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{client: &client, logger: logger}, nil
}

// Generate implements [Generator].
func (o *OpenAI) Generate(ctx context.Context, model string, messages []Message) (string, Usage, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		o.logger.Error("chat completion failed", "model", model, "error", err)
		return "", Usage{}, classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	usage := Usage{
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}
	o.logger.Debug("completion generated", "model", model,
		"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)

	return completion.Choices[0].Message.Content, usage, nil
}

func classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
