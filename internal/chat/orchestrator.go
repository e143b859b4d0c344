package chat

import (
	"context"
	"fmt"

	"github.com/knowbot-ai/knowbot/internal/knowledge"
	"github.com/knowbot-ai/knowbot/internal/llm"
	"github.com/knowbot-ai/knowbot/internal/log"
	"github.com/knowbot-ai/knowbot/internal/prompt"
	"github.com/knowbot-ai/knowbot/internal/retrieval"
	"github.com/knowbot-ai/knowbot/internal/session"
	"github.com/knowbot-ai/knowbot/internal/settings"
	"github.com/knowbot-ai/knowbot/internal/status"
	"github.com/knowbot-ai/knowbot/internal/usage"
)

// StoppedError is returned when the account's bot is stopped. It carries
// who stopped it and the message to show chat users.
type StoppedError struct {
	By      string
	Message string
}

func (e *StoppedError) Error() string {
	return fmt.Sprintf("chatbot stopped by %s", e.By)
}

// Admin reports whether only an admin can lift the stop.
func (e *StoppedError) Admin() bool { return e.By == status.ActorAdmin }

// Request is one incoming chat turn. SessionID may be empty; a session is
// then created when the turn succeeds.
type Request struct {
	Account   string
	SessionID string
	Question  string
}

// Response is the result of a successful turn.
type Response struct {
	Answer    string             `json:"answer"`
	SessionID string             `json:"session_id"`
	Model     string             `json:"model"`
	Sources   []retrieval.Source `json:"sources"`
}

// Dependencies of the orchestrator, defined here so tests can substitute
// each seam independently.
type (
	// KBResolver yields the account's currently selected knowledge base.
	KBResolver interface {
		Current(ctx context.Context, account string) (knowledge.Base, error)
	}

	// Retriever returns relevant documents for a question.
	Retriever interface {
		Retrieve(ctx context.Context, kbID, query string, k int) ([]retrieval.Source, error)
	}

	// SettingsSource yields a KB's persona settings.
	SettingsSource interface {
		Get(ctx context.Context, kbID string) (settings.Settings, error)
	}

	// Sessions is the transcript store the orchestrator needs.
	Sessions interface {
		Create(ctx context.Context, kbID string) (string, error)
		Get(ctx context.Context, sessionID string) (session.Summary, error)
		History(ctx context.Context, sessionID string, max int) ([]session.Message, error)
		AppendExchange(ctx context.Context, sessionID, question, answer string) error
	}

	// StopSwitch yields the account's stop state.
	StopSwitch interface {
		Get(ctx context.Context, account string) (status.Status, error)
	}

	// ModelSelector yields the account's chat model.
	ModelSelector interface {
		Get(ctx context.Context, account string) (string, error)
	}

	// UsageReporter records token consumption.
	UsageReporter interface {
		Report(ctx context.Context, account, modelID string, inputTokens, outputTokens int64, activity string) error
	}
)

// Options tune orchestration.
type Options struct {
	TopK          int // documents retrieved per question
	HistoryWindow int // prior messages included in the prompt
}

// Orchestrator runs chat turns.
type Orchestrator struct {
	kbs       KBResolver
	retriever Retriever
	settings  SettingsSource
	sessions  Sessions
	stop      StopSwitch
	models    ModelSelector
	generator llm.Generator
	usage     UsageReporter
	opts      Options
	logger    log.Logger
}

// New wires an orchestrator from its dependencies.
func New(
	kbs KBResolver,
	retriever Retriever,
	settingsSrc SettingsSource,
	sessions Sessions,
	stop StopSwitch,
	models ModelSelector,
	generator llm.Generator,
	usageRep UsageReporter,
	opts Options,
	logger log.Logger,
) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		kbs:       kbs,
		retriever: retriever,
		settings:  settingsSrc,
		sessions:  sessions,
		stop:      stop,
		models:    models,
		generator: generator,
		usage:     usageRep,
		opts:      opts,
		logger:    logger,
	}
}

// Ask runs one full turn. The transcript is only written when generation
// succeeds, so a failed turn changes no session state.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (Response, error) {
	if req.Question == "" {
		return Response{}, fmt.Errorf("%w: question must not be empty", knowledge.ErrValidation)
	}
	if len([]rune(req.Question)) > knowledge.MaxQuestionLen {
		return Response{}, fmt.Errorf("%w: question exceeds %d characters",
			knowledge.ErrValidation, knowledge.MaxQuestionLen)
	}

	st, err := o.stop.Get(ctx, req.Account)
	if err != nil {
		return Response{}, fmt.Errorf("checking stop switch: %w", err)
	}
	if st.Stopped {
		return Response{}, &StoppedError{By: st.StoppedBy, Message: st.Message}
	}

	kb, err := o.kbs.Current(ctx, req.Account)
	if err != nil {
		return Response{}, fmt.Errorf("resolving current KB: %w", err)
	}

	// Validate the session and load history before spending tokens.
	var history []session.Message
	if req.SessionID != "" {
		if _, err := o.sessions.Get(ctx, req.SessionID); err != nil {
			return Response{}, err
		}
		history, err = o.sessions.History(ctx, req.SessionID, o.opts.HistoryWindow)
		if err != nil {
			return Response{}, err
		}
	}

	sources, err := o.retriever.Retrieve(ctx, kb.KBID, req.Question, o.opts.TopK)
	if err != nil {
		return Response{}, err
	}

	set, err := o.settings.Get(ctx, kb.KBID)
	if err != nil {
		return Response{}, fmt.Errorf("loading settings: %w", err)
	}

	model, err := o.models.Get(ctx, req.Account)
	if err != nil {
		return Response{}, fmt.Errorf("resolving model: %w", err)
	}

	messages := prompt.Compose(prompt.Input{
		KBName:   kb.Name,
		Settings: set,
		Sources:  sources,
		History:  history,
		Question: req.Question,
	})

	answer, tokens, err := o.generator.Generate(ctx, model, messages)
	if err != nil {
		return Response{}, err
	}

	// Usage reporting must not fail the turn; the user already has an
	// answer worth delivering.
	if rerr := o.usage.Report(ctx, req.Account, model,
		tokens.InputTokens, tokens.OutputTokens, usage.ActivityChat); rerr != nil {
		o.logger.Error("usage report failed", "account", req.Account, "error", rerr)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID, err = o.sessions.Create(ctx, kb.KBID)
		if err != nil {
			return Response{}, fmt.Errorf("creating session: %w", err)
		}
	}
	if err := o.sessions.AppendExchange(ctx, sessionID, req.Question, answer); err != nil {
		return Response{}, fmt.Errorf("persisting exchange: %w", err)
	}

	o.logger.Info("chat turn completed", "account", req.Account,
		"kb_id", kb.KBID, "session_id", sessionID, "model", model,
		"sources", len(sources))

	return Response{
		Answer:    answer,
		SessionID: sessionID,
		Model:     model,
		Sources:   sources,
	}, nil
}
