package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/knowbot-ai/knowbot/internal/chat"
	"github.com/knowbot-ai/knowbot/internal/config"
	"github.com/knowbot-ai/knowbot/internal/knowledge"
	"github.com/knowbot-ai/knowbot/internal/llm"
	"github.com/knowbot-ai/knowbot/internal/retrieval"
	"github.com/knowbot-ai/knowbot/internal/session"
	"github.com/knowbot-ai/knowbot/internal/settings"
	"github.com/knowbot-ai/knowbot/internal/status"
	"github.com/knowbot-ai/knowbot/internal/testutil"
	"github.com/knowbot-ai/knowbot/internal/usage"
)

type fixture struct {
	orchestrator *chat.Orchestrator
	registry     *knowledge.Registry
	documents    *knowledge.Store
	sessions     *session.Manager
	stop         *status.Switch
	ledger       *usage.Ledger
	generator    *testutil.Generator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenTestDB(t)

	registry, err := knowledge.NewRegistry(db, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	documents, err := knowledge.NewStore(db, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sessions, err := session.NewManager(db, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	settingsStore, err := settings.NewStore(db, nil)
	if err != nil {
		t.Fatalf("settings.NewStore: %v", err)
	}
	stop, err := status.NewSwitch(db, nil)
	if err != nil {
		t.Fatalf("NewSwitch: %v", err)
	}
	ledger, err := usage.NewLedger(db, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	models, err := chat.NewModelStore(db, config.ModelLite, nil)
	if err != nil {
		t.Fatalf("NewModelStore: %v", err)
	}

	generator := &testutil.Generator{
		Answer: "our answer",
		Usage:  llm.Usage{InputTokens: 100, OutputTokens: 20},
	}
	retriever := retrieval.New(documents, &testutil.Embedder{}, nil)

	orchestrator := chat.New(
		registry, retriever, settingsStore, sessions,
		stop, models, generator, ledger,
		chat.Options{TopK: 5, HistoryWindow: 10},
		nil,
	)

	return &fixture{
		orchestrator: orchestrator,
		registry:     registry,
		documents:    documents,
		sessions:     sessions,
		stop:         stop,
		ledger:       ledger,
		generator:    generator,
	}
}

func TestAskCreatesSessionLazily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	kb, err := f.registry.EnsureDefault(ctx, "acc")
	if err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	if _, err := f.documents.Add(ctx, kb.KBID, "Shipping?", "3-5 days"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	resp, err := f.orchestrator.Ask(ctx, chat.Request{Account: "acc", Question: "Shipping?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Answer != "our answer" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.SessionID == "" {
		t.Fatal("no session created on success")
	}
	if resp.Model != config.ModelLite {
		t.Errorf("model = %q, want default %q", resp.Model, config.ModelLite)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Question != "Shipping?" {
		t.Errorf("sources = %+v", resp.Sources)
	}

	summary, err := f.sessions.Get(ctx, resp.SessionID)
	if err != nil {
		t.Fatalf("session Get: %v", err)
	}
	if summary.TotalMessages != 2 {
		t.Errorf("total_messages = %d, want 2", summary.TotalMessages)
	}

	totals, err := f.ledger.Summary(ctx, "acc")
	if err != nil {
		t.Fatalf("usage Summary: %v", err)
	}
	if totals.Records != 1 || totals.TotalInputTokens != 100 || totals.TotalOutputTokens != 20 {
		t.Errorf("usage totals = %+v", totals)
	}
}

func TestAskContinuesSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	kb, _ := f.registry.EnsureDefault(ctx, "acc")
	if _, err := f.documents.Add(ctx, kb.KBID, "q", "a"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	first, err := f.orchestrator.Ask(ctx, chat.Request{Account: "acc", Question: "first"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	second, err := f.orchestrator.Ask(ctx, chat.Request{
		Account: "acc", SessionID: first.SessionID, Question: "second",
	})
	if err != nil {
		t.Fatalf("Ask second: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session changed: %q vs %q", second.SessionID, first.SessionID)
	}

	// The second turn's prompt carries the first exchange as history.
	msgs := f.generator.LastMessages()
	var sawFirst bool
	for _, m := range msgs {
		if m.Content == "first" {
			sawFirst = true
		}
	}
	if !sawFirst {
		t.Error("prior user message missing from prompt history")
	}

	summary, _ := f.sessions.Get(ctx, first.SessionID)
	if summary.TotalMessages != 4 {
		t.Errorf("total_messages = %d, want 4", summary.TotalMessages)
	}
}

func TestAskStopped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_ = f.stop.Stop(ctx, "acc", status.ActorUser, "closed for holidays")

	_, err := f.orchestrator.Ask(ctx, chat.Request{Account: "acc", Question: "hello"})
	var stopped *chat.StoppedError
	if !errors.As(err, &stopped) {
		t.Fatalf("Ask error = %v, want StoppedError", err)
	}
	if stopped.Admin() {
		t.Error("user stop reported as admin stop")
	}
	if stopped.Message != "closed for holidays" {
		t.Errorf("message = %q", stopped.Message)
	}
	if f.generator.Calls() != 0 {
		t.Error("model called despite stop")
	}
}

func TestAskAdminStopped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_ = f.stop.Stop(ctx, "acc", status.ActorAdmin, "")

	_, err := f.orchestrator.Ask(ctx, chat.Request{Account: "acc", Question: "hello"})
	var stopped *chat.StoppedError
	if !errors.As(err, &stopped) {
		t.Fatalf("Ask error = %v, want StoppedError", err)
	}
	if !stopped.Admin() {
		t.Error("admin stop not reported as admin")
	}
}

func TestAskGenerationFailureLeavesNoSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	kb, _ := f.registry.EnsureDefault(ctx, "acc")
	if _, err := f.documents.Add(ctx, kb.KBID, "q", "a"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	f.generator.Err = llm.ErrUnavailable

	_, err := f.orchestrator.Ask(ctx, chat.Request{Account: "acc", Question: "q"})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("Ask error = %v, want ErrUnavailable", err)
	}

	sessions, err := f.sessions.List(ctx, kb.KBID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("failed turn created %d sessions", len(sessions))
	}
}

func TestAskValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.orchestrator.Ask(ctx, chat.Request{Account: "acc"}); !errors.Is(err, knowledge.ErrValidation) {
		t.Errorf("empty question error = %v, want ErrValidation", err)
	}

	long := make([]rune, knowledge.MaxQuestionLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := f.orchestrator.Ask(ctx, chat.Request{Account: "acc", Question: string(long)}); !errors.Is(err, knowledge.ErrValidation) {
		t.Errorf("oversized question error = %v, want ErrValidation", err)
	}
}

func TestAskUnknownSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _ = f.registry.EnsureDefault(ctx, "acc")
	_, err := f.orchestrator.Ask(ctx, chat.Request{
		Account: "acc", SessionID: "missing", Question: "q",
	})
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Ask error = %v, want session.ErrNotFound", err)
	}
	if f.generator.Calls() != 0 {
		t.Error("model called for unknown session")
	}
}
