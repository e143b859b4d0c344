package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/knowbot-ai/knowbot/internal/testutil"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(testutil.OpenTestDB(t), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestCreateAndAppend(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	id, err := m.Create(ctx, "kb1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.AppendExchange(ctx, id, "hello", "hi there"); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}

	summary, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if summary.TotalMessages != 2 {
		t.Errorf("total_messages = %d, want 2", summary.TotalMessages)
	}
	if !summary.Unread {
		t.Error("session with new user message not marked unread")
	}

	msgs, err := m.History(ctx, id, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("history length = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "hi there" {
		t.Errorf("second message = %+v", msgs[1])
	}
}

func TestTotalMessagesMatchesTranscript(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	id, _ := m.Create(ctx, "kb1")
	for i := 0; i < 4; i++ {
		if err := m.AppendExchange(ctx, id, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)); err != nil {
			t.Fatalf("AppendExchange %d: %v", i, err)
		}
	}

	summary, _ := m.Get(ctx, id)
	msgs, _ := m.History(ctx, id, 0)
	if summary.TotalMessages != len(msgs) {
		t.Errorf("total_messages = %d but transcript has %d", summary.TotalMessages, len(msgs))
	}

	// Sequence numbers are dense and ordered.
	for i, msg := range msgs {
		if msg.Seq != i {
			t.Errorf("message %d has seq %d", i, msg.Seq)
		}
	}
}

func TestHistoryWindow(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	id, _ := m.Create(ctx, "kb1")
	for i := 0; i < 8; i++ {
		if err := m.AppendExchange(ctx, id, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)); err != nil {
			t.Fatalf("AppendExchange: %v", err)
		}
	}

	msgs, err := m.History(ctx, id, 4)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("window length = %d, want 4", len(msgs))
	}
	// The window holds the most recent messages, oldest first.
	if msgs[0].Content != "q6" || msgs[3].Content != "a7" {
		t.Errorf("window = [%s .. %s], want [q6 .. a7]", msgs[0].Content, msgs[3].Content)
	}
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
	if err := m.Append(ctx, "missing", RoleUser, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Append error = %v, want ErrNotFound", err)
	}
	if _, err := m.History(ctx, "missing", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("History error = %v, want ErrNotFound", err)
	}
	if err := m.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete error = %v, want ErrNotFound", err)
	}
}

func TestClearKeepsSession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	id, _ := m.Create(ctx, "kb1")
	_ = m.AppendExchange(ctx, id, "q", "a")

	if err := m.Clear(ctx, id); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	summary, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after clear: %v", err)
	}
	if summary.TotalMessages != 0 || summary.Unread {
		t.Errorf("summary after clear = %+v", summary)
	}
	msgs, _ := m.History(ctx, id, 0)
	if len(msgs) != 0 {
		t.Errorf("transcript after clear has %d messages", len(msgs))
	}
}

func TestDeleteRemovesTranscript(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	id, _ := m.Create(ctx, "kb1")
	_ = m.AppendExchange(ctx, id, "q", "a")

	if err := m.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteReleasesSessionLock(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	a, _ := m.Create(ctx, "kb1")
	b, _ := m.Create(ctx, "kb2")
	_ = m.AppendExchange(ctx, a, "q", "a")
	_ = m.AppendExchange(ctx, b, "q", "a")

	if err := m.Delete(ctx, a); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.DeleteByKB(ctx, "kb2"); err != nil {
		t.Fatalf("DeleteByKB: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locks[a]; ok {
		t.Error("deleted session still holds a lock entry")
	}
	if _, ok := m.locks[b]; ok {
		t.Error("session of deleted KB still holds a lock entry")
	}
}

func TestMarkReadAndFlag(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	id, _ := m.Create(ctx, "kb1")
	_ = m.AppendExchange(ctx, id, "q", "a")

	if err := m.MarkRead(ctx, id); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := m.SetPotentialClient(ctx, id, true); err != nil {
		t.Fatalf("SetPotentialClient: %v", err)
	}

	summary, _ := m.Get(ctx, id)
	if summary.Unread {
		t.Error("unread still set after MarkRead")
	}
	if !summary.PotentialClient {
		t.Error("potential_client not set")
	}
}

func TestListByKB(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	a, _ := m.Create(ctx, "kb1")
	_, _ = m.Create(ctx, "kb2")
	_, _ = m.Create(ctx, "kb1")
	_ = m.AppendExchange(ctx, a, "q", "a")

	summaries, err := m.List(ctx, "kb1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("kb1 session count = %d, want 2", len(summaries))
	}
	// Most recently active first.
	if summaries[0].SessionID != a {
		t.Errorf("first listed = %s, want most recently active %s", summaries[0].SessionID, a)
	}
}

func TestDeleteByKB(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	a, _ := m.Create(ctx, "kb1")
	keep, _ := m.Create(ctx, "kb2")
	_ = m.AppendExchange(ctx, a, "q", "a")

	if err := m.DeleteByKB(ctx, "kb1"); err != nil {
		t.Fatalf("DeleteByKB: %v", err)
	}
	if _, err := m.Get(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Errorf("kb1 session survived DeleteByKB")
	}
	if _, err := m.Get(ctx, keep); err != nil {
		t.Errorf("kb2 session deleted by DeleteByKB: %v", err)
	}
}
