package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/knowbot-ai/knowbot/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(testutil.OpenTestDB(t), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStoreAddGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.Add(ctx, "kb1", "What are your hours?", "We are open 9-17.")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id != 0 {
		t.Errorf("first document ID = %d, want 0", id)
	}

	doc, err := store.Get(ctx, "kb1", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Question != "What are your hours?" || doc.Answer != "We are open 9-17." {
		t.Errorf("round trip mismatch: %+v", doc)
	}
}

func TestStoreValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tests := []struct {
		name     string
		question string
		answer   string
	}{
		{"empty question", "", "answer"},
		{"empty answer", "question", ""},
		{"question too long", strings.Repeat("q", MaxQuestionLen+1), "answer"},
		{"answer too long", "question", strings.Repeat("a", MaxAnswerLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Add(ctx, "kb1", tt.question, tt.answer); !errors.Is(err, ErrValidation) {
				t.Errorf("Add() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestStoreIDsStableAcrossDeletes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := store.Add(ctx, "kb1", "q", "a"); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if err := store.Delete(ctx, "kb1", 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Surviving IDs keep their values; the next ID is not reused.
	if _, err := store.Get(ctx, "kb1", 0); err != nil {
		t.Errorf("document 0 gone after deleting 1: %v", err)
	}
	if _, err := store.Get(ctx, "kb1", 2); err != nil {
		t.Errorf("document 2 gone after deleting 1: %v", err)
	}

	id, err := store.Add(ctx, "kb1", "q", "a")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id != 3 {
		t.Errorf("next ID after delete = %d, want 3", id)
	}
}

func TestStoreUpdateNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Update(ctx, "kb1", 42, "q", "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "kb1", 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, "kb1", 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStoreListPagination(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < PageSize+3; i++ {
		if _, err := store.Add(ctx, "kb1", "q", "a"); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	docs, p, err := store.List(ctx, "kb1", 1, "")
	if err != nil {
		t.Fatalf("List page 1: %v", err)
	}
	if len(docs) != PageSize {
		t.Errorf("page 1 size = %d, want %d", len(docs), PageSize)
	}
	if p.TotalPages != 2 || p.TotalDocuments != PageSize+3 {
		t.Errorf("pagination = %+v", p)
	}

	docs, _, err = store.List(ctx, "kb1", 2, "")
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("page 2 size = %d, want 3", len(docs))
	}

	// Beyond the last page: empty, not an error.
	docs, _, err = store.List(ctx, "kb1", 99, "")
	if err != nil {
		t.Fatalf("List page 99: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("page 99 size = %d, want 0", len(docs))
	}
}

func TestStoreListSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Add(ctx, "kb1", "Shipping times", "3-5 business days"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := store.Add(ctx, "kb1", "Return policy", "30 days, free SHIPPING back"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := store.Add(ctx, "kb1", "Payment methods", "Cards and invoices"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	docs, p, err := store.List(ctx, "kb1", 1, "shipping")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 2 || p.TotalDocuments != 2 {
		t.Errorf("search matched %d documents, want 2 (case-insensitive, both fields)", len(docs))
	}
}

func TestFingerprintTracksContent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	empty, err := store.Fingerprint(ctx, "kb1")
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}

	id, err := store.Add(ctx, "kb1", "q", "a")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	afterAdd, _ := store.Fingerprint(ctx, "kb1")
	if afterAdd == empty {
		t.Error("fingerprint unchanged after add")
	}

	if err := store.Update(ctx, "kb1", id, "q", "a2"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	afterUpdate, _ := store.Fingerprint(ctx, "kb1")
	if afterUpdate == afterAdd {
		t.Error("fingerprint unchanged after update")
	}

	if err := store.Delete(ctx, "kb1", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	afterDelete, _ := store.Fingerprint(ctx, "kb1")
	if afterDelete != empty {
		t.Error("fingerprint of emptied KB differs from empty KB")
	}

	// Identical content in another KB fingerprints identically.
	other, _ := store.Fingerprint(ctx, "kb2")
	if other != empty {
		t.Error("empty KBs have different fingerprints")
	}
}

func TestStoreKBIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Add(ctx, "kb1", "q1", "a1"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := store.Add(ctx, "kb2", "q2", "a2"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	n, err := store.Count(ctx, "kb1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("kb1 count = %d, want 1", n)
	}

	if _, err := store.Get(ctx, "kb1", 0); err != nil {
		t.Errorf("kb1 doc 0: %v", err)
	}
	doc, err := store.Get(ctx, "kb2", 0)
	if err != nil {
		t.Fatalf("kb2 doc 0: %v", err)
	}
	if doc.Question != "q2" {
		t.Errorf("kb2 doc 0 question = %q, want q2", doc.Question)
	}
}
