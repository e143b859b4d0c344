package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/knowbot-ai/knowbot/internal/testutil"
)

func newTestRegistry(t *testing.T) (*Registry, *Store) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	registry, err := NewRegistry(db, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	store, err := NewStore(db, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return registry, store
}

func TestEnsureDefaultIdempotent(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	first, err := registry.EnsureDefault(ctx, "acc")
	if err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	if !first.Default {
		t.Error("default KB not marked default")
	}

	second, err := registry.EnsureDefault(ctx, "acc")
	if err != nil {
		t.Fatalf("EnsureDefault again: %v", err)
	}
	if second.KBID != first.KBID {
		t.Errorf("EnsureDefault created a second default: %q vs %q", second.KBID, first.KBID)
	}

	bases, err := registry.List(ctx, "acc")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(bases) != 1 {
		t.Errorf("KB count = %d, want 1", len(bases))
	}
}

func TestCreateAndSelect(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	kb, err := registry.Create(ctx, "acc", "Support", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if kb.Default {
		t.Error("created KB must not be default")
	}

	// Default is still current until selected.
	current, err := registry.Current(ctx, "acc")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current.KBID == kb.KBID {
		t.Error("new KB became current without Select")
	}

	if err := registry.Select(ctx, "acc", kb.KBID); err != nil {
		t.Fatalf("Select: %v", err)
	}
	current, err = registry.Current(ctx, "acc")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current.KBID != kb.KBID {
		t.Errorf("current = %q, want %q", current.KBID, kb.KBID)
	}
}

func TestCreateRequiresName(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	if _, err := registry.Create(ctx, "acc", "", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Create() error = %v, want ErrValidation", err)
	}
}

func TestDeleteDefaultRejected(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	def, err := registry.EnsureDefault(ctx, "acc")
	if err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}

	if _, err := registry.Delete(ctx, "acc", def.KBID); !errors.Is(err, ErrDeleteDefault) {
		t.Errorf("Delete(default) error = %v, want ErrDeleteDefault", err)
	}
}

func TestDeleteCurrentFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	registry, store := newTestRegistry(t)

	def, _ := registry.EnsureDefault(ctx, "acc")
	kb, err := registry.Create(ctx, "acc", "Sales", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := registry.Select(ctx, "acc", kb.KBID); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := store.Add(ctx, kb.KBID, "q", "a"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	switched, err := registry.Delete(ctx, "acc", kb.KBID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !switched {
		t.Error("Delete did not report fallback to default")
	}

	current, err := registry.Current(ctx, "acc")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current.KBID != def.KBID {
		t.Errorf("current after delete = %q, want default %q", current.KBID, def.KBID)
	}

	// Documents of the deleted KB are gone too.
	n, err := store.Count(ctx, kb.KBID)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("deleted KB still has %d documents", n)
	}

	if _, err := registry.Get(ctx, "acc", kb.KBID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestDeleteNonCurrentKeepsPointer(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	keep, err := registry.Create(ctx, "acc", "Keep", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	drop, err := registry.Create(ctx, "acc", "Drop", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := registry.Select(ctx, "acc", keep.KBID); err != nil {
		t.Fatalf("Select: %v", err)
	}

	switched, err := registry.Delete(ctx, "acc", drop.KBID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if switched {
		t.Error("deleting a non-current KB must not switch the pointer")
	}

	current, _ := registry.Current(ctx, "acc")
	if current.KBID != keep.KBID {
		t.Errorf("current = %q, want %q", current.KBID, keep.KBID)
	}
}

func TestPasswordFlows(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	kb, err := registry.Create(ctx, "acc", "Hidden", "hunter2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !kb.HasPassword {
		t.Error("HasPassword = false for password-protected KB")
	}

	ok, err := registry.CheckPassword(ctx, "acc", kb.KBID, "hunter2")
	if err != nil || !ok {
		t.Errorf("CheckPassword(correct) = %v, %v", ok, err)
	}
	ok, err = registry.CheckPassword(ctx, "acc", kb.KBID, "wrong")
	if err != nil || ok {
		t.Errorf("CheckPassword(wrong) = %v, %v", ok, err)
	}

	found, err := registry.FindByPassword(ctx, "acc", "hunter2")
	if err != nil {
		t.Fatalf("FindByPassword: %v", err)
	}
	if found.KBID != kb.KBID {
		t.Errorf("FindByPassword = %q, want %q", found.KBID, kb.KBID)
	}

	if _, err := registry.FindByPassword(ctx, "acc", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByPassword(unknown) error = %v, want ErrNotFound", err)
	}

	// Removing the password makes the KB unreachable by password.
	if err := registry.SetPassword(ctx, "acc", kb.KBID, ""); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	got, _ := registry.Get(ctx, "acc", kb.KBID)
	if got.HasPassword {
		t.Error("HasPassword = true after clearing password")
	}
	if _, err := registry.FindByPassword(ctx, "acc", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByPassword(empty) error = %v, want ErrNotFound", err)
	}
}

func TestAccountIsolation(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	kb, err := registry.Create(ctx, "alice", "Private", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := registry.Get(ctx, "bob", kb.KBID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-account Get error = %v, want ErrNotFound", err)
	}
	if err := registry.Select(ctx, "bob", kb.KBID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-account Select error = %v, want ErrNotFound", err)
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry(t)

	kb, err := registry.Create(ctx, "acc", "Old", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := registry.Rename(ctx, "acc", kb.KBID, "New"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	got, err := registry.Get(ctx, "acc", kb.KBID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "New" {
		t.Errorf("name = %q, want New", got.Name)
	}

	if err := registry.Rename(ctx, "acc", kb.KBID, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Rename(empty) error = %v, want ErrValidation", err)
	}
}
