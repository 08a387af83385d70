package notes

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/untoldecay/LoreVault/internal/storage/sqlite"
	"github.com/untoldecay/LoreVault/internal/types"
	"github.com/untoldecay/LoreVault/internal/vault"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	idx, err := sqlite.New(context.Background(), filepath.Join(dir, "state", "index.db"))
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return NewService(vault.NewStore(filepath.Join(dir, "vault")), idx)
}

func TestWriteReadVersion(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	note, err := svc.Write(ctx, "t1", "a/b.md", "Hello", nil, WriteOptions{})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if note.Version != 1 {
		t.Errorf("version = %d, want 1", note.Version)
	}
	if note.Title != "B" {
		t.Errorf("title = %q, want B", note.Title)
	}

	got, err := svc.Read(ctx, "t1", "a/b.md")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Body != "Hello" || got.Version != 1 {
		t.Errorf("read = (%q, v%d), want (Hello, v1)", got.Body, got.Version)
	}
}

func TestWriteIfVersion(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.Write(ctx, "t1", "n.md", "one", nil, WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Write(ctx, "t1", "n.md", "two", nil, WriteOptions{}); err != nil {
		t.Fatal(err)
	}

	stale := int64(1)
	_, err := svc.Write(ctx, "t1", "n.md", "three", nil, WriteOptions{IfVersion: &stale})
	if !types.IsKind(err, types.KindVersionConflict) {
		t.Fatalf("kind = %v, want version_conflict", types.KindOf(err))
	}

	current := int64(2)
	note, err := svc.Write(ctx, "t1", "n.md", "three", nil, WriteOptions{IfVersion: &current})
	if err != nil {
		t.Fatalf("conditional write failed: %v", err)
	}
	if note.Version != 3 {
		t.Errorf("version = %d, want 3", note.Version)
	}
}

func TestWriteCreateOnly(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.Write(ctx, "t1", "n.md", "one", nil, WriteOptions{CreateOnly: true}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Write(ctx, "t1", "n.md", "two", nil, WriteOptions{CreateOnly: true})
	if !types.IsKind(err, types.KindConflict) {
		t.Errorf("kind = %v, want conflict", types.KindOf(err))
	}
}

func TestDeleteDropsIndex(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.Write(ctx, "t1", "n.md", "body", nil, WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "t1", "n.md"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Read(ctx, "t1", "n.md"); !types.IsKind(err, types.KindNotFound) {
		t.Error("deleted note still readable")
	}
	health, err := svc.index.Health(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if health.NoteCount != 0 {
		t.Errorf("note_count = %d, want 0", health.NoteCount)
	}
}

func TestMoveRewritesBacklinks(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.Write(ctx, "t1", "guide.md", "# Guide\n\ncontent", nil, WriteOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Write(ctx, "t1", "intro.md", "See [[Guide]] for details", nil, WriteOptions{}); err != nil {
		t.Fatal(err)
	}

	moved, err := svc.Move(ctx, "t1", "guide.md", "docs/handbook.md")
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}

	intro, err := svc.Read(ctx, "t1", "intro.md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(intro.Body, "[["+moved.Title+"]]") {
		t.Errorf("backlink not rewritten: %q", intro.Body)
	}
	back, err := svc.index.Backlinks(ctx, "t1", "docs/handbook.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 1 || back[0].Path != "intro.md" {
		t.Errorf("backlinks = %+v, want intro.md", back)
	}
}

func TestRebuildReconciles(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for _, p := range []string{"a.md", "b.md", "sub/c.md"} {
		if _, err := svc.Write(ctx, "t1", p, "body of "+p, nil, WriteOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	// Simulate index drift.
	if err := svc.index.ClearTenant(ctx, "t1"); err != nil {
		t.Fatal(err)
	}

	n, err := svc.Rebuild(ctx, "t1")
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if n != 3 {
		t.Errorf("rebuilt %d notes, want 3", n)
	}
	health, err := svc.index.Health(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if health.NoteCount != 3 {
		t.Errorf("note_count = %d, want 3", health.NoteCount)
	}
	if health.LastFullRebuild == nil {
		t.Error("last_full_rebuild not stamped")
	}
}
