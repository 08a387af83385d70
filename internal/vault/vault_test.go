package vault

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/untoldecay/LoreVault/internal/types"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir())
	if err := s.Initialise("tenant-a"); err != nil {
		t.Fatalf("Initialise failed: %v", err)
	}
	return s
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple", "note.md", false},
		{"nested", "projects/alpha/design.md", false},
		{"empty", "", true},
		{"no extension", "note.txt", true},
		{"leading slash", "/note.md", true},
		{"dotdot", "../escape.md", true},
		{"dotdot middle", "a/../../b.md", true},
		{"backslash", `a\b.md`, true},
		{"angle bracket", "a<b.md", true},
		{"pipe", "a|b.md", true},
		{"question mark", "a?.md", true},
		{"empty segment", "a//b.md", true},
		{"too long", string(make([]byte, 300)) + ".md", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !types.IsKind(err, types.KindValidation) {
				t.Errorf("ValidatePath(%q) kind = %v, want validation_error", tt.path, types.KindOf(err))
			}
		})
	}
}

func TestFrontmatterRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]any
		body string
	}{
		{"no metadata", nil, "just a body\n"},
		{"simple metadata", map[string]any{"title": "Hello"}, "body text"},
		{"tags", map[string]any{"tags": []any{"go", "notes"}}, "tagged"},
		{"empty body", map[string]any{"title": "T"}, ""},
		{"body with dashes", nil, "---\nnot frontmatter mid-body\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := SerialiseFrontmatter(tt.meta, tt.body)
			if err != nil {
				t.Fatalf("SerialiseFrontmatter failed: %v", err)
			}
			gotMeta, gotBody, err := ParseFrontmatter(raw)
			if err != nil {
				t.Fatalf("ParseFrontmatter failed: %v", err)
			}
			if gotBody != tt.body {
				t.Errorf("body = %q, want %q", gotBody, tt.body)
			}
			if len(tt.meta) == 0 {
				if len(gotMeta) != 0 {
					t.Errorf("meta = %v, want empty", gotMeta)
				}
				return
			}
			if !reflect.DeepEqual(gotMeta, tt.meta) {
				t.Errorf("meta = %v, want %v", gotMeta, tt.meta)
			}
		})
	}
}

func TestParseFrontmatterRejectsReservedKey(t *testing.T) {
	raw := []byte("---\nversion: 3\n---\nbody")
	if _, _, err := ParseFrontmatter(raw); err == nil {
		t.Fatal("expected error for reserved version key")
	}
}

func TestParseFrontmatterUnterminatedIsBody(t *testing.T) {
	raw := []byte("---\ntitle: dangling\nno closing delimiter")
	meta, body, err := ParseFrontmatter(raw)
	if err != nil {
		t.Fatalf("ParseFrontmatter failed: %v", err)
	}
	if meta != nil {
		t.Errorf("meta = %v, want nil", meta)
	}
	if body != string(raw) {
		t.Errorf("body = %q, want full input", body)
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		path string
		meta map[string]any
		body string
		want string
	}{
		{"frontmatter wins", "a/b.md", map[string]any{"title": "Custom"}, "# Heading", "Custom"},
		{"h1 second", "a/b.md", nil, "intro\n# The Heading\nmore", "The Heading"},
		{"filename stem", "a/my-cool_note.md", nil, "no heading", "My Cool Note"},
		{"single letter stem", "a/b.md", nil, "", "B"},
		{"blank title ignored", "a/b.md", map[string]any{"title": "  "}, "", "B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.path, tt.meta, tt.body); got != tt.want {
				t.Errorf("DeriveTitle = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractWikilinks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"none", "plain text", nil},
		{"single", "see [[Guide]]", []string{"Guide"}},
		{"dedup first occurrence order", "[[B]] then [[A]] then [[B]]", []string{"B", "A"}},
		{"alias stripped", "[[Guide|the guide]]", []string{"Guide"}},
		{"heading stripped", "[[Guide#Setup]]", []string{"Guide"}},
		{"empty ignored", "[[  ]] and [[Real]]", []string{"Real"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractWikilinks(tt.body); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractWikilinks = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteRead(t *testing.T) {
	s := setupStore(t)
	note, err := s.Write("tenant-a", "a/b.md", "Hello", nil)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if note.Title != "B" {
		t.Errorf("title = %q, want B", note.Title)
	}
	got, err := s.Read("tenant-a", "a/b.md")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Body != "Hello" {
		t.Errorf("body = %q, want Hello", got.Body)
	}
	if got.Metadata["title"] != "B" {
		t.Errorf("stored title = %v, want B", got.Metadata["title"])
	}
	if got.Created.IsZero() || got.Updated.IsZero() {
		t.Error("timestamps not stamped")
	}
}

func TestWritePreservesCreated(t *testing.T) {
	s := setupStore(t)
	first, err := s.Write("tenant-a", "n.md", "one", nil)
	if err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	second, err := s.Write("tenant-a", "n.md", "two", nil)
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if !second.Created.Equal(first.Created) {
		t.Errorf("created changed on rewrite: %v != %v", second.Created, first.Created)
	}
}

func TestWriteRejectsOversizeBody(t *testing.T) {
	s := setupStore(t)
	big := make([]byte, types.MaxNoteBytes+1)
	_, err := s.Write("tenant-a", "big.md", string(big), nil)
	if !types.IsKind(err, types.KindPayloadTooLarge) {
		t.Fatalf("kind = %v, want payload_too_large", types.KindOf(err))
	}
}

func TestReadNotFound(t *testing.T) {
	s := setupStore(t)
	_, err := s.Read("tenant-a", "missing.md")
	if !types.IsKind(err, types.KindNotFound) {
		t.Fatalf("kind = %v, want not_found", types.KindOf(err))
	}
}

func TestDelete(t *testing.T) {
	s := setupStore(t)
	if _, err := s.Write("tenant-a", "x.md", "body", nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Delete("tenant-a", "x.md"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Read("tenant-a", "x.md"); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("read after delete kind = %v, want not_found", types.KindOf(err))
	}
	if err := s.Delete("tenant-a", "x.md"); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("second delete kind = %v, want not_found", types.KindOf(err))
	}
}

func TestMove(t *testing.T) {
	s := setupStore(t)
	if _, err := s.Write("tenant-a", "old.md", "content", nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	moved, err := s.Move("tenant-a", "old.md", "sub/new.md")
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if moved.Path != "sub/new.md" || moved.Body != "content" {
		t.Errorf("moved note = %+v", moved)
	}
	if _, err := s.Read("tenant-a", "old.md"); !types.IsKind(err, types.KindNotFound) {
		t.Error("source still readable after move")
	}
	if _, err := s.Write("tenant-a", "other.md", "x", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Move("tenant-a", "other.md", "sub/new.md"); !types.IsKind(err, types.KindVersionConflict) {
		t.Errorf("move onto existing kind = %v, want version_conflict", types.KindOf(err))
	}
}

func TestList(t *testing.T) {
	s := setupStore(t)
	for _, p := range []string{"b.md", "a/one.md", "a/Two.md"} {
		if _, err := s.Write("tenant-a", p, "body of "+p, nil); err != nil {
			t.Fatalf("Write %s failed: %v", p, err)
		}
	}
	all, err := s.List("tenant-a", "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	gotPaths := make([]string, len(all))
	for i, n := range all {
		gotPaths[i] = n.Path
	}
	want := []string{"a/one.md", "a/Two.md", "b.md"}
	if !reflect.DeepEqual(gotPaths, want) {
		t.Errorf("paths = %v, want %v", gotPaths, want)
	}

	sub, err := s.List("tenant-a", "a")
	if err != nil {
		t.Fatalf("List folder failed: %v", err)
	}
	if len(sub) != 2 {
		t.Errorf("folder list = %d entries, want 2", len(sub))
	}
}

func TestTenantIsolation(t *testing.T) {
	s := setupStore(t)
	if err := s.Initialise("tenant-b"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write("tenant-a", "secret.md", "a only", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Read("tenant-b", "secret.md"); !types.IsKind(err, types.KindNotFound) {
		t.Errorf("cross-tenant read kind = %v, want not_found", types.KindOf(err))
	}
}

func TestPathEscapeNeverTouchesFilesystem(t *testing.T) {
	base := t.TempDir()
	s := NewStore(base)
	if err := s.Initialise("t"); err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(base, "outside.md")
	if err := os.WriteFile(outside, []byte("secret"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Read("t", "../outside.md"); !types.IsKind(err, types.KindValidation) {
		t.Errorf("escape read kind = %v, want validation_error", types.KindOf(err))
	}
	if err := s.Delete("t", "../outside.md"); !types.IsKind(err, types.KindValidation) {
		t.Errorf("escape delete kind = %v, want validation_error", types.KindOf(err))
	}
	if _, err := os.Stat(outside); err != nil {
		t.Error("file outside tenant root was touched")
	}
}

func TestTags(t *testing.T) {
	meta := map[string]any{"tags": []any{" Go ", "notes", "go", "NOTES", "x"}}
	got := Tags(meta)
	want := []string{"go", "notes", "x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tags = %v, want %v", got, want)
	}
}
