package librarian

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/LoreVault/internal/notes"
	"github.com/untoldecay/LoreVault/internal/oracle"
	"github.com/untoldecay/LoreVault/internal/storage/sqlite"
	"github.com/untoldecay/LoreVault/internal/types"
	"github.com/untoldecay/LoreVault/internal/vault"
)

type fixedProvider struct {
	reply string
	calls int
}

func (p *fixedProvider) Complete(ctx context.Context, req oracle.CompletionRequest) (*oracle.Completion, error) {
	p.calls++
	return &oracle.Completion{Content: p.reply, StopReason: "stop"}, nil
}

func setupLibrarian(t *testing.T, provider oracle.Provider) (*Service, *notes.Service) {
	t.Helper()
	dir := t.TempDir()
	idx, err := sqlite.New(context.Background(), filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	notesSvc := notes.NewService(vault.NewStore(filepath.Join(dir, "vault")), idx)
	return NewService(provider, notesSvc, "test-model"), notesSvc
}

func drain(ch <-chan oracle.Chunk) []oracle.Chunk {
	var out []oracle.Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestCacheKeyDeterministic(t *testing.T) {
	docs := []types.SourceDocument{
		{Path: "b.md", Content: "bravo"},
		{Path: "a.md", Content: "alpha"},
	}
	reversed := []types.SourceDocument{docs[1], docs[0]}

	k1 := cacheKey("explain", docs)
	k2 := cacheKey("explain", reversed)
	if k1 != k2 {
		t.Errorf("key depends on input order: %s vs %s", k1, k2)
	}
	if len(k1) != cacheKeyLength {
		t.Errorf("key length = %d, want %d", len(k1), cacheKeyLength)
	}
	if cacheKey("different task", docs) == k1 {
		t.Error("task not part of the key")
	}
	changed := []types.SourceDocument{{Path: "a.md", Content: "ALPHA"}, docs[0]}
	if cacheKey("explain", changed) == k1 {
		t.Error("content not part of the key")
	}
}

func TestCachePathShape(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	docs := []types.SourceDocument{{Path: "a.md", Content: "x", SourceType: "vault"}}
	got := cachePath("Explain the auth flow, please!", docs, "abcdef0123456789", now)

	if !strings.HasPrefix(got, "oracle-cache/summaries/vault/2026-03-14/") {
		t.Errorf("path = %q", got)
	}
	if !strings.HasSuffix(got, "-abcdef0123456789.md") {
		t.Errorf("path = %q", got)
	}
	leaf := got[strings.LastIndex(got, "/")+1:]
	slug := strings.TrimSuffix(leaf, "-abcdef0123456789.md")
	if len(slug) > 30 {
		t.Errorf("task slug too long: %q", slug)
	}
	if strings.ContainsAny(slug, " ,!") {
		t.Errorf("slug not sanitised: %q", slug)
	}
}

func TestPrimaryType(t *testing.T) {
	tests := []struct {
		name string
		docs []types.SourceDocument
		want string
	}{
		{"empty", nil, "mixed"},
		{"single", []types.SourceDocument{{SourceType: "code"}}, "code"},
		{"majority", []types.SourceDocument{{SourceType: "code"}, {SourceType: "code"}, {SourceType: "vault"}}, "code"},
		{"tie", []types.SourceDocument{{SourceType: "code"}, {SourceType: "vault"}}, "mixed"},
		{"untyped is vault", []types.SourceDocument{{}, {}}, "vault"},
	}
	for _, tt := range tests {
		if got := primaryType(tt.docs); got != tt.want {
			t.Errorf("%s: primaryType = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSummariseWritesCacheThenHits(t *testing.T) {
	provider := &fixedProvider{reply: "A concise summary."}
	svc, notesSvc := setupLibrarian(t, provider)
	ctx := context.Background()
	req := SummariseRequest{
		Task:    "explain auth",
		Content: []types.SourceDocument{{Path: "docs/auth.md", Content: "long auth doc", SourceType: "vault"}},
	}

	chunks := drain(svc.StreamSummarise(ctx, "t1", req))
	last := chunks[len(chunks)-1]
	if last.Type != oracle.ChunkDone || last.FromCache {
		t.Fatalf("terminal chunk = %+v", last)
	}
	if last.CachePath == "" {
		t.Fatal("done chunk missing cache path")
	}

	cached, err := notesSvc.Read(ctx, "t1", last.CachePath)
	if err != nil {
		t.Fatalf("cache note unreadable: %v", err)
	}
	if cached.Body != "A concise summary." {
		t.Errorf("cached body = %q", cached.Body)
	}
	if cached.Metadata["cache_key"] == nil || cached.Metadata["task"] != "explain auth" {
		t.Errorf("cache metadata = %v", cached.Metadata)
	}

	// Second run must hit the cache, not the model.
	chunks = drain(svc.StreamSummarise(ctx, "t1", req))
	var sawHit bool
	for _, c := range chunks {
		if c.Type == oracle.ChunkCacheHit {
			sawHit = true
		}
		if c.Type == oracle.ChunkSummary {
			t.Error("cache miss on identical request")
		}
	}
	if !sawHit {
		t.Error("no cache_hit chunk")
	}
	if provider.calls != 1 {
		t.Errorf("model called %d times, want 1", provider.calls)
	}

	// force_refresh bypasses the cache.
	req.ForceRefresh = true
	drain(svc.StreamSummarise(ctx, "t1", req))
	if provider.calls != 2 {
		t.Errorf("force_refresh did not call the model (calls = %d)", provider.calls)
	}
}

func TestSummariseSync(t *testing.T) {
	svc, _ := setupLibrarian(t, &fixedProvider{reply: "Summary text."})
	got, err := svc.Summarise(context.Background(), "t1", "task",
		[]types.SourceDocument{{Path: "a.md", Content: "body"}}, 0)
	if err != nil {
		t.Fatalf("Summarise failed: %v", err)
	}
	if got != "Summary text." {
		t.Errorf("summary = %q", got)
	}
}

func TestCreateIndex(t *testing.T) {
	svc, notesSvc := setupLibrarian(t, &fixedProvider{})
	ctx := context.Background()

	seed := map[string]string{
		"guides/alpha.md": "# Alpha\n\nFirst paragraph about alpha.\n\nMore text.",
		"guides/beta.md":  "Beta has no heading but a body.",
	}
	for p, body := range seed {
		if _, err := notesSvc.Write(ctx, "t1", p, body, nil, notes.WriteOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	result, err := svc.CreateIndex(ctx, "t1", "guides")
	if err != nil {
		t.Fatalf("CreateIndex failed: %v", err)
	}
	if result["files_organized"] != 2 {
		t.Errorf("files_organized = %v, want 2", result["files_organized"])
	}

	index, err := notesSvc.Read(ctx, "t1", "guides/index.md")
	if err != nil {
		t.Fatalf("index note unreadable: %v", err)
	}
	if !strings.HasPrefix(index.Body, "# Guides") {
		t.Errorf("index heading: %q", index.Body)
	}
	if !strings.Contains(index.Body, "[[Alpha]]: First paragraph about alpha.") {
		t.Errorf("alpha bullet missing: %q", index.Body)
	}
	if !strings.Contains(index.Body, "[[Beta]]") {
		t.Errorf("beta bullet missing: %q", index.Body)
	}

	// Re-running excludes the index note itself.
	result, err = svc.CreateIndex(ctx, "t1", "guides")
	if err != nil {
		t.Fatal(err)
	}
	if result["files_organized"] != 2 {
		t.Errorf("rerun files_organized = %v, want 2", result["files_organized"])
	}
}

func TestFirstParagraph(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"# Heading\n\nBody text here.", "Body text here."},
		{"Plain body.", "Plain body."},
		{"", ""},
		{"# Only heading", ""},
		{"line one\nline two\n\nnext", "line one line two"},
	}
	for _, tt := range tests {
		if got := firstParagraph(tt.in); got != tt.want {
			t.Errorf("firstParagraph(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
