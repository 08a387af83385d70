package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/LoreVault/internal/notes"
	"github.com/untoldecay/LoreVault/internal/storage/sqlite"
	"github.com/untoldecay/LoreVault/internal/vault"
)

func setupDispatcher(t *testing.T) (*Dispatcher, *notes.Service) {
	t.Helper()
	dir := t.TempDir()
	idx, err := sqlite.New(context.Background(), filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	svc := notes.NewService(vault.NewStore(filepath.Join(dir, "vault")), idx)
	registry, err := BuildRegistry(Deps{Notes: svc, Index: idx})
	if err != nil {
		t.Fatalf("BuildRegistry failed: %v", err)
	}
	return NewDispatcher(registry), svc
}

func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("result is not a JSON object: %s", raw)
	}
	return m
}

func TestManifestCoversAllHandlers(t *testing.T) {
	d, _ := setupDispatcher(t)
	names := d.Registry().Names()
	if len(names) != 17 {
		t.Errorf("registered %d tools: %v", len(names), names)
	}
	oracle := d.Registry().SchemasFor("oracle")
	librarian := d.Registry().SchemasFor("librarian")
	if len(oracle) == 0 || len(librarian) == 0 {
		t.Fatal("agent scopes empty")
	}
	for _, s := range librarian {
		if s.Name == "delegate_librarian" {
			t.Error("librarian can delegate to itself")
		}
	}
	for _, s := range oracle {
		if s.Name == "vault_move" {
			t.Error("vault_move exposed to the oracle")
		}
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	d, _ := setupDispatcher(t)
	m := decode(t, d.Execute(context.Background(), "t1", "nope", nil, 0))
	if m["error"] != "Unknown tool: nope" {
		t.Errorf("error = %v", m["error"])
	}
}

func TestExecuteMissingArg(t *testing.T) {
	d, _ := setupDispatcher(t)
	m := decode(t, d.Execute(context.Background(), "t1", "vault_read", map[string]any{}, 0))
	if msg, _ := m["error"].(string); !strings.Contains(msg, "path") {
		t.Errorf("error = %v, want missing path", m["error"])
	}
}

func TestVaultWriteReadViaTools(t *testing.T) {
	d, _ := setupDispatcher(t)
	ctx := context.Background()

	m := decode(t, d.Execute(ctx, "t1", "vault_write", map[string]any{
		"path":    "docs/a.md",
		"content": "Hello",
	}, 0))
	if m["error"] != nil {
		t.Fatalf("vault_write error: %v", m["error"])
	}
	if m["version"] != float64(1) {
		t.Errorf("version = %v, want 1", m["version"])
	}

	m = decode(t, d.Execute(ctx, "t1", "vault_read", map[string]any{"path": "docs/a.md"}, 0))
	if m["content"] != "Hello" {
		t.Errorf("content = %v", m["content"])
	}
}

func TestUnavailableCollaborators(t *testing.T) {
	d, _ := setupDispatcher(t)
	ctx := context.Background()
	for _, call := range []Call{
		{Name: "search_code", Args: map[string]any{"query": "x"}},
		{Name: "web_fetch", Args: map[string]any{"url": "https://example.com"}},
		{Name: "delegate_librarian", Args: map[string]any{"task": "t", "content": []any{}}},
	} {
		m := decode(t, d.Execute(ctx, "t1", call.Name, call.Args, 0))
		if m["error"] != "not available" {
			t.Errorf("%s: error = %v, want not available", call.Name, m["error"])
		}
	}
}

func TestBatchOrderAndFailureIsolation(t *testing.T) {
	d, svc := setupDispatcher(t)
	ctx := context.Background()

	if _, err := svc.Write(ctx, "t1", "x.md", "queryable body", nil, notes.WriteOptions{}); err != nil {
		t.Fatal(err)
	}

	results := d.ExecuteBatch(ctx, "t1", []Call{
		{Name: "vault_read", Args: map[string]any{"path": "x.md"}},
		{Name: "vault_read", Args: map[string]any{"path": "missing.md"}},
		{Name: "vault_search", Args: map[string]any{"query": "queryable"}},
	}, 0, false)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if m := decode(t, results[0]); m["path"] != "x.md" {
		t.Errorf("result[0] = %v", m)
	}
	if m := decode(t, results[1]); m["error"] != "File not found" {
		t.Errorf("result[1] error = %v, want File not found", m["error"])
	}
	if m := decode(t, results[2]); m["count"] != float64(1) {
		t.Errorf("result[2] = %v", m)
	}
}

func TestBatchIncludeIDs(t *testing.T) {
	d, _ := setupDispatcher(t)
	results := d.ExecuteBatch(context.Background(), "t1", []Call{
		{ID: "call_1", Name: "vault_list", Args: map[string]any{}},
	}, 0, true)
	m := decode(t, results[0])
	if m["id"] != "call_1" || m["tool"] != "vault_list" {
		t.Errorf("wrapped result = %v", m)
	}
}

func TestTimeoutShapeAndIsolation(t *testing.T) {
	registry, err := NewRegistry(testHandlers(map[string]Handler{
		"web_search": func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			select {
			case <-time.After(10 * time.Second):
				return "late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		"vault_list": func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			return map[string]any{"notes": []any{}, "count": 0}, nil
		},
	}))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	d := NewDispatcher(registry)

	results := d.ExecuteBatch(context.Background(), "t1", []Call{
		{Name: "web_search", Args: map[string]any{"query": "x"}},
		{Name: "vault_list", Args: map[string]any{}},
	}, time.Second, false)

	m := decode(t, results[0])
	if m["timed_out"] != true || m["tool"] != "web_search" || m["timeout"] != float64(1) {
		t.Errorf("timeout result = %v", m)
	}
	if msg, _ := m["error"].(string); !strings.Contains(msg, "web_search timed out after 1s") {
		t.Errorf("timeout message = %q", msg)
	}
	if m := decode(t, results[1]); m["count"] != float64(0) {
		t.Errorf("sibling affected by timeout: %v", m)
	}
}

func TestHandlerPanicIsSerialised(t *testing.T) {
	registry, err := NewRegistry(testHandlers(map[string]Handler{
		"vault_list": func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			panic("boom")
		},
	}))
	if err != nil {
		t.Fatal(err)
	}
	d := NewDispatcher(registry)
	m := decode(t, d.Execute(context.Background(), "t1", "vault_list", map[string]any{}, 0))
	if msg, _ := m["error"].(string); !strings.Contains(msg, "boom") {
		t.Errorf("error = %v", m["error"])
	}
}

// testHandlers fills every manifest entry with a no-op handler, then
// applies the overrides, so partial registries satisfy the
// manifest/handler agreement check.
func testHandlers(overrides map[string]Handler) map[string]Handler {
	noop := func(ctx context.Context, tenant string, args map[string]any) (any, error) {
		return map[string]any{}, nil
	}
	all := map[string]Handler{}
	for _, name := range []string{
		"vault_read", "vault_write", "vault_list", "vault_search", "vault_move",
		"vault_create_index", "thread_push", "thread_read", "thread_seek",
		"thread_list", "search_code", "find_definition", "find_references",
		"get_repo_map", "web_search", "web_fetch", "delegate_librarian",
	} {
		all[name] = noop
	}
	for name, h := range overrides {
		all[name] = h
	}
	return all
}
