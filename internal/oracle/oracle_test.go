package oracle

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/untoldecay/LoreVault/internal/audit"
	"github.com/untoldecay/LoreVault/internal/notes"
	"github.com/untoldecay/LoreVault/internal/storage/sqlite"
	"github.com/untoldecay/LoreVault/internal/tools"
	"github.com/untoldecay/LoreVault/internal/vault"
)

// scriptedProvider replays canned completions. When the script runs
// out it repeats the last reply.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []Completion
	calls   int
	block   bool
}

func (p *scriptedProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	p.calls++
	reply := p.replies[i]
	return &reply, nil
}

// streamingProvider feeds req.OnDelta piece by piece before returning
// the assembled completion, the way the production provider does.
type streamingProvider struct {
	mu      sync.Mutex
	replies [][]string
	calls   int
}

func (p *streamingProvider) Complete(_ context.Context, req CompletionRequest) (*Completion, error) {
	p.mu.Lock()
	i := p.calls
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	p.calls++
	deltas := p.replies[i]
	p.mu.Unlock()

	var full strings.Builder
	for _, d := range deltas {
		full.WriteString(d)
		if req.OnDelta != nil {
			req.OnDelta(d)
		}
	}
	return &Completion{Content: full.String(), StopReason: "stop", TokensUsed: 3}, nil
}

type fixture struct {
	service *Service
	store   *sqlite.Store
	notes   *notes.Service
}

func setupOracle(t *testing.T, provider Provider) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.New(context.Background(), filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	svc := notes.NewService(vault.NewStore(filepath.Join(dir, "vault")), store)
	registry, err := tools.BuildRegistry(tools.Deps{Notes: svc, Index: store})
	if err != nil {
		t.Fatalf("BuildRegistry failed: %v", err)
	}
	dispatcher := tools.NewDispatcher(registry)
	trail := audit.NewTrail(filepath.Join(dir, "state"))
	return &fixture{
		service: NewService(provider, dispatcher, store, trail, "test-model", 4000),
		store:   store,
		notes:   svc,
	}
}

func collect(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var out []Chunk
	deadline := time.After(10 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, chunk)
		case <-deadline:
			t.Fatalf("stream did not close; got %d chunks", len(out))
		}
	}
}

func chunkTypes(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Type
	}
	return out
}

func TestToolLoopStreamsAndRecordsExchange(t *testing.T) {
	provider := &scriptedProvider{replies: []Completion{
		{
			ToolCalls:  []ToolCall{{ID: "call_1", Name: "vault_search", Arguments: map[string]any{"query": "auth"}}},
			StopReason: "tool_use",
			TokensUsed: 10,
		},
		{Content: "See docs.md", StopReason: "stop", TokensUsed: 5},
	}}
	f := setupOracle(t, provider)
	ctx := context.Background()

	if _, err := f.notes.Write(ctx, "t1", "docs.md", "All about auth flows", nil, notes.WriteOptions{}); err != nil {
		t.Fatal(err)
	}

	chunks := collect(t, f.service.Query(ctx, "t1", QueryRequest{Question: "how does auth work?", Project: "proj"}))
	got := chunkTypes(chunks)
	want := []string{ChunkThinking, ChunkToolCall, ChunkToolResult, ChunkContent, ChunkSource, ChunkDone}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("stream = %v, want %v", got, want)
	}

	source := chunks[4]
	if source.Source == nil || source.Source.Path != "docs.md" || source.Source.SourceType != "vault" {
		t.Errorf("source chunk = %+v", source.Source)
	}
	done := chunks[5]
	if done.TokensUsed != 15 || done.ModelUsed != "test-model" {
		t.Errorf("done chunk = %+v", done)
	}

	rootID, err := f.store.GetActiveTreeID(ctx, "t1", "proj")
	if err != nil || rootID == "" {
		t.Fatalf("no active tree: %v", err)
	}
	tree, err := f.store.GetTree(ctx, "t1", rootID)
	if err != nil {
		t.Fatal(err)
	}
	if tree.NodeCount != 2 {
		t.Errorf("node_count = %d, want 2 (root + exchange)", tree.NodeCount)
	}
	head, err := f.store.GetNode(ctx, "t1", tree.CurrentNodeID)
	if err != nil {
		t.Fatal(err)
	}
	if head.Question != "how does auth work?" || head.Answer != "See docs.md" {
		t.Errorf("head node = %+v", head)
	}
	if len(head.ToolCalls) != 1 || head.ToolCalls[0].Name != "vault_search" || head.ToolCalls[0].Status != "ok" {
		t.Errorf("tool calls = %+v", head.ToolCalls)
	}
}

func TestXMLFallback(t *testing.T) {
	provider := &scriptedProvider{replies: []Completion{
		{
			Content: `Let me check.
<function_calls>
<invoke name="vault_list">
<parameter name="folder"></parameter>
</invoke>
</function_calls>`,
			StopReason: "stop",
		},
		{Content: "Nothing there.", StopReason: "stop"},
	}}
	f := setupOracle(t, provider)

	chunks := collect(t, f.service.Query(context.Background(), "t1", QueryRequest{Question: "what notes exist?"}))
	var sawCall bool
	for _, c := range chunks {
		if c.Type == ChunkToolCall {
			sawCall = true
			if c.Tool != "vault_list" || c.ToolCallID != "xml_call_0" {
				t.Errorf("tool_call chunk = %+v", c)
			}
		}
		if c.Type == ChunkContent && strings.Contains(c.Content, "<function_calls>") {
			t.Errorf("XML block leaked into content: %q", c.Content)
		}
	}
	if !sawCall {
		t.Error("XML fallback produced no tool call")
	}
	last := chunks[len(chunks)-1]
	if last.Type != ChunkDone {
		t.Errorf("terminal chunk = %+v", last)
	}
}

func TestContentStreamsIncrementally(t *testing.T) {
	provider := &streamingProvider{replies: [][]string{
		{"Les résumés ", "sont dans ", "[[docs]], voilà."},
	}}
	f := setupOracle(t, provider)

	chunks := collect(t, f.service.Query(context.Background(), "t1", QueryRequest{Question: "où?"}))
	var content []string
	for _, c := range chunks {
		if c.Type == ChunkContent {
			if !utf8.ValidString(c.Content) {
				t.Errorf("content chunk is not valid UTF-8: %q", c.Content)
			}
			content = append(content, c.Content)
		}
	}
	if len(content) < 2 {
		t.Fatalf("content arrived in %d chunk(s), want incremental delivery: %v", len(content), content)
	}
	if got := strings.Join(content, ""); got != "Les résumés sont dans [[docs]], voilà." {
		t.Errorf("assembled content = %q", got)
	}
}

func TestStreamedDeltasWithholdXMLBlocks(t *testing.T) {
	provider := &streamingProvider{replies: [][]string{
		{
			"Checking the vault.\n",
			"<function_",
			"calls>\n<invoke name=\"vault_list\">\n<parameter name=\"folder\"></parameter>\n</invoke>\n</function_calls>",
		},
		{"Nothing there."},
	}}
	f := setupOracle(t, provider)

	chunks := collect(t, f.service.Query(context.Background(), "t1", QueryRequest{Question: "what notes exist?"}))
	var sawCall bool
	var content []string
	for _, c := range chunks {
		switch c.Type {
		case ChunkToolCall:
			sawCall = true
		case ChunkContent:
			if strings.Contains(c.Content, "<function_calls") || strings.Contains(c.Content, "<invoke") {
				t.Errorf("fallback block leaked into content: %q", c.Content)
			}
			content = append(content, c.Content)
		}
	}
	if !sawCall {
		t.Error("fallback block produced no tool call")
	}
	joined := strings.Join(content, "")
	if !strings.Contains(joined, "Checking the vault.") || !strings.Contains(joined, "Nothing there.") {
		t.Errorf("assembled content = %q", joined)
	}
}

func TestMaxTurns(t *testing.T) {
	provider := &scriptedProvider{replies: []Completion{
		{
			ToolCalls:  []ToolCall{{ID: "loop", Name: "vault_list", Arguments: map[string]any{}}},
			StopReason: "tool_use",
		},
	}}
	f := setupOracle(t, provider)

	chunks := collect(t, f.service.Query(context.Background(), "t1", QueryRequest{Question: "loop forever"}))
	last := chunks[len(chunks)-1]
	if last.Type != ChunkError || last.Content != "Maximum conversation turns reached" {
		t.Errorf("terminal chunk = %+v", last)
	}
	if provider.calls != MaxTurns {
		t.Errorf("provider called %d times, want %d", provider.calls, MaxTurns)
	}
}

func TestCancellation(t *testing.T) {
	provider := &scriptedProvider{block: true}
	f := setupOracle(t, provider)
	ctx := context.Background()

	ch := f.service.Query(ctx, "t1", QueryRequest{Question: "slow", Project: "proj"})

	// Drain the thinking chunk, then cancel mid-provider-call.
	first := <-ch
	if first.Type != ChunkThinking {
		t.Fatalf("first chunk = %+v", first)
	}
	if !f.service.Cancel("t1") {
		t.Fatal("no session to cancel")
	}
	chunks := collect(t, ch)
	last := chunks[len(chunks)-1]
	if last.Type != ChunkError || last.Content != "cancelled" {
		t.Errorf("terminal chunk = %+v", last)
	}

	rootID, err := f.store.GetActiveTreeID(ctx, "t1", "proj")
	if err != nil {
		t.Fatal(err)
	}
	if rootID != "" {
		t.Error("cancelled query appended a conversation node")
	}
}

func TestParseXMLToolCalls(t *testing.T) {
	content := `Before.
<function_calls>
<invoke name="vault_search">
<parameter name="query">auth flow</parameter>
<parameter name="limit">5</parameter>
</invoke>
<invoke name="vault_read">
<parameter name="path">docs.md</parameter>
</invoke>
</function_calls>
After.`
	cleaned, calls := parseXMLToolCalls(content)
	if strings.Contains(cleaned, "invoke") {
		t.Errorf("cleaned content still has XML: %q", cleaned)
	}
	if !strings.Contains(cleaned, "Before.") || !strings.Contains(cleaned, "After.") {
		t.Errorf("surrounding text lost: %q", cleaned)
	}
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].ID != "xml_call_0" || calls[1].ID != "xml_call_1" {
		t.Errorf("ids = %s, %s", calls[0].ID, calls[1].ID)
	}
	if calls[0].Arguments["query"] != "auth flow" {
		t.Errorf("query = %v", calls[0].Arguments["query"])
	}
	if calls[0].Arguments["limit"] != 5 {
		t.Errorf("limit = %v (%T), want int 5", calls[0].Arguments["limit"], calls[0].Arguments["limit"])
	}
}

func TestClipRuneBoundary(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"héllo", 2, "h"},
		{"héllo", 3, "hé"},
		{"héllo", 10, "héllo"},
		{"日本語", 4, "日"},
		{"plain", 3, "pla"},
	}
	for _, tt := range tests {
		got := clip(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("clip(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("clip(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}

func TestCoerceParameter(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"false", false},
		{"42", 42},
		{"-7", -7},
		{"plain text", "plain text"},
		{`{"a":1}`, map[string]any{"a": float64(1)}},
		{`["x"]`, []any{"x"}},
		{"", ""},
	}
	for _, tt := range tests {
		got := coerceParameter(tt.in)
		switch want := tt.want.(type) {
		case map[string]any:
			m, ok := got.(map[string]any)
			if !ok || m["a"] != want["a"] {
				t.Errorf("coerce(%q) = %v", tt.in, got)
			}
		case []any:
			l, ok := got.([]any)
			if !ok || len(l) != 1 || l[0] != want[0] {
				t.Errorf("coerce(%q) = %v", tt.in, got)
			}
		default:
			if got != tt.want {
				t.Errorf("coerce(%q) = %v (%T), want %v", tt.in, got, got, tt.want)
			}
		}
	}
}
