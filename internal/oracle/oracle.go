// Package oracle runs the tool-calling agent loop over the vault. A
// query streams chunks to the caller while the loop alternates between
// model round-trips and tool batches, then records the finished
// exchange in the tenant's conversation tree.
package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/untoldecay/LoreVault/internal/audit"
	"github.com/untoldecay/LoreVault/internal/logging"
	"github.com/untoldecay/LoreVault/internal/storage"
	"github.com/untoldecay/LoreVault/internal/tools"
	"github.com/untoldecay/LoreVault/internal/types"
)

const (
	// MaxTurns bounds the number of model round-trips per query.
	MaxTurns = 15

	// chunkBuffer is the stream channel capacity. A slow SSE consumer
	// backpressures the loop rather than growing memory.
	chunkBuffer = 64

	// maxResultDisplay truncates tool results in tool_result chunks.
	maxResultDisplay = 1000

	// contextExchanges is how many prior tree exchanges are replayed
	// into a new query's messages.
	contextExchanges = 5

	// DefaultMaxTokens applies when the caller does not set a budget.
	DefaultMaxTokens = 4000
)

var systemPromptTemplate = template.Must(template.New("oracle").Parse(
	`You are the Oracle, the research agent for the "{{.Tenant}}" knowledge vault{{if .Project}} working on project "{{.Project}}"{{end}}.

Answer questions by consulting the vault and the connected services through your tools. Search before you answer; read the notes your searches surface; cite what you used. If the vault does not contain the answer, say so instead of guessing.

Keep answers in Markdown. Use [[wikilinks]] when referring to vault notes.`))

// QueryRequest parameterises one oracle query.
type QueryRequest struct {
	Question  string
	Project   string
	Model     string
	MaxTokens int
}

// Service is the oracle agent.
type Service struct {
	provider   Provider
	dispatcher *tools.Dispatcher
	store      storage.Store
	trail      *audit.Trail
	sessions   *Sessions
	model      string
	maxTokens  int
	log        *logging.Logger
}

// NewService wires the oracle. model and maxTokens are the per-server
// defaults; each query may override them.
func NewService(provider Provider, dispatcher *tools.Dispatcher, store storage.Store, trail *audit.Trail, model string, maxTokens int) *Service {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Service{
		provider:   provider,
		dispatcher: dispatcher,
		store:      store,
		trail:      trail,
		sessions:   NewSessions(),
		model:      model,
		maxTokens:  maxTokens,
		log:        logging.Get(logging.CategoryOracle),
	}
}

// Cancel signals the tenant's running query, if any.
func (s *Service) Cancel(tenant string) bool {
	return s.sessions.Cancel(tenant)
}

// Query starts the agent loop and returns its chunk stream. The
// stream always ends with a done or error chunk, then closes.
func (s *Service) Query(ctx context.Context, tenant string, req QueryRequest) <-chan Chunk {
	ch := make(chan Chunk, chunkBuffer)
	queryCtx, release := s.sessions.Begin(ctx, tenant)
	go func() {
		defer close(ch)
		defer release()
		s.run(queryCtx, tenant, req, ch)
	}()
	return ch
}

func (s *Service) run(ctx context.Context, tenant string, req QueryRequest, ch chan<- Chunk) {
	model := req.Model
	if model == "" {
		model = s.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}

	var system strings.Builder
	_ = systemPromptTemplate.Execute(&system, map[string]string{
		"Tenant":  tenant,
		"Project": req.Project,
	})

	messages := s.contextMessages(ctx, tenant, req.Project)
	messages = append(messages, ChatMessage{Role: RoleUser, Content: req.Question})
	schemas := s.toolSchemas()

	if !emit(ctx, ch, Chunk{Type: ChunkThinking, Content: "Consulting the vault..."}) {
		return
	}

	var (
		answer      strings.Builder
		citations   []Citation
		invocations []types.ToolInvocation
		tokensUsed  int
	)

	for turn := 0; turn < MaxTurns; turn++ {
		streamer := &deltaStreamer{ctx: ctx, ch: ch}
		completion, err := s.provider.Complete(ctx, CompletionRequest{
			Model:     model,
			System:    system.String(),
			Messages:  messages,
			Tools:     schemas,
			MaxTokens: maxTokens,
			OnDelta:   streamer.push,
		})
		if err != nil {
			if ctx.Err() != nil {
				emitFinal(ch, Chunk{Type: ChunkError, Content: "cancelled"})
				return
			}
			s.log.Error("provider call failed for %s: %v", tenant, err)
			s.auditQuery(tenant, req, model, tokensUsed, err)
			emitFinal(ch, Chunk{Type: ChunkError, Content: err.Error()})
			return
		}
		tokensUsed += completion.TokensUsed

		content := completion.Content
		calls := completion.ToolCalls
		if len(calls) == 0 {
			content, calls = parseXMLToolCalls(content)
		}
		answer.WriteString(content)
		if !streamer.finish(content) {
			return
		}

		if len(calls) == 0 {
			for i := range citations {
				if !emit(ctx, ch, Chunk{Type: ChunkSource, Source: &citations[i]}) {
					return
				}
			}
			s.appendExchange(ctx, tenant, req, answer.String(), invocations, tokensUsed, model)
			s.auditQuery(tenant, req, model, tokensUsed, nil)
			emit(ctx, ch, Chunk{Type: ChunkDone, TokensUsed: tokensUsed, ModelUsed: model})
			return
		}

		batch := make([]tools.Call, len(calls))
		for i, call := range calls {
			batch[i] = tools.Call{ID: call.ID, Name: call.Name, Args: call.Arguments}
			if !emit(ctx, ch, Chunk{Type: ChunkToolCall, Tool: call.Name, ToolCallID: call.ID, Arguments: call.Arguments}) {
				return
			}
		}
		results := s.dispatcher.ExecuteBatch(ctx, tenant, batch, 0, false)
		if ctx.Err() != nil {
			emitFinal(ch, Chunk{Type: ChunkError, Content: "cancelled"})
			return
		}

		messages = append(messages, ChatMessage{Role: RoleAssistant, Content: content, ToolCalls: calls})
		for i, result := range results {
			call := calls[i]
			if !emit(ctx, ch, Chunk{
				Type:       ChunkToolResult,
				Tool:       call.Name,
				ToolCallID: call.ID,
				Result:     clip(string(result), maxResultDisplay),
			}) {
				return
			}
			citations = append(citations, extractCitations(call.Name, result)...)
			invocations = append(invocations, invocationRecord(call, result))
			messages = append(messages, ChatMessage{Role: RoleTool, ToolCallID: call.ID, Content: string(result)})
		}
	}

	s.auditQuery(tenant, req, model, tokensUsed, fmt.Errorf("maximum conversation turns reached"))
	emit(ctx, ch, Chunk{Type: ChunkError, Content: "Maximum conversation turns reached"})
}

// contextMessages replays the tail of the active conversation tree so
// the model sees recent exchanges.
func (s *Service) contextMessages(ctx context.Context, tenant, project string) []ChatMessage {
	rootID, err := s.store.GetActiveTreeID(ctx, tenant, project)
	if err != nil || rootID == "" {
		return nil
	}
	path, err := s.store.PathToHead(ctx, tenant, rootID)
	if err != nil {
		return nil
	}
	if len(path) > contextExchanges {
		path = path[len(path)-contextExchanges:]
	}
	var out []ChatMessage
	for _, nodeID := range path {
		node, err := s.store.GetNode(ctx, tenant, nodeID)
		if err != nil || node.IsRoot || node.Question == "" {
			continue
		}
		out = append(out,
			ChatMessage{Role: RoleUser, Content: node.Question},
			ChatMessage{Role: RoleAssistant, Content: node.Answer},
		)
	}
	return out
}

// appendExchange records the finished turn as a new tree node and
// prunes the tree past its budget. A cancelled turn never reaches
// this.
func (s *Service) appendExchange(ctx context.Context, tenant string, req QueryRequest, answer string, invocations []types.ToolInvocation, tokensUsed int, model string) {
	rootID, err := s.store.GetActiveTreeID(ctx, tenant, req.Project)
	if err != nil {
		s.log.Error("failed to find active tree for %s: %v", tenant, err)
		return
	}
	if rootID == "" {
		tree, err := s.store.CreateTree(ctx, tenant, req.Project, "", types.DefaultMaxNodes)
		if err != nil {
			s.log.Error("failed to create conversation tree for %s: %v", tenant, err)
			return
		}
		rootID = tree.RootID
	}
	_, err = s.store.CreateNode(ctx, tenant, &types.ConversationNode{
		RootID:     rootID,
		Project:    req.Project,
		Question:   req.Question,
		Answer:     answer,
		ToolCalls:  invocations,
		TokensUsed: tokensUsed,
		ModelUsed:  model,
	})
	if err != nil {
		s.log.Error("failed to append conversation node for %s: %v", tenant, err)
		return
	}
	tree, err := s.store.GetTree(ctx, tenant, rootID)
	if err != nil {
		return
	}
	if tree.NodeCount > tree.MaxNodes {
		if removed, remaining, err := s.store.PruneTree(ctx, tenant, rootID); err == nil {
			s.log.Info("pruned tree %s for %s: removed %d, remaining %d", rootID, tenant, removed, remaining)
		}
	}
}

func (s *Service) toolSchemas() []ToolSchema {
	registered := s.dispatcher.Registry().SchemasFor("oracle")
	out := make([]ToolSchema, len(registered))
	for i, schema := range registered {
		out[i] = ToolSchema{
			Name:        schema.Name,
			Description: schema.Description,
			InputSchema: []byte(schema.InputSchema),
		}
	}
	return out
}

func (s *Service) auditQuery(tenant string, req QueryRequest, model string, tokensUsed int, callErr error) {
	if s.trail == nil {
		return
	}
	hash := sha256.Sum256([]byte(req.Question))
	entry := &audit.Entry{
		Kind:       "oracle_query",
		Tenant:     tenant,
		Project:    req.Project,
		Model:      model,
		PromptHash: hex.EncodeToString(hash[:8]),
		TokensUsed: tokensUsed,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	if _, err := s.trail.Append(entry); err != nil {
		s.log.Warn("audit append failed: %v", err)
	}
}

// invocationRecord condenses a tool result into the form stored on
// the conversation node.
func invocationRecord(call ToolCall, result json.RawMessage) types.ToolInvocation {
	args, _ := json.Marshal(call.Arguments)
	status := "ok"
	var parsed struct {
		Error    string `json:"error"`
		TimedOut bool   `json:"timed_out"`
	}
	if err := json.Unmarshal(result, &parsed); err == nil {
		if parsed.TimedOut {
			status = "timeout"
		} else if parsed.Error != "" {
			status = "error"
		}
	}
	return types.ToolInvocation{
		ID:        call.ID,
		Name:      call.Name,
		Arguments: string(args),
		Status:    status,
		Snippet:   clip(string(result), 200),
	}
}

const xmlBlockOpen = "<function_calls>"

// deltaStreamer forwards provider text deltas as content chunks. It
// withholds anything that could open an XML fallback block so the
// consumer never sees a partial tool call, and it only cuts on rune
// boundaries so every chunk is valid UTF-8.
type deltaStreamer struct {
	ctx     context.Context
	ch      chan<- Chunk
	sent    strings.Builder
	pending string
	blocked bool
	failed  bool
}

func (d *deltaStreamer) push(text string) {
	if d.blocked || d.failed {
		return
	}
	d.pending += text
	if i := strings.Index(d.pending, xmlBlockOpen); i >= 0 {
		d.forward(d.pending[:i])
		d.pending = ""
		d.blocked = true
		return
	}
	// Keep a tail that could still turn into the open tag.
	cut := len(d.pending) - (len(xmlBlockOpen) - 1)
	for cut > 0 && !utf8.RuneStart(d.pending[cut]) {
		cut--
	}
	if cut > 0 {
		d.forward(d.pending[:cut])
		d.pending = d.pending[cut:]
	}
}

// finish emits whatever part of the turn's final content was not
// streamed. content arrives with fallback blocks already stripped, so
// the streamed text is normally a prefix of it; when stripping moved
// the text out from under the streamed prefix, the remainder is
// dropped rather than repeated.
func (d *deltaStreamer) finish(content string) bool {
	if d.failed {
		return false
	}
	rest := content
	if streamed := d.sent.String(); streamed != "" {
		if !strings.HasPrefix(content, streamed) {
			return true
		}
		rest = content[len(streamed):]
	}
	d.forward(rest)
	return !d.failed
}

func (d *deltaStreamer) forward(text string) {
	if text == "" || d.failed {
		return
	}
	if !emit(d.ctx, d.ch, Chunk{Type: ChunkContent, Content: text}) {
		d.failed = true
		return
	}
	d.sent.WriteString(text)
}

// emit sends a chunk unless the context is done. Reports whether the
// send happened.
func emit(ctx context.Context, ch chan<- Chunk, chunk Chunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitFinal best-effort sends a terminal chunk after cancellation or
// failure. The channel is buffered, so this only drops the chunk when
// the consumer has already abandoned a full stream.
func emitFinal(ch chan<- Chunk, chunk Chunk) {
	select {
	case ch <- chunk:
	default:
	}
}
