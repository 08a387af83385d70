// Package librarian is the summarisation subagent. It condenses
// source documents into cached vault notes and keeps folder index
// notes up to date. Summaries are content-addressed so repeated tasks
// over unchanged sources hit the cache instead of the model.
package librarian

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/LoreVault/internal/logging"
	"github.com/untoldecay/LoreVault/internal/notes"
	"github.com/untoldecay/LoreVault/internal/oracle"
	"github.com/untoldecay/LoreVault/internal/types"
)

const (
	// DefaultMaxTokens is the summary budget when the caller does not
	// set one.
	DefaultMaxTokens = 1000

	// summaryTemperature keeps summaries close to the source text.
	summaryTemperature = 0.3

	// snippetLength caps the per-note snippet in folder indexes.
	snippetLength = 200

	// organiseConcurrency bounds parallel note reads while building a
	// folder index.
	organiseConcurrency = 8

	chunkBuffer = 16
)

const summarySystemPrompt = `You are the Librarian, a summarisation assistant for a knowledge vault. Condense the provided sources into a focused Markdown summary that serves the stated task. Preserve concrete facts, names and decisions; drop filler. Do not invent content that is not in the sources.`

// SummariseRequest parameterises one summarisation task.
type SummariseRequest struct {
	Task         string
	Content      []types.SourceDocument
	MaxTokens    int
	ForceRefresh bool
}

// Service is the librarian subagent.
type Service struct {
	provider oracle.Provider
	notes    *notes.Service
	model    string
	log      *logging.Logger
}

// NewService wires the librarian. model is the per-server default
// summarisation model.
func NewService(provider oracle.Provider, notesSvc *notes.Service, model string) *Service {
	return &Service{
		provider: provider,
		notes:    notesSvc,
		model:    model,
		log:      logging.Get(logging.CategoryLibrarian),
	}
}

// StreamSummarise runs a summarisation task, emitting thinking,
// summary or cache_hit, then done. Failures surface as an error chunk;
// the stream always closes.
func (s *Service) StreamSummarise(ctx context.Context, tenant string, req SummariseRequest) <-chan oracle.Chunk {
	ch := make(chan oracle.Chunk, chunkBuffer)
	go func() {
		defer close(ch)
		s.summarise(ctx, tenant, req, ch)
	}()
	return ch
}

func (s *Service) summarise(ctx context.Context, tenant string, req SummariseRequest, ch chan<- oracle.Chunk) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	send(ch, oracle.Chunk{Type: oracle.ChunkThinking, Content: "Summarising sources..."})

	key := cacheKey(req.Task, req.Content)
	notePath := cachePath(req.Task, req.Content, key, time.Now())

	if !req.ForceRefresh {
		if cached, err := s.notes.Read(ctx, tenant, notePath); err == nil && cached.Metadata["cache_key"] != nil {
			send(ch, oracle.Chunk{Type: oracle.ChunkCacheHit, Content: cached.Body, CachePath: notePath})
			send(ch, oracle.Chunk{Type: oracle.ChunkDone, FromCache: true, CachePath: notePath})
			return
		}
	}

	completion, err := s.provider.Complete(ctx, oracle.CompletionRequest{
		Model:       s.model,
		System:      summarySystemPrompt,
		Messages:    []oracle.ChatMessage{{Role: oracle.RoleUser, Content: summaryPrompt(req.Task, req.Content)}},
		MaxTokens:   maxTokens,
		Temperature: summaryTemperature,
	})
	if err != nil {
		s.log.Error("summarisation failed for %s: %v", tenant, err)
		send(ch, oracle.Chunk{Type: oracle.ChunkError, Content: err.Error()})
		return
	}
	summary := completion.Content
	send(ch, oracle.Chunk{Type: oracle.ChunkSummary, Content: summary})

	sources := make([]string, 0, len(req.Content))
	for _, doc := range req.Content {
		sources = append(sources, doc.Path)
	}
	tokenCount := len(summary) / 4
	_, err = s.notes.Write(ctx, tenant, notePath, summary, map[string]any{
		"sources":     sources,
		"token_count": tokenCount,
		"cache_key":   key,
		"task":        req.Task,
		"source_type": primaryType(req.Content),
	}, notes.WriteOptions{})
	if err != nil {
		s.log.Warn("failed to cache summary for %s at %s: %v", tenant, notePath, err)
		send(ch, oracle.Chunk{Type: oracle.ChunkError, Content: fmt.Sprintf("summary not cached: %v", err)})
		return
	}
	send(ch, oracle.Chunk{Type: oracle.ChunkDone, FromCache: false, CachePath: notePath, TokensUsed: tokenCount})
}

// Summarise is the synchronous surface used by the delegate_librarian
// tool: it drains the stream and returns the summary text.
func (s *Service) Summarise(ctx context.Context, tenant, task string, content []types.SourceDocument, maxTokens int) (string, error) {
	var summary strings.Builder
	for chunk := range s.StreamSummarise(ctx, tenant, SummariseRequest{Task: task, Content: content, MaxTokens: maxTokens}) {
		switch chunk.Type {
		case oracle.ChunkSummary, oracle.ChunkCacheHit:
			summary.WriteString(chunk.Content)
		case oracle.ChunkError:
			return "", fmt.Errorf("%s", chunk.Content)
		}
	}
	if summary.Len() == 0 {
		return "", fmt.Errorf("librarian produced no summary")
	}
	return summary.String(), nil
}

// Organise builds a folder index note: one wikilink bullet per note
// with a short snippet, written to <folder>/index.md.
func (s *Service) Organise(ctx context.Context, tenant, folder string) <-chan oracle.Chunk {
	ch := make(chan oracle.Chunk, chunkBuffer)
	go func() {
		defer close(ch)
		result, err := s.buildIndex(ctx, tenant, folder)
		if err != nil {
			send(ch, oracle.Chunk{Type: oracle.ChunkError, Content: err.Error()})
			return
		}
		send(ch, oracle.Chunk{Type: oracle.ChunkIndex, CachePath: result["path"].(string)})
		send(ch, oracle.Chunk{Type: oracle.ChunkDone, Extra: result})
	}()
	return ch
}

// CreateIndex is the synchronous surface used by the
// vault_create_index tool.
func (s *Service) CreateIndex(ctx context.Context, tenant, folder string) (map[string]any, error) {
	return s.buildIndex(ctx, tenant, folder)
}

type indexEntry struct {
	title   string
	snippet string
}

func (s *Service) buildIndex(ctx context.Context, tenant, folder string) (map[string]any, error) {
	summaries, err := s.notes.List(ctx, tenant, folder)
	if err != nil {
		return nil, err
	}
	indexPath := path.Join(folder, "index.md")

	var (
		entries []indexEntry
		g, gctx = errgroup.WithContext(ctx)
		results = make([]indexEntry, len(summaries))
		keep    = make([]bool, len(summaries))
	)
	g.SetLimit(organiseConcurrency)
	for i, summary := range summaries {
		if summary.Path == indexPath {
			continue
		}
		g.Go(func() error {
			note, err := s.notes.Read(gctx, tenant, summary.Path)
			if err != nil {
				return err
			}
			results[i] = indexEntry{title: note.Title, snippet: firstParagraph(note.Body)}
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i := range results {
		if keep[i] {
			entries = append(entries, results[i])
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].title < entries[j].title })

	title := folderTitle(folder)
	var body strings.Builder
	fmt.Fprintf(&body, "# %s\n\n", title)
	for _, e := range entries {
		if e.snippet != "" {
			fmt.Fprintf(&body, "- [[%s]]: %s\n", e.title, e.snippet)
		} else {
			fmt.Fprintf(&body, "- [[%s]]\n", e.title)
		}
	}

	if _, err := s.notes.Write(ctx, tenant, indexPath, body.String(), nil, notes.WriteOptions{}); err != nil {
		return nil, err
	}
	return map[string]any{
		"path":              indexPath,
		"files_organized":   len(entries),
		"wikilinks_created": len(entries),
	}, nil
}

// summaryPrompt renders the user message for a summarisation call.
func summaryPrompt(task string, docs []types.SourceDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)
	for _, doc := range docs {
		fmt.Fprintf(&b, "--- Source: %s", doc.Path)
		if doc.SourceType != "" {
			fmt.Fprintf(&b, " (%s)", doc.SourceType)
		}
		b.WriteString(" ---\n")
		b.WriteString(doc.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// firstParagraph returns the first non-heading paragraph of body,
// truncated to snippetLength.
func firstParagraph(body string) string {
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, "#") {
			continue
		}
		block = strings.Join(strings.Fields(block), " ")
		if len(block) > snippetLength {
			block = block[:snippetLength]
		}
		return block
	}
	return ""
}

// folderTitle capitalises the folder's leaf for the index heading.
func folderTitle(folder string) string {
	leaf := path.Base(folder)
	if leaf == "." || leaf == "/" || leaf == "" {
		return "Vault"
	}
	leaf = strings.ReplaceAll(leaf, "-", " ")
	leaf = strings.ReplaceAll(leaf, "_", " ")
	if leaf == "" {
		return "Vault"
	}
	return strings.ToUpper(leaf[:1]) + leaf[1:]
}

func send(ch chan<- oracle.Chunk, chunk oracle.Chunk) {
	ch <- chunk
}
