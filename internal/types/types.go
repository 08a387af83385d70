// Package types defines the core data model shared across LoreVault:
// notes, tags, wikilinks, index health, conversation trees, and the
// error taxonomy surfaced by the HTTP API.
package types

import (
	"time"
)

// MaxNoteBytes is the maximum size of a serialised note body in bytes.
const MaxNoteBytes = 1 << 20 // 1 MiB

// MaxPathLength is the maximum length of a relative note path.
const MaxPathLength = 256

// MaxTenantLength is the maximum length of a tenant identifier.
const MaxTenantLength = 64

// Note is a Markdown file in a tenant's vault together with its
// derived metadata. Version is authoritative in the index, not in the
// file: frontmatter must never carry a "version" key.
type Note struct {
	Path      string         `json:"path"`
	Title     string         `json:"title"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Body      string         `json:"body"`
	Created   time.Time      `json:"created"`
	Updated   time.Time      `json:"updated"`
	SizeBytes int64          `json:"size_bytes"`
	Version   int64          `json:"version,omitempty"`
}

// NoteSummary is the listing form of a note (no body).
type NoteSummary struct {
	Path         string    `json:"path"`
	Title        string    `json:"title"`
	LastModified time.Time `json:"last_modified"`
}

// SearchResult is one ranked hit from the query engine.
type SearchResult struct {
	Path    string    `json:"path"`
	Title   string    `json:"title"`
	Snippet string    `json:"snippet"`
	Score   float64   `json:"score"`
	Updated time.Time `json:"updated"`
}

// Backlink identifies a note that links to a given target.
type Backlink struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

// TagCount is a normalised tag with the number of distinct notes
// carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Wikilink is one [[text]] occurrence extracted from a note body,
// deduplicated by link text in first-occurrence order.
type Wikilink struct {
	SourcePath string `json:"source_path"`
	LinkText   string `json:"link_text"`
	TargetPath string `json:"target_path,omitempty"`
	IsResolved bool   `json:"is_resolved"`
}

// GraphNode is a note viewed as a graph vertex. Group is the first
// path segment, or "root" for top-level notes.
type GraphNode struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Group string `json:"group"`
}

// GraphEdge is a resolved wikilink viewed as a directed edge.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the on-demand derived view over notes and resolved links.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// IndexHealth reports per-tenant index freshness counters.
type IndexHealth struct {
	Tenant                string     `json:"tenant"`
	NoteCount             int        `json:"note_count"`
	LastFullRebuild       *time.Time `json:"last_full_rebuild,omitempty"`
	LastIncrementalUpdate *time.Time `json:"last_incremental_update,omitempty"`
}

// SourceDocument is one input to the librarian: a piece of content
// with its origin path and kind ("vault", "code", "thread", "web").
type SourceDocument struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	SourceType string `json:"source_type,omitempty"`
}

// ToolInvocation records one tool call made during an oracle turn,
// kept with the conversation node for replay and display.
type ToolInvocation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Status    string `json:"status"` // "ok" | "error" | "timeout"
	Snippet   string `json:"snippet,omitempty"`
}

// ConversationNode is one turn in an oracle conversation tree.
type ConversationNode struct {
	ID           string           `json:"id"`
	RootID       string           `json:"root_id"`
	ParentID     string           `json:"parent_id,omitempty"`
	Tenant       string           `json:"tenant"`
	Project      string           `json:"project"`
	CreatedAt    time.Time        `json:"created_at"`
	Question     string           `json:"question"`
	Answer       string           `json:"answer"`
	ToolCalls    []ToolInvocation `json:"tool_calls,omitempty"`
	TokensUsed   int              `json:"tokens_used"`
	ModelUsed    string           `json:"model_used,omitempty"`
	Label        string           `json:"label,omitempty"`
	IsCheckpoint bool             `json:"is_checkpoint"`
	IsRoot       bool             `json:"is_root"`
}

// ConversationTree is the per-tenant+project tree of oracle turns with
// a movable HEAD pointer.
type ConversationTree struct {
	RootID        string    `json:"root_id"`
	Tenant        string    `json:"tenant"`
	Project       string    `json:"project"`
	CurrentNodeID string    `json:"current_node_id"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	NodeCount     int       `json:"node_count"`
	MaxNodes      int       `json:"max_nodes"`
	Label         string    `json:"label,omitempty"`
}

// DefaultMaxNodes is the pruning threshold for new conversation trees.
const DefaultMaxNodes = 30

// Thread is a lightweight append-only conversation log used by the
// thread_* tools (distinct from conversation trees, which belong to
// the oracle).
type Thread struct {
	ID           string    `json:"id"`
	Tenant       string    `json:"tenant"`
	Project      string    `json:"project"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	EntryCount   int       `json:"entry_count"`
}

// ThreadEntry is one turn in a thread, ordered by Seq.
type ThreadEntry struct {
	ThreadID  string    `json:"thread_id"`
	Seq       int       `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
