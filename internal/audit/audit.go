// Package audit maintains an append-only JSONL trail of LLM
// interactions under the server state dir. Entries are never mutated;
// labelling happens by appending follow-up entries that reference a
// parent id.
package audit

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// FileName is the audit log file name stored under the state dir.
	FileName = "interactions.jsonl"
	idPrefix = "int-"
)

// Entry is a generic append-only audit event. Use Kind + typed fields
// for common cases, and Extra for everything else.
type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`

	// Common metadata
	Tenant  string `json:"tenant,omitempty"`
	Project string `json:"project,omitempty"`

	// LLM call
	Model      string `json:"model,omitempty"`
	PromptHash string `json:"prompt_hash,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
	Error      string `json:"error,omitempty"`

	// Tool call
	ToolName string `json:"tool_name,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`

	// Labeling (append-only)
	ParentID string `json:"parent_id,omitempty"`
	Label    string `json:"label,omitempty"`
	Reason   string `json:"reason,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Trail appends entries to <dir>/interactions.jsonl.
type Trail struct {
	dir string
}

// NewTrail creates a trail rooted at the given state dir.
func NewTrail(dir string) *Trail {
	return &Trail{dir: dir}
}

// Path returns the trail's file path.
func (t *Trail) Path() string {
	return filepath.Join(t.dir, FileName)
}

// Append appends an event as a single JSON line and returns its id.
// Callers must not mutate existing lines.
func (t *Trail) Append(e *Entry) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil entry")
	}
	if e.Kind == "" {
		return "", fmt.Errorf("kind is required")
	}
	if err := os.MkdirAll(t.dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create audit directory: %w", err)
	}

	var err error
	if e.ID == "" {
		e.ID, err = newID()
		if err != nil {
			return "", err
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	} else {
		e.CreatedAt = e.CreatedAt.UTC()
	}

	f, err := os.OpenFile(t.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644) // nolint:gosec // intended permissions
	if err != nil {
		return "", fmt.Errorf("failed to open interactions log: %w", err)
	}
	defer func() { _ = f.Close() }()

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return "", fmt.Errorf("failed to write interactions log entry: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush interactions log: %w", err)
	}
	return e.ID, nil
}

func newID() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return idPrefix + hex.EncodeToString(b[:]), nil
}
