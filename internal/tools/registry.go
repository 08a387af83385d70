// Package tools holds the static tool registry and the dispatcher the
// oracle and librarian call through. The embedded manifest is the
// single source of truth for schemas, scopes and timeouts; handlers
// are attached at wiring time.
package tools

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

//go:embed manifest.json
var manifestJSON []byte

// DefaultTimeout applies when the manifest does not override it.
const DefaultTimeout = 30 * time.Second

// Handler executes one tool call for a tenant. The returned value is
// serialised to JSON by the dispatcher; errors are serialised as
// {"error": message} and never propagate.
type Handler func(ctx context.Context, tenant string, args map[string]any) (any, error)

// manifestEntry is one tool definition as written in manifest.json.
type manifestEntry struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	AgentScope     []string        `json:"agent_scope"`
	TimeoutSeconds int             `json:"timeout_seconds"`
	Parameters     json.RawMessage `json:"parameters"`
}

// Tool is a registered tool: manifest definition plus handler.
type Tool struct {
	Name        string
	Description string
	AgentScope  []string
	Timeout     time.Duration
	Parameters  json.RawMessage
	Handler     Handler

	required []string
}

// InScope reports whether the tool is exposed to the given agent.
func (t *Tool) InScope(agent string) bool {
	for _, s := range t.AgentScope {
		if s == agent {
			return true
		}
	}
	return false
}

// Schema is the provider-facing description of a tool.
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Registry maps tool names to tools. Registration happens once at
// startup; lookups are concurrent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry loads the embedded manifest and attaches the given
// handlers by name. A manifest entry without a handler is an error, as
// is a handler without a manifest entry: the manifest and the code
// must agree.
func NewRegistry(handlers map[string]Handler) (*Registry, error) {
	var m struct {
		Tools []manifestEntry `json:"tools"`
	}
	if err := json.Unmarshal(manifestJSON, &m); err != nil {
		return nil, fmt.Errorf("failed to parse tools manifest: %w", err)
	}

	r := &Registry{tools: make(map[string]*Tool, len(m.Tools))}
	for _, e := range m.Tools {
		handler, ok := handlers[e.Name]
		if !ok {
			return nil, fmt.Errorf("tool %s declared in manifest but has no handler", e.Name)
		}
		timeout := DefaultTimeout
		if e.TimeoutSeconds > 0 {
			timeout = time.Duration(e.TimeoutSeconds) * time.Second
		}
		tool := &Tool{
			Name:        e.Name,
			Description: e.Description,
			AgentScope:  e.AgentScope,
			Timeout:     timeout,
			Parameters:  e.Parameters,
			Handler:     handler,
			required:    requiredParams(e.Parameters),
		}
		if _, dup := r.tools[tool.Name]; dup {
			return nil, fmt.Errorf("tool %s declared twice in manifest", tool.Name)
		}
		r.tools[tool.Name] = tool
	}
	for name := range handlers {
		if _, ok := r.tools[name]; !ok {
			return nil, fmt.Errorf("handler %s has no manifest entry", name)
		}
	}
	return r, nil
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SchemasFor returns the manifest subset visible to an agent, sorted
// by name so providers see a stable tool order.
func (r *Registry) SchemasFor(agent string) []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Schema
	for _, tool := range r.tools {
		if tool.InScope(agent) {
			out = append(out, Schema{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.Parameters,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func requiredParams(params json.RawMessage) []string {
	var p struct {
		Required []string `json:"required"`
	}
	_ = json.Unmarshal(params, &p)
	return p.Required
}
