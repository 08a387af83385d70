package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/untoldecay/LoreVault/internal/logging"
)

// Call is one tool invocation in a batch.
type Call struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"arguments"`
}

// Dispatcher executes tools with per-tool timeouts. It never returns
// an error: every failure mode is serialised into the result JSON so a
// model (or a batch sibling) always gets an answer.
type Dispatcher struct {
	registry *Registry
	log      *logging.Logger
}

// NewDispatcher wraps a registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry, log: logging.Get(logging.CategoryTools)}
}

// Registry exposes the underlying registry for schema lookups.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Execute runs one tool. A zero timeout uses the tool's manifest
// timeout.
func (d *Dispatcher) Execute(ctx context.Context, tenant, name string, args map[string]any, timeout time.Duration) json.RawMessage {
	tool := d.registry.Get(name)
	if tool == nil {
		return errResult(fmt.Sprintf("Unknown tool: %s", name))
	}
	for _, req := range tool.required {
		if _, ok := args[req]; !ok {
			return errResult(fmt.Sprintf("missing required argument: %s", req))
		}
	}
	if timeout <= 0 {
		timeout = tool.Timeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		value, err := tool.Handler(callCtx, tenant, args)
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return errResult("cancelled")
		}
		seconds := int(timeout / time.Second)
		d.log.Warn("tool %s timed out after %ds for tenant %s", name, seconds, tenant)
		out, _ := json.Marshal(map[string]any{
			"error":     fmt.Sprintf("%s timed out after %ds; consider narrower scope", name, seconds),
			"timed_out": true,
			"timeout":   seconds,
			"tool":      name,
		})
		return out
	case o := <-done:
		d.log.Debug("tool %s finished in %s (err=%v)", name, time.Since(start).Round(time.Millisecond), o.err)
		if o.err != nil {
			return errResult(o.err.Error())
		}
		out, err := json.Marshal(o.value)
		if err != nil {
			return errResult(fmt.Sprintf("unserialisable tool result: %v", err))
		}
		return out
	}
}

// ExecuteBatch runs all calls concurrently and returns results in
// input order. One call failing or timing out never cancels a
// sibling. A non-zero timeout overrides every tool's own timeout.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, tenant string, calls []Call, timeout time.Duration, includeIDs bool) []json.RawMessage {
	results := make([]json.RawMessage, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw := d.Execute(ctx, tenant, call.Name, call.Args, timeout)
			if includeIDs {
				wrapped, err := json.Marshal(map[string]any{
					"id":     call.ID,
					"tool":   call.Name,
					"result": json.RawMessage(raw),
				})
				if err == nil {
					raw = wrapped
				}
			}
			results[i] = raw
		}()
	}
	wg.Wait()
	return results
}

func errResult(msg string) json.RawMessage {
	out, _ := json.Marshal(map[string]string{"error": msg})
	return out
}
