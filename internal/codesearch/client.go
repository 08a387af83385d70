// Package codesearch is a thin HTTP client for the external code
// index service. The tool layer treats it as optional: when no URL is
// configured the wrapper tools answer "not available".
package codesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes caps how much of a code service reply we will read.
const maxResponseBytes = 4 << 20

// Client talks to one code index service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the service at baseURL. Returns nil for an
// empty URL so callers can wire the absence of the service directly.
func New(baseURL string) *Client {
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Call posts args to the service operation endpoint and returns the
// decoded JSON reply.
func (c *Client) Call(ctx context.Context, op string, args map[string]any) (any, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode code search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/"+op, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("code service unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("code service read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("code service returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("code service returned invalid JSON: %w", err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
