// Package webtools backs the web_search and web_fetch tools. Fetch is
// a plain HTTP GET with size and content-type guards; search requires
// an external provider and reports itself unavailable without one.
package webtools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// maxFetchBytes caps how much of a fetched page is returned to the
// model.
const maxFetchBytes = 512 << 10

// Client implements the web-facing tools.
type Client struct {
	http *http.Client
}

// New builds a web client. Returns nil when web tools are disabled.
func New(enabled bool) *Client {
	if !enabled {
		return nil
	}
	return &Client{http: &http.Client{Timeout: 60 * time.Second}}
}

// Search is not implemented without an external search provider.
func (c *Client) Search(ctx context.Context, query string) (any, error) {
	return nil, errors.New("web search provider not configured")
}

// Fetch retrieves a URL and returns its textual content, with HTML
// tags stripped for text/html responses.
func (c *Client) Fetch(ctx context.Context, rawURL string) (any, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL: %s", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "LoreVault/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch read failed: %w", err)
	}
	content := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		content = stripHTML(content)
	}
	return map[string]any{
		"url":     u.String(),
		"status":  resp.StatusCode,
		"content": content,
	}, nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`\n{3,}`)
)

// stripHTML reduces a page to its visible text. Crude, but the output
// feeds a model, not a browser.
func stripHTML(s string) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "\n")
	s = spaceRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
