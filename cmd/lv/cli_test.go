package main

import (
	"strings"
	"testing"
	"time"
)

func TestParseNaturalTime(t *testing.T) {
	got, err := parseNaturalTime("2026-03-01")
	if err != nil {
		t.Fatalf("plain date failed: %v", err)
	}
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parsed %v, want %v", got, want)
	}

	got, err = parseNaturalTime("yesterday")
	if err != nil {
		t.Fatalf("natural language failed: %v", err)
	}
	if time.Since(got) > 48*time.Hour || time.Since(got) < 0 {
		t.Errorf("yesterday parsed to %v", got)
	}

	if _, err := parseNaturalTime("nonsense gibberish"); err == nil {
		t.Error("expected error for unparseable input")
	}
}

func TestRenderSnippetStripsMarkTags(t *testing.T) {
	out := renderSnippet("before <mark>hit</mark> after")
	if strings.Contains(out, "<mark>") || strings.Contains(out, "</mark>") {
		t.Errorf("mark tags leaked: %q", out)
	}
	if !strings.Contains(out, "before ") || !strings.Contains(out, " after") {
		t.Errorf("context lost: %q", out)
	}
}

func TestEscapeNotePath(t *testing.T) {
	got := escapeNotePath("docs/meeting notes/2026 plan.md")
	if !strings.Contains(got, "/") {
		t.Errorf("slashes must survive: %q", got)
	}
	if strings.Contains(got, " ") {
		t.Errorf("spaces must be escaped: %q", got)
	}
	if got != "docs/meeting%20notes/2026%20plan.md" {
		t.Errorf("escaped = %q", got)
	}
}
