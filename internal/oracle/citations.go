package oracle

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// citation extraction limits.
const (
	maxCitationsPerTool = 5
	maxCitationSnippet  = 500
)

// extractCitations pulls source citations out of a tool result based
// on which tool produced it. Unknown tools and malformed results
// yield nothing.
func extractCitations(tool string, result json.RawMessage) []Citation {
	switch tool {
	case "search_code":
		return codeCitations(result)
	case "vault_search":
		return vaultSearchCitations(result)
	case "vault_read":
		return vaultReadCitation(result)
	case "thread_read", "thread_seek":
		return threadCitations(result)
	}
	return nil
}

func codeCitations(result json.RawMessage) []Citation {
	var parsed struct {
		Results []struct {
			FilePath  string  `json:"file_path"`
			LineStart int     `json:"line_start"`
			Content   string  `json:"content"`
			Score     float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil
	}
	var out []Citation
	for _, r := range parsed.Results {
		if len(out) == maxCitationsPerTool {
			break
		}
		out = append(out, Citation{
			Path:       r.FilePath,
			SourceType: "code",
			Line:       r.LineStart,
			Snippet:    clip(r.Content, maxCitationSnippet),
			Score:      r.Score,
		})
	}
	return out
}

func vaultSearchCitations(result json.RawMessage) []Citation {
	var parsed struct {
		Results []struct {
			Path    string  `json:"path"`
			Snippet string  `json:"snippet"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil
	}
	var out []Citation
	for _, r := range parsed.Results {
		if len(out) == maxCitationsPerTool {
			break
		}
		out = append(out, Citation{
			Path:       r.Path,
			SourceType: "vault",
			Snippet:    clip(r.Snippet, maxCitationSnippet),
			Score:      r.Score,
		})
	}
	return out
}

func vaultReadCitation(result json.RawMessage) []Citation {
	var parsed struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil || parsed.Path == "" || parsed.Error != "" {
		return nil
	}
	return []Citation{{
		Path:       parsed.Path,
		SourceType: "vault",
		Snippet:    clip(parsed.Content, maxCitationSnippet),
	}}
}

func threadCitations(result json.RawMessage) []Citation {
	var parsed struct {
		Entries []struct {
			ThreadID string `json:"thread_id"`
			Content  string `json:"content"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil
	}
	var out []Citation
	for _, e := range parsed.Entries {
		if len(out) == maxCitationsPerTool {
			break
		}
		out = append(out, Citation{
			Path:       fmt.Sprintf("thread:%s", e.ThreadID),
			SourceType: "thread",
			Snippet:    clip(e.Content, maxCitationSnippet),
		})
	}
	return out
}

// clip truncates s to at most n bytes, backing up to a rune boundary
// so the cut never yields invalid UTF-8.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
