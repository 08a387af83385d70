package vault

import (
	"path"
	"strings"
)

// DeriveTitle picks a note title: frontmatter "title", else the first
// H1 heading in the body, else the filename stem with hyphens and
// underscores replaced by spaces.
func DeriveTitle(notePath string, meta map[string]any, body string) string {
	if t, ok := meta["title"].(string); ok {
		if t = strings.TrimSpace(t); t != "" {
			return t
		}
	}
	if h1 := firstH1(body); h1 != "" {
		return h1
	}
	stem := strings.TrimSuffix(path.Base(notePath), ".md")
	stem = strings.ReplaceAll(stem, "-", " ")
	stem = strings.ReplaceAll(stem, "_", " ")
	stem = strings.TrimSpace(stem)
	if stem == "" {
		return "Untitled"
	}
	return titleCase(stem)
}

func firstH1(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// titleCase uppercases the first letter of each space-separated word.
// strings.Title is deprecated and Unicode-aware casing is not needed
// for filename stems.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
