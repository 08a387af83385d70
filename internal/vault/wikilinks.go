package vault

import (
	"regexp"
	"strings"
)

var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

// ExtractWikilinks returns the [[text]] occurrences in body,
// deduplicated by link text preserving first-occurrence order.
// Alias ("text|display") and heading ("text#section") suffixes are
// stripped before matching.
func ExtractWikilinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		target, _ := splitLink(m[1])
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true
		out = append(out, target)
	}
	return out
}

// RewriteWikilinks replaces the target of each [[link]] for which
// rewrite returns a replacement, preserving any alias or heading
// suffix. It returns the new body and the number of links changed.
func RewriteWikilinks(body string, rewrite func(target string) (string, bool)) (string, int) {
	changed := 0
	out := wikilinkRe.ReplaceAllStringFunc(body, func(link string) string {
		inner := link[2 : len(link)-2]
		target, suffix := splitLink(inner)
		replacement, ok := rewrite(target)
		if !ok || replacement == target {
			return link
		}
		changed++
		return "[[" + replacement + suffix + "]]"
	})
	return out, changed
}

// splitLink divides the inside of a wikilink into its trimmed target
// and the raw alias/heading suffix ("#section", "|display") if any.
func splitLink(inner string) (target, suffix string) {
	cut := len(inner)
	if i := strings.IndexByte(inner, '|'); i >= 0 && i < cut {
		cut = i
	}
	if i := strings.IndexByte(inner, '#'); i >= 0 && i < cut {
		cut = i
	}
	return strings.TrimSpace(inner[:cut]), inner[cut:]
}
