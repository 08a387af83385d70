// Package slug normalises titles and link text for wikilink matching.
// Matching is intentionally lossy: "Project Alpha", "project_alpha" and
// "Project   ALPHA!" all collapse to "project-alpha".
package slug

import "strings"

// Make normalises s into a slug: lowercase, whitespace and underscores
// become hyphens, everything outside [a-z0-9-] is dropped, runs of
// hyphens collapse, leading/trailing hyphens are trimmed. An input with
// no slug-able characters yields "".
func Make(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	lastHyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '_' || r == '-':
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		default:
			// dropped
		}
	}
	out := b.String()
	return strings.TrimRight(out, "-")
}

// ForPath slugs the base name of a vault path: the final segment with
// its ".md" extension removed.
func ForPath(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".md")
	return Make(base)
}

// Folder returns the directory part of a vault path, "" for top-level
// notes. Used for the same-folder tie-break when a link text matches
// several notes.
func Folder(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return ""
}
