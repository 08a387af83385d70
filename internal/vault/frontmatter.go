package vault

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/untoldecay/LoreVault/internal/types"
)

const frontmatterDelim = "---"

// ParseFrontmatter splits a note file into YAML metadata and body.
// Files without a leading "---" line are all body. The closing "---"
// must appear on its own line; an unterminated preamble is treated as
// plain body rather than rejected, matching how Obsidian reads such
// files.
func ParseFrontmatter(raw []byte) (map[string]any, string, error) {
	s := string(raw)
	if !strings.HasPrefix(s, frontmatterDelim+"\n") && s != frontmatterDelim {
		return nil, s, nil
	}
	rest := strings.TrimPrefix(s, frontmatterDelim+"\n")
	idx := strings.Index(rest, "\n"+frontmatterDelim+"\n")
	var yamlPart, body string
	switch {
	case idx >= 0:
		yamlPart = rest[:idx]
		body = rest[idx+len("\n"+frontmatterDelim+"\n"):]
	case strings.HasSuffix(rest, "\n"+frontmatterDelim):
		yamlPart = strings.TrimSuffix(rest, "\n"+frontmatterDelim)
		body = ""
	default:
		return nil, s, nil
	}

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(yamlPart), &meta); err != nil {
		return nil, "", types.WrapError(types.KindValidation, err, "invalid YAML frontmatter").WithDetail("reason", "metadata_invalid")
	}
	if err := ValidateMetadata(meta); err != nil {
		return nil, "", err
	}
	return meta, body, nil
}

// ValidateMetadata enforces the reserved-key and tags-shape rules.
func ValidateMetadata(meta map[string]any) error {
	if meta == nil {
		return nil
	}
	if _, ok := meta["version"]; ok {
		return types.NewError(types.KindValidation, "metadata key %q is reserved", "version").WithDetail("reason", "metadata_reserved_key")
	}
	if raw, ok := meta["tags"]; ok && raw != nil {
		seq, ok := raw.([]any)
		if !ok {
			return types.NewError(types.KindValidation, "metadata tags must be a sequence of strings").WithDetail("reason", "metadata_invalid")
		}
		for _, v := range seq {
			if _, ok := v.(string); !ok {
				return types.NewError(types.KindValidation, "metadata tags must be a sequence of strings").WithDetail("reason", "metadata_invalid")
			}
		}
	}
	return nil
}

// SerialiseFrontmatter emits a "---"-delimited YAML block followed by
// the body, or the body alone when metadata is empty. Body bytes pass
// through verbatim.
func SerialiseFrontmatter(meta map[string]any, body string) ([]byte, error) {
	if len(meta) == 0 {
		return []byte(body), nil
	}
	if err := ValidateMetadata(meta); err != nil {
		return nil, err
	}
	y, err := yaml.Marshal(meta)
	if err != nil {
		return nil, types.WrapError(types.KindInternal, err, "failed to serialise metadata")
	}
	var buf bytes.Buffer
	buf.Grow(len(y) + len(body) + 10)
	fmt.Fprintf(&buf, "%s\n%s%s\n", frontmatterDelim, y, frontmatterDelim)
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// Tags extracts, lowercases, trims, and deduplicates the tags sequence
// from metadata, preserving first-occurrence order.
func Tags(meta map[string]any) []string {
	raw, ok := meta["tags"].([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
