// Package vault implements the per-tenant filesystem store: path
// validation, YAML frontmatter handling, title derivation, wikilink
// extraction, and atomic note persistence.
package vault

import (
	"path/filepath"
	"strings"

	"github.com/untoldecay/LoreVault/internal/types"
)

const forbiddenPathChars = `<>:"|?*`

// ValidatePath checks a relative note path against the wire rules:
// forward-slash separated, ends in .md, at most 256 chars, no "..",
// no backslash, no leading slash, none of <>:"|?*.
func ValidatePath(p string) error {
	if p == "" {
		return types.NewError(types.KindValidation, "path is empty").WithDetail("reason", "path_invalid")
	}
	if len(p) > types.MaxPathLength {
		return types.NewError(types.KindValidation, "path exceeds %d characters", types.MaxPathLength).WithDetail("reason", "path_invalid")
	}
	if !strings.HasSuffix(p, ".md") {
		return types.NewError(types.KindValidation, "path must end in .md: %s", p).WithDetail("reason", "path_invalid")
	}
	if strings.HasPrefix(p, "/") {
		return types.NewError(types.KindValidation, "path must be relative: %s", p).WithDetail("reason", "path_invalid")
	}
	if strings.Contains(p, "\\") {
		return types.NewError(types.KindValidation, "path must use forward slashes: %s", p).WithDetail("reason", "path_invalid")
	}
	if containsDotDot(p) {
		return types.NewError(types.KindValidation, "path must not contain ..: %s", p).WithDetail("reason", "path_invalid")
	}
	if strings.ContainsAny(p, forbiddenPathChars) {
		return types.NewError(types.KindValidation, "path contains forbidden characters: %s", p).WithDetail("reason", "path_invalid")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			return types.NewError(types.KindValidation, "path contains empty segment: %s", p).WithDetail("reason", "path_invalid")
		}
	}
	return nil
}

// ValidateFolder checks a folder argument ("" means vault root).
func ValidateFolder(folder string) error {
	if folder == "" {
		return nil
	}
	if strings.Contains(folder, "\\") || containsDotDot(folder) || strings.HasPrefix(folder, "/") {
		return types.NewError(types.KindValidation, "invalid folder: %s", folder).WithDetail("reason", "path_invalid")
	}
	return nil
}

// ValidateTenant checks a tenant identifier: 1-64 chars, alphanumeric
// plus hyphen and underscore.
func ValidateTenant(tenant string) error {
	if tenant == "" || len(tenant) > types.MaxTenantLength {
		return types.NewError(types.KindValidation, "invalid tenant identifier").WithDetail("reason", "tenant_invalid")
	}
	for _, r := range tenant {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
		if !ok {
			return types.NewError(types.KindValidation, "invalid tenant identifier: %s", tenant).WithDetail("reason", "tenant_invalid")
		}
	}
	return nil
}

func containsDotDot(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// resolveInside joins rel under root and verifies the result stays
// inside root after lexical cleaning. Symlinked escapes are caught at
// open time by the caller comparing EvalSymlinks output where needed;
// lexical containment is the first gate and never touches the disk.
func resolveInside(root, rel string) (string, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	cleanRoot := filepath.Clean(root)
	if abs != cleanRoot && !strings.HasPrefix(abs, cleanRoot+string(filepath.Separator)) {
		return "", types.NewError(types.KindValidation, "path escapes vault root: %s", rel).WithDetail("reason", "path_escape")
	}
	return abs, nil
}
