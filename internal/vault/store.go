package vault

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/LoreVault/internal/types"
)

// Store persists notes under <Base>/<tenant>/. All operations validate
// paths before touching the filesystem and write atomically via a temp
// file renamed into place.
type Store struct {
	base string
}

// NewStore creates a vault store rooted at base.
func NewStore(base string) *Store {
	return &Store{base: base}
}

// Base returns the vault root directory.
func (s *Store) Base() string { return s.base }

// Initialise idempotently creates the tenant's vault directory.
func (s *Store) Initialise(tenant string) error {
	if err := ValidateTenant(tenant); err != nil {
		return err
	}
	dir := filepath.Join(s.base, tenant)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return types.WrapError(types.KindInternal, err, "failed to create vault for %s", tenant)
	}
	return nil
}

// Read loads a note. Timestamps come from frontmatter when present,
// falling back to file mtime.
func (s *Store) Read(tenant, path string) (*types.Note, error) {
	abs, err := s.resolve(tenant, path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewError(types.KindNotFound, "note not found: %s", path)
		}
		return nil, types.WrapError(types.KindInternal, err, "failed to read note %s", path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, types.WrapError(types.KindInternal, err, "failed to stat note %s", path)
	}
	meta, body, err := ParseFrontmatter(raw)
	if err != nil {
		return nil, err
	}
	note := &types.Note{
		Path:      path,
		Title:     DeriveTitle(path, meta, body),
		Metadata:  meta,
		Body:      body,
		Created:   metaTime(meta, "created", info.ModTime()),
		Updated:   metaTime(meta, "updated", info.ModTime()),
		SizeBytes: info.Size(),
	}
	return note, nil
}

// Write creates or replaces a note. An existing note keeps its
// original created timestamp; updated is stamped now. The stored
// frontmatter carries title, created, and updated so notes remain
// self-describing when read by other tools.
func (s *Store) Write(tenant, path, body string, meta map[string]any) (*types.Note, error) {
	abs, err := s.resolve(tenant, path)
	if err != nil {
		return nil, err
	}
	if len(body) > types.MaxNoteBytes {
		return nil, types.NewError(types.KindPayloadTooLarge, "note body exceeds %d bytes", types.MaxNoteBytes).WithDetail("reason", "body_too_large")
	}
	if err := ValidateMetadata(meta); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	created := now
	if existing, err := os.ReadFile(abs); err == nil {
		oldMeta, _, perr := ParseFrontmatter(existing)
		if perr == nil {
			created = metaTime(oldMeta, "created", created)
		}
	}

	merged := make(map[string]any, len(meta)+3)
	for k, v := range meta {
		merged[k] = v
	}
	title := DeriveTitle(path, merged, body)
	merged["title"] = title
	merged["created"] = created.Format(time.RFC3339)
	merged["updated"] = now.Format(time.RFC3339)

	data, err := SerialiseFrontmatter(merged, body)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0750); err != nil {
		return nil, types.WrapError(types.KindInternal, err, "failed to create note directory")
	}
	if err := atomicWrite(abs, data); err != nil {
		return nil, err
	}

	return &types.Note{
		Path:      path,
		Title:     title,
		Metadata:  merged,
		Body:      body,
		Created:   created,
		Updated:   now,
		SizeBytes: int64(len(data)),
	}, nil
}

// Delete unlinks a note.
func (s *Store) Delete(tenant, path string) error {
	abs, err := s.resolve(tenant, path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return types.NewError(types.KindNotFound, "note not found: %s", path)
		}
		return types.WrapError(types.KindInternal, err, "failed to delete note %s", path)
	}
	return nil
}

// Move renames a note within the tenant root. The target must not
// already exist.
func (s *Store) Move(tenant, oldPath, newPath string) (*types.Note, error) {
	oldAbs, err := s.resolve(tenant, oldPath)
	if err != nil {
		return nil, err
	}
	newAbs, err := s.resolve(tenant, newPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(oldAbs); os.IsNotExist(err) {
		return nil, types.NewError(types.KindNotFound, "note not found: %s", oldPath)
	}
	if _, err := os.Stat(newAbs); err == nil {
		return nil, types.NewError(types.KindVersionConflict, "note already exists: %s", newPath).WithDetail("reason", "exists")
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0750); err != nil {
		return nil, types.WrapError(types.KindInternal, err, "failed to create target directory")
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return nil, types.WrapError(types.KindInternal, err, "failed to move %s to %s", oldPath, newPath)
	}
	return s.Read(tenant, newPath)
}

// List walks .md files under folder ("" = vault root) and returns
// summaries sorted by lowercase path. Missing folders list as empty
// rather than erroring, so new tenants start clean.
func (s *Store) List(tenant, folder string) ([]types.NoteSummary, error) {
	if err := ValidateTenant(tenant); err != nil {
		return nil, err
	}
	if err := ValidateFolder(folder); err != nil {
		return nil, err
	}
	root := filepath.Join(s.base, tenant)
	start := root
	if folder != "" {
		var err error
		start, err = resolveInside(root, folder)
		if err != nil {
			return nil, err
		}
	}

	var out []types.NoteSummary
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		title := rel
		if raw, err := os.ReadFile(p); err == nil {
			if meta, body, perr := ParseFrontmatter(raw); perr == nil {
				title = DeriveTitle(rel, meta, body)
			}
		}
		out = append(out, types.NoteSummary{
			Path:         rel,
			Title:        title,
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, types.WrapError(types.KindInternal, err, "failed to list notes for %s", tenant)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Path) < strings.ToLower(out[j].Path)
	})
	return out, nil
}

func (s *Store) resolve(tenant, path string) (string, error) {
	if err := ValidateTenant(tenant); err != nil {
		return "", err
	}
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	return resolveInside(filepath.Join(s.base, tenant), path)
}

// atomicWrite writes data to a temp file in the target's directory and
// renames it into place.
func atomicWrite(abs string, data []byte) error {
	dir := filepath.Dir(abs)
	tmp, err := os.CreateTemp(dir, ".lv-tmp-*")
	if err != nil {
		return types.WrapError(types.KindInternal, err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return types.WrapError(types.KindInternal, err, "failed to write note")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return types.WrapError(types.KindInternal, err, "failed to close temp file")
	}
	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return types.WrapError(types.KindInternal, err, "failed to rename temp file")
	}
	return nil
}

func metaTime(meta map[string]any, key string, fallback time.Time) time.Time {
	switch v := meta[key].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
	case time.Time:
		return v.UTC()
	}
	return fallback.UTC()
}
