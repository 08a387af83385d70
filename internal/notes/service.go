// Package notes composes the vault store and the secondary index into
// the note operations exposed by the API and the tools. Every write
// goes file-first: the vault is the source of truth, the index follows
// in the same call, and a failed index leaves a state the rebuild
// endpoint can reconcile.
package notes

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/LoreVault/internal/logging"
	"github.com/untoldecay/LoreVault/internal/slug"
	"github.com/untoldecay/LoreVault/internal/storage"
	"github.com/untoldecay/LoreVault/internal/types"
	"github.com/untoldecay/LoreVault/internal/vault"
)

// rebuildConcurrency bounds parallel file reads during a full rebuild.
const rebuildConcurrency = 8

// Service is the write path and read path over a tenant's notes.
type Service struct {
	vault *vault.Store
	index storage.Store
	log   *logging.Logger
}

// NewService wires the vault store and index together.
func NewService(v *vault.Store, idx storage.Store) *Service {
	return &Service{vault: v, index: idx, log: logging.Get(logging.CategoryIndex)}
}

// Read returns a note with its authoritative index version attached.
func (s *Service) Read(ctx context.Context, tenant, path string) (*types.Note, error) {
	note, err := s.vault.Read(tenant, path)
	if err != nil {
		return nil, err
	}
	if version, verr := s.index.GetVersion(ctx, tenant, path); verr == nil {
		note.Version = version
	}
	return note, nil
}

// WriteOptions alter the behaviour of Write.
type WriteOptions struct {
	// IfVersion, when non-nil, makes the write conditional on the
	// current index version.
	IfVersion *int64
	// CreateOnly fails with conflict when the note already exists.
	CreateOnly bool
}

// Write persists a note and synchronously reindexes it. The returned
// note carries the new index version.
func (s *Service) Write(ctx context.Context, tenant, path, body string, meta map[string]any, opts WriteOptions) (*types.Note, error) {
	current, err := s.index.GetVersion(ctx, tenant, path)
	if err != nil {
		return nil, err
	}
	if opts.CreateOnly && current > 0 {
		return nil, types.NewError(types.KindConflict, "note already exists: %s", path).
			WithDetail("reason", "exists")
	}
	if opts.IfVersion != nil && *opts.IfVersion != current {
		return nil, types.NewError(types.KindVersionConflict, "note %s is at version %d, not %d", path, current, *opts.IfVersion).
			WithDetail("current_version", current)
	}

	note, err := s.vault.Write(tenant, path, body, meta)
	if err != nil {
		return nil, err
	}
	version, err := s.index.Index(ctx, tenant, note)
	if err != nil {
		s.log.Error("index failed after write of %s/%s, rebuild will reconcile: %v", tenant, path, err)
		return nil, types.WrapError(types.KindInternal, err, "note written but index update failed for %s", path)
	}
	note.Version = version
	return note, nil
}

// Delete removes a note from disk and drops its index rows. Inbound
// links to it become unresolved.
func (s *Service) Delete(ctx context.Context, tenant, path string) error {
	if err := s.vault.Delete(tenant, path); err != nil {
		return err
	}
	if err := s.index.DeleteIndex(ctx, tenant, path); err != nil {
		s.log.Error("deindex failed after delete of %s/%s, rebuild will reconcile: %v", tenant, path, err)
		return types.WrapError(types.KindInternal, err, "note deleted but index update failed for %s", path)
	}
	return nil
}

// Move renames a note, reindexes it under the new path, and rewrites
// inbound wikilinks to the new title. Backlink rewriting is best
// effort: a referrer that fails to update is logged and skipped.
func (s *Service) Move(ctx context.Context, tenant, oldPath, newPath string) (*types.Note, error) {
	old, err := s.vault.Read(tenant, oldPath)
	if err != nil {
		return nil, err
	}
	referrers, err := s.index.Backlinks(ctx, tenant, oldPath)
	if err != nil {
		return nil, err
	}

	note, err := s.vault.Move(tenant, oldPath, newPath)
	if err != nil {
		return nil, err
	}
	if err := s.index.DeleteIndex(ctx, tenant, oldPath); err != nil {
		return nil, types.WrapError(types.KindInternal, err, "failed to deindex %s", oldPath)
	}
	version, err := s.index.Index(ctx, tenant, note)
	if err != nil {
		return nil, types.WrapError(types.KindInternal, err, "failed to index %s", newPath)
	}
	note.Version = version

	s.rewriteBacklinks(ctx, tenant, referrers, old, note)
	return note, nil
}

// rewriteBacklinks points the referrers' wikilinks at the moved note's
// new title.
func (s *Service) rewriteBacklinks(ctx context.Context, tenant string, referrers []types.Backlink, old, moved *types.Note) {
	oldTitleSlug := slug.Make(old.Title)
	oldPathSlug := slug.ForPath(old.Path)
	for _, ref := range referrers {
		refNote, err := s.vault.Read(tenant, ref.Path)
		if err != nil {
			s.log.Warn("backlink rewrite skipped for %s/%s: %v", tenant, ref.Path, err)
			continue
		}
		body, changed := vault.RewriteWikilinks(refNote.Body, func(target string) (string, bool) {
			t := slug.Make(target)
			if t == oldTitleSlug || t == oldPathSlug {
				return moved.Title, true
			}
			return "", false
		})
		if changed == 0 {
			continue
		}
		if _, err := s.Write(ctx, tenant, ref.Path, body, userMetadata(refNote.Metadata), WriteOptions{}); err != nil {
			s.log.Warn("backlink rewrite failed for %s/%s: %v", tenant, ref.Path, err)
		}
	}
}

// List returns summaries for the notes under folder ("" = whole
// vault).
func (s *Service) List(ctx context.Context, tenant, folder string) ([]types.NoteSummary, error) {
	return s.vault.List(tenant, folder)
}

// Rebuild drops the tenant's index and reindexes every note on disk.
// Returns the number of notes indexed.
func (s *Service) Rebuild(ctx context.Context, tenant string) (int, error) {
	summaries, err := s.vault.List(tenant, "")
	if err != nil {
		return 0, err
	}
	if err := s.index.ClearTenant(ctx, tenant); err != nil {
		return 0, err
	}

	read := make([]*types.Note, len(summaries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rebuildConcurrency)
	for i, sum := range summaries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			note, err := s.vault.Read(tenant, sum.Path)
			if err != nil {
				return err
			}
			read[i] = note
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, types.WrapError(types.KindInternal, err, "rebuild failed reading vault for %s", tenant)
	}

	for _, note := range read {
		if _, err := s.index.Index(ctx, tenant, note); err != nil {
			return 0, types.WrapError(types.KindInternal, err, "rebuild failed indexing %s", note.Path)
		}
	}
	if err := s.index.MarkFullRebuild(ctx, tenant); err != nil {
		return 0, err
	}
	s.log.Info("rebuild complete for %s: %d notes", tenant, len(summaries))
	return len(summaries), nil
}

// userMetadata strips the stamped bookkeeping keys so a rewrite does
// not double-nest title/created/updated handling in vault.Write.
func userMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		switch k {
		case "title", "created", "updated":
			continue
		}
		out[k] = v
	}
	return out
}
