package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/untoldecay/LoreVault/internal/slug"
	"github.com/untoldecay/LoreVault/internal/types"
	"github.com/untoldecay/LoreVault/internal/vault"
)

// Index rewrites every index row for the note in one transaction and
// returns the new version: metadata (with bumped version and fresh
// slugs), the FTS row, normalised tags, and resolved wikilink edges.
// Inbound links whose slug now matches the note are re-resolved so a
// note created after its referrers still gains backlinks.
func (s *Store) Index(ctx context.Context, tenant string, note *types.Note) (int64, error) {
	var newVersion int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM note_metadata WHERE tenant = ? AND path = ?`,
			tenant, note.Path).Scan(&current)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read current version: %w", err)
		}
		newVersion = current + 1

		if err := deleteNoteRows(ctx, tx, tenant, note.Path); err != nil {
			return err
		}

		titleSlug := slug.Make(note.Title)
		pathSlug := slug.ForPath(note.Path)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO note_metadata (tenant, path, version, title, created, updated, size_bytes, title_slug, path_slug)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tenant, note.Path, newVersion, note.Title,
			note.Created.UTC().Format(time.RFC3339), note.Updated.UTC().Format(time.RFC3339),
			note.SizeBytes, titleSlug, pathSlug)
		if err != nil {
			return fmt.Errorf("failed to insert metadata: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO note_fts (title, body, tenant, path) VALUES (?, ?, ?, ?)`,
			note.Title, note.Body, tenant, note.Path)
		if err != nil {
			return fmt.Errorf("failed to insert fts row: %w", err)
		}

		for _, tag := range vault.Tags(note.Metadata) {
			_, err = tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO note_tags (tenant, path, tag) VALUES (?, ?, ?)`,
				tenant, note.Path, tag)
			if err != nil {
				return fmt.Errorf("failed to insert tag %q: %w", tag, err)
			}
		}

		for _, text := range vault.ExtractWikilinks(note.Body) {
			linkSlug := slug.Make(text)
			target, resolved, err := resolveLink(ctx, tx, tenant, note.Path, linkSlug)
			if err != nil {
				return err
			}
			var targetVal any
			if resolved {
				targetVal = target
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO note_links (tenant, source_path, link_text, link_slug, target_path, is_resolved)
				VALUES (?, ?, ?, ?, ?, ?)`,
				tenant, note.Path, text, linkSlug, targetVal, boolInt(resolved))
			if err != nil {
				return fmt.Errorf("failed to insert link %q: %w", text, err)
			}
		}

		if err := reresolveInbound(ctx, tx, tenant, note.Path, titleSlug, pathSlug); err != nil {
			return err
		}
		return touchHealth(ctx, tx, tenant, false)
	})
	if err != nil {
		return 0, internalErr(err, "failed to index %s", note.Path)
	}
	return newVersion, nil
}

// DeleteIndex removes every index row for the note and marks inbound
// links unresolved.
func (s *Store) DeleteIndex(ctx context.Context, tenant, path string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteNoteRows(ctx, tx, tenant, path); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE note_links SET target_path = NULL, is_resolved = 0
			WHERE tenant = ? AND target_path = ?`, tenant, path)
		if err != nil {
			return fmt.Errorf("failed to unresolve inbound links: %w", err)
		}
		return touchHealth(ctx, tx, tenant, false)
	})
	if err != nil {
		return internalErr(err, "failed to delete index rows for %s", path)
	}
	return nil
}

// GetVersion returns the current version of a note, 0 if unindexed.
func (s *Store) GetVersion(ctx context.Context, tenant, path string) (int64, error) {
	if s.db == nil {
		return 0, internalErr(nil, "database not initialized")
	}
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM note_metadata WHERE tenant = ? AND path = ?`,
		tenant, path).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, internalErr(err, "failed to read version of %s", path)
	}
	return v, nil
}

// ClearTenant drops every index row for the tenant. Used by rebuild.
func (s *Store) ClearTenant(ctx context.Context, tenant string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM note_metadata WHERE tenant = ?`,
			`DELETE FROM note_fts WHERE tenant = ?`,
			`DELETE FROM note_tags WHERE tenant = ?`,
			`DELETE FROM note_links WHERE tenant = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, tenant); err != nil {
				return fmt.Errorf("failed to clear tenant rows: %w", err)
			}
		}
		return touchHealth(ctx, tx, tenant, false)
	})
	if err != nil {
		return internalErr(err, "failed to clear index for %s", tenant)
	}
	return nil
}

// MarkFullRebuild stamps last_full_rebuild for the tenant.
func (s *Store) MarkFullRebuild(ctx context.Context, tenant string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return touchHealth(ctx, tx, tenant, true)
	})
	if err != nil {
		return internalErr(err, "failed to stamp rebuild for %s", tenant)
	}
	return nil
}

func deleteNoteRows(ctx context.Context, tx *sql.Tx, tenant, path string) error {
	for _, q := range []string{
		`DELETE FROM note_metadata WHERE tenant = ? AND path = ?`,
		`DELETE FROM note_fts WHERE tenant = ? AND path = ?`,
		`DELETE FROM note_tags WHERE tenant = ? AND path = ?`,
		`DELETE FROM note_links WHERE tenant = ? AND source_path = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, tenant, path); err != nil {
			return fmt.Errorf("failed to delete existing rows: %w", err)
		}
	}
	return nil
}

// resolveLink picks the target for a link slug: candidates are notes
// whose title_slug or path_slug equals the slug, same-folder first,
// ties broken by lexicographic path.
func resolveLink(ctx context.Context, tx *sql.Tx, tenant, sourcePath, linkSlug string) (string, bool, error) {
	if linkSlug == "" {
		return "", false, nil
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT path FROM note_metadata
		WHERE tenant = ? AND (title_slug = ? OR path_slug = ?)
		ORDER BY path`, tenant, linkSlug, linkSlug)
	if err != nil {
		return "", false, fmt.Errorf("failed to query link candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	srcFolder := slug.Folder(sourcePath)
	best := ""
	bestSameFolder := false
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return "", false, err
		}
		sameFolder := slug.Folder(p) == srcFolder
		if best == "" || (sameFolder && !bestSameFolder) {
			best, bestSameFolder = p, sameFolder
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}
	return best, best != "", nil
}

// reresolveInbound re-resolves link rows whose slug matches the note
// just indexed, so earlier-written referrers pick it up.
func reresolveInbound(ctx context.Context, tx *sql.Tx, tenant, path, titleSlug, pathSlug string) error {
	slugs := []string{pathSlug}
	if titleSlug != "" && titleSlug != pathSlug {
		slugs = append(slugs, titleSlug)
	}
	for _, ls := range slugs {
		if ls == "" {
			continue
		}
		rows, err := tx.QueryContext(ctx, `
			SELECT source_path, link_text FROM note_links
			WHERE tenant = ? AND link_slug = ? AND source_path != ?`,
			tenant, ls, path)
		if err != nil {
			return fmt.Errorf("failed to query inbound links: %w", err)
		}
		type link struct{ source, text string }
		var links []link
		for rows.Next() {
			var l link
			if err := rows.Scan(&l.source, &l.text); err != nil {
				_ = rows.Close()
				return err
			}
			links = append(links, l)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, l := range links {
			target, resolved, err := resolveLink(ctx, tx, tenant, l.source, ls)
			if err != nil {
				return err
			}
			var targetVal any
			if resolved {
				targetVal = target
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE note_links SET target_path = ?, is_resolved = ?
				WHERE tenant = ? AND source_path = ? AND link_text = ?`,
				targetVal, boolInt(resolved), tenant, l.source, l.text)
			if err != nil {
				return fmt.Errorf("failed to re-resolve link: %w", err)
			}
		}
	}
	return nil
}

// touchHealth recomputes note_count and stamps the relevant timestamp.
func touchHealth(ctx context.Context, tx *sql.Tx, tenant string, fullRebuild bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	column := "last_incremental_update"
	if fullRebuild {
		column = "last_full_rebuild"
	}
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO index_health (tenant, note_count, %[1]s)
		VALUES (?1, (SELECT COUNT(*) FROM note_metadata WHERE tenant = ?1), ?2)
		ON CONFLICT(tenant) DO UPDATE SET
			note_count = (SELECT COUNT(*) FROM note_metadata WHERE tenant = ?1),
			%[1]s = ?2`, column),
		tenant, now)
	if err != nil {
		return fmt.Errorf("failed to update health: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
