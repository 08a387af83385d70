// Package migrations holds the ordered, additive schema migrations
// applied by the sqlite store at startup.
package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateLinkSlugColumn adds the link_slug column to note_links so the
// indexer can re-resolve inbound links without re-parsing bodies.
// Databases created from the current base schema already have it.
func MigrateLinkSlugColumn(db *sql.DB) error {
	exists, err := columnExists(db, "note_links", "link_slug")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := db.Exec(`ALTER TABLE note_links ADD COLUMN link_slug TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add link_slug column: %w", err)
		}
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_note_links_slug ON note_links(tenant, link_slug)`); err != nil {
		return fmt.Errorf("failed to create link_slug index: %w", err)
	}
	return nil
}

// columnExists reports whether a table already has a column.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
