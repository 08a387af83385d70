package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateThreadFTSBackfill populates thread_fts from thread_entries for
// databases created before thread search existed. The FTS table itself
// is part of the base schema.
func MigrateThreadFTSBackfill(db *sql.DB) error {
	var ftsCount, entryCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM thread_fts").Scan(&ftsCount); err != nil {
		return fmt.Errorf("failed to count thread_fts rows: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM thread_entries").Scan(&entryCount); err != nil {
		return fmt.Errorf("failed to count thread_entries rows: %w", err)
	}
	if ftsCount >= entryCount {
		return nil
	}
	if _, err := db.Exec("DELETE FROM thread_fts"); err != nil {
		return fmt.Errorf("failed to clear thread_fts: %w", err)
	}
	_, err := db.Exec(`
		INSERT INTO thread_fts (content, thread_id, seq)
		SELECT content, thread_id, seq FROM thread_entries
	`)
	if err != nil {
		return fmt.Errorf("failed to backfill thread_fts: %w", err)
	}
	return nil
}
