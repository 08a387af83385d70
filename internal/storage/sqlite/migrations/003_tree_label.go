package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateTreeLabelColumn adds the label column to context_trees and
// context_nodes for databases created before labelling existed.
func MigrateTreeLabelColumn(db *sql.DB) error {
	for _, table := range []string{"context_trees", "context_nodes"} {
		exists, err := columnExists(db, table, "label")
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN label TEXT NOT NULL DEFAULT ''`, table)); err != nil {
			return fmt.Errorf("failed to add label column to %s: %w", table, err)
		}
	}
	return nil
}
