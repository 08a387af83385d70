// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/untoldecay/LoreVault/internal/storage/sqlite/migrations"
)

// Migration represents a single database migration.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations. Migrations are
// additive and idempotent; the base schema already reflects their end
// state for fresh databases, so each one checks before altering.
var migrationsList = []Migration{
	{"link_slug_column", migrations.MigrateLinkSlugColumn},
	{"thread_fts_backfill", migrations.MigrateThreadFTSBackfill},
	{"tree_label_column", migrations.MigrateTreeLabelColumn},
}

// RunMigrations executes all registered migrations in order.
// Uses an EXCLUSIVE transaction to serialise migrations across
// processes; foreign keys are disabled first because the pragma cannot
// change inside a transaction and table rebuilds must not cascade.
func RunMigrations(db *sql.DB) error {
	_, err := db.Exec("PRAGMA foreign_keys = OFF")
	if err != nil {
		return fmt.Errorf("failed to disable foreign keys for migrations: %w", err)
	}
	defer func() { _, _ = db.Exec("PRAGMA foreign_keys = ON") }()

	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, migration := range migrationsList {
		applied, err := migrationApplied(db, migration.Name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := migration.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
		if err := recordMigration(db, migration.Name); err != nil {
			return err
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true
	return nil
}

func migrationApplied(db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", name, err)
	}
	return n > 0, nil
}

func recordMigration(db *sql.DB, name string) error {
	_, err := db.Exec("INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)",
		name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}
	return nil
}
