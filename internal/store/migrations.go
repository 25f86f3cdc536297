package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all journal tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS packages (
		id            TEXT PRIMARY KEY,
		unit_type     TEXT NOT NULL,
		parallel_id   INTEGER NOT NULL,
		size          INTEGER NOT NULL,
		launched_tick INTEGER NOT NULL,
		launched_at   TEXT NOT NULL,
		released_tick INTEGER,
		released_at   TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS package_instructions (
		package_id     TEXT NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
		seq            INTEGER NOT NULL,
		instruction_id TEXT NOT NULL,
		opcode         TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (package_id, seq)
	)`,

	`CREATE TABLE IF NOT EXISTS idle_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		object_id   INTEGER NOT NULL,
		parallel_id INTEGER NOT NULL,
		tick        INTEGER NOT NULL,
		at          TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_packages_unit_type ON packages(unit_type)`,
	`CREATE INDEX IF NOT EXISTS idx_packages_launched_tick ON packages(launched_tick)`,
	`CREATE INDEX IF NOT EXISTS idx_package_instructions_instruction_id ON package_instructions(instruction_id)`,
	`CREATE INDEX IF NOT EXISTS idx_idle_events_object ON idle_events(object_id, parallel_id)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	// Executor failure text, recorded on release
	{
		table:    "packages",
		column:   "failure",
		alterSQL: "ALTER TABLE packages ADD COLUMN failure TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_packages_failed ON packages(id) WHERE failure != ''",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	exists, err := columnExists(ctx, db, table, column)
	if err != nil || exists {
		return err
	}
	_, err = db.ExecContext(ctx, alterSQL)
	return err
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}
