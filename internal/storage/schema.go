package storage

import (
	"context"
	"database/sql"
	"fmt"

	"evalview/internal/config"
)

// Schema version tracking
const currentSchemaVersion = 1

// EnsureSchema creates the evaluations table and its indexes when they are
// missing. Existing tables are left as they are; legacy stores without
// optional columns stay readable through column introspection.
func (db *DB) EnsureSchema(ctx context.Context, table string) error {
	if !config.IsIdentifier(table) {
		return fmt.Errorf("invalid table name %q", table)
	}

	version, err := db.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(ctx, tx); err != nil {
			return err
		}
		if err := createEvaluationsTable(ctx, tx, table); err != nil {
			return err
		}
		if version != currentSchemaVersion {
			if err := setSchemaVersion(ctx, tx, currentSchemaVersion); err != nil {
				return err
			}
			db.logger.Info("Database schema initialized",
				"version", currentSchemaVersion,
				"table", table,
			)
		}
		return nil
	})
}

// getSchemaVersion returns 0 for stores that never went through EnsureSchema
func (db *DB) getSchemaVersion(ctx context.Context) (int, error) {
	var tableName string
	err := db.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

func setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createEvaluationsTable creates the evaluation records table. table has
// already been checked by config.IsIdentifier.
func createEvaluationsTable(ctx context.Context, tx *sql.Tx, table string) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+table+` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			model_name TEXT NOT NULL,
			category TEXT,
			conversation_id TEXT,
			turn_number INTEGER,
			doc_id INTEGER,
			prompt TEXT,
			response TEXT,
			explanation TEXT,
			score REAL,
			raw_output TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create %s table: %w", table, err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_" + table + "_model_name ON " + table + "(model_name)",
		"CREATE INDEX IF NOT EXISTS idx_" + table + "_category ON " + table + "(category)",
		"CREATE INDEX IF NOT EXISTS idx_" + table + "_conversation ON " + table + "(conversation_id, turn_number)",
		"CREATE INDEX IF NOT EXISTS idx_" + table + "_score ON " + table + "(score)",
	}

	for _, indexSQL := range indexes {
		if _, err := tx.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
