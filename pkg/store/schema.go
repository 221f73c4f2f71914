package store

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// CreateSchema creates the database schema if it doesn't exist.
// The statements are valid for both SQLite and PostgreSQL.
func CreateSchema(db *sql.DB, d dialect) error {
	if err := createSchemaVersionTable(db, d); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	if err := createRunsTable(db); err != nil {
		return fmt.Errorf("creating runs table: %w", err)
	}

	if err := createUnitsTable(db); err != nil {
		return fmt.Errorf("creating units table: %w", err)
	}

	return nil
}

func createSchemaVersionTable(db *sql.DB, d dialect) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count)
	if err != nil {
		return err
	}

	if count == 0 {
		_, err = db.Exec(d.rebind("INSERT INTO schema_version (version) VALUES (?)"), SchemaVersion)
		return err
	}

	return nil
}

func createRunsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY NOT NULL,
			started_at TEXT NOT NULL,
			root TEXT NOT NULL,
			manifest_json TEXT NOT NULL
		)
	`)
	return err
}

func createUnitsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS units (
			run_id TEXT NOT NULL REFERENCES runs(id),
			seq INTEGER NOT NULL,
			path TEXT NOT NULL,
			archive TEXT NOT NULL,
			member TEXT NOT NULL,
			lines INTEGER NOT NULL,
			decode_status TEXT NOT NULL,
			blob_id TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)
	`)
	if err != nil {
		return err
	}

	// Incremental runs look units up by content.
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_units_blob_id ON units(blob_id)
	`)
	return err
}
