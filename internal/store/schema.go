package store

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 1

// Schema definitions
const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const snapshotsTable = `
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	root_path TEXT UNIQUE NOT NULL,
	created_at TEXT DEFAULT (datetime('now')),
	file_count INTEGER NOT NULL,
	posting_count INTEGER NOT NULL,
	checksum TEXT NOT NULL
);
`

const snapshotFilesTable = `
CREATE TABLE IF NOT EXISTS snapshot_files (
	snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	file_id INTEGER NOT NULL,
	path TEXT NOT NULL,
	mtime_unix_ns INTEGER NOT NULL,
	UNIQUE(snapshot_id, file_id)
);

CREATE INDEX IF NOT EXISTS idx_snapshot_files_snapshot_id ON snapshot_files(snapshot_id);
`

const snapshotPostingsTable = `
CREATE TABLE IF NOT EXISTS snapshot_postings (
	snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	trigram INTEGER NOT NULL,
	file_ids BLOB NOT NULL,
	UNIQUE(snapshot_id, trigram)
);

CREATE INDEX IF NOT EXISTS idx_snapshot_postings_snapshot_id ON snapshot_postings(snapshot_id);
`

// initSchema initializes the database schema.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Check current version
	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		log.Debug("Schema is up to date", "version", version)
		return nil
	}

	log.Debug("Migrating schema", "from", version, "to", currentSchemaVersion)

	if version < 1 {
		if err := migrateV1(db); err != nil {
			return fmt.Errorf("failed to migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates the initial schema.
func migrateV1(db *sql.DB) error {
	log.Debug("Applying migration v1")

	tables := []string{snapshotsTable, snapshotFilesTable, snapshotPostingsTable}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}
