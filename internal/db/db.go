// Package db provides the SQLite connection and schema for hubspaced.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Command ledger - append-only history of every state write sent to the
	// vendor cloud, for auditing failed commands against device behavior
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS command_ledger (
			record_id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			function_class TEXT NOT NULL,
			payload TEXT,
			error TEXT,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_command_device_ts ON command_ledger(device_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_command_ts ON command_ledger(timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create command_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
