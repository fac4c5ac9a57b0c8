// Package storage owns the SQLite database shared by the settings store
// and the transcript archive.
package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// DB wraps the database connection and applies the schema on open.
type DB struct {
	db *sql.DB
}

// schema is applied idempotently on every open. The database holds only
// operator-tunable settings and the local transcript archive; there is no
// migration history to preserve, so CREATE IF NOT EXISTS is sufficient.
const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transcript_turns (
	entity    TEXT    NOT NULL,
	session   TEXT    NOT NULL,
	position  INTEGER NOT NULL,
	turn_id   TEXT    NOT NULL,
	speaker   TEXT    NOT NULL,
	is_user   INTEGER NOT NULL,
	is_system INTEGER NOT NULL,
	text      TEXT    NOT NULL,
	sent_at   INTEGER NOT NULL,
	PRIMARY KEY (entity, session, position)
);

CREATE INDEX IF NOT EXISTS idx_transcript_entity
	ON transcript_turns (entity, session);

CREATE TABLE IF NOT EXISTS matrix_sync_state (
	user_id TEXT NOT NULL,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL,
	PRIMARY KEY (user_id, key)
);
`

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	// SQLite is single-writer. A single shared connection serializes
	// concurrent callers in database/sql instead of having them fight for
	// file locks across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage: set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}

	return &DB{db: db}, nil
}

// SQL exposes the underlying connection for package-level stores.
func (d *DB) SQL() *sql.DB { return d.db }

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }
