// Package index persists the thought index in SQLite and keeps it in step
// with the corpus.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// FileName is the database file created inside the store directory.
const FileName = "notemind.db"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path     TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	raw_text TEXT NOT NULL,
	checksum TEXT NOT NULL,
	tags     TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS thoughts (
	row           INTEGER PRIMARY KEY,
	document_path TEXT NOT NULL,
	document_name TEXT NOT NULL,
	text          TEXT NOT NULL,
	granularity   TEXT NOT NULL,
	tags          TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS embeddings (
	row    INTEGER PRIMARY KEY,
	vector BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS header (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_thoughts_document ON thoughts(document_path);
`

// DB wraps a sql.DB holding the persisted index.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
