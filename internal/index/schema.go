// Package index provides the SQLite-backed name registry with weighted
// full-text search (FTS5 when built with the sqlite_fts5 tag).
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	label            TEXT NOT NULL,
	tag              TEXT NOT NULL,
	target           TEXT NOT NULL,
	secret_digest    TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	verified         INTEGER NOT NULL DEFAULT 0,
	keywords         TEXT NOT NULL DEFAULT '',
	body             TEXT NOT NULL DEFAULT '',
	content_checksum TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_accessed    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	indexed_at       DATETIME,
	UNIQUE(label, tag)
);

CREATE INDEX IF NOT EXISTS idx_records_tag ON records(tag);
`

// DB wraps a sql.DB with registry-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Transactions take the write lock up front so read-verify-write sequences
// on a record cannot interleave.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Ping checks that the database is still reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
