// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code.
//
// The default DSN is ":memory:", which keeps the service's volatile-by-default
// behaviour while exercising the same SQL path a file-backed deployment uses.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/photosphere.db" → file-based database (persistent)
//   - ":memory:"            → in-memory database (lost on close)
//
// SINGLE CONNECTION:
// Every new connection to ":memory:" is a brand new, empty database, and
// SQLite allows only one writer at a time anyway. Capping the pool at one
// connection gives every caller the same database and serializes writes,
// which is what makes the counter increments atomic.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight on file databases.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
//
// photos.seq is the feed order: AUTOINCREMENT never reuses values, so
// ORDER BY seq DESC is upload order, most recent first, even when two
// uploads share a timestamp.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			role          TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS photos (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT NOT NULL UNIQUE,
			url           TEXT NOT NULL,
			thumbnail_url TEXT NOT NULL DEFAULT '',
			title         TEXT NOT NULL,
			creator       TEXT NOT NULL,
			creator_id    TEXT NOT NULL DEFAULT '',
			shares        INTEGER NOT NULL DEFAULT 0 CHECK (shares >= 0),
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating photos table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS photo_reactions (
			photo_id TEXT NOT NULL REFERENCES photos(id),
			kind     TEXT NOT NULL,
			total    INTEGER NOT NULL DEFAULT 0 CHECK (total >= 0),
			PRIMARY KEY (photo_id, kind)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating photo_reactions table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS photo_comments (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			photo_id   TEXT NOT NULL REFERENCES photos(id),
			user_name  TEXT NOT NULL,
			text       TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_photo_comments_photo_id ON photo_comments(photo_id);
	`)
	if err != nil {
		return fmt.Errorf("creating photo_comments table: %w", err)
	}

	return nil
}
