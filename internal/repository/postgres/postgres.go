// Package postgres implements the repository interfaces on PostgreSQL using
// a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx pool.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to connString (a postgres:// URL or DSN), verifies the
// connection and migrates the schema.
func New(ctx context.Context, connString string) (*DB, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	return db, nil
}

// Close releases every pooled connection.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

func (db *DB) migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL,
			role          TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (lower(email));

		CREATE TABLE IF NOT EXISTS photos (
			seq           BIGSERIAL PRIMARY KEY,
			id            TEXT NOT NULL UNIQUE,
			url           TEXT NOT NULL,
			thumbnail_url TEXT NOT NULL DEFAULT '',
			title         TEXT NOT NULL,
			creator       TEXT NOT NULL,
			creator_id    TEXT NOT NULL DEFAULT '',
			shares        INTEGER NOT NULL DEFAULT 0 CHECK (shares >= 0),
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS photo_reactions (
			photo_id TEXT NOT NULL REFERENCES photos(id),
			kind     TEXT NOT NULL,
			total    INTEGER NOT NULL DEFAULT 0 CHECK (total >= 0),
			PRIMARY KEY (photo_id, kind)
		);

		CREATE TABLE IF NOT EXISTS photo_comments (
			seq        BIGSERIAL PRIMARY KEY,
			photo_id   TEXT NOT NULL REFERENCES photos(id),
			user_name  TEXT NOT NULL,
			text       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_photo_comments_photo_id ON photo_comments (photo_id);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
