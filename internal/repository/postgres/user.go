package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/xid"

	"github.com/sakif/photosphere/internal/apperror"
	"github.com/sakif/photosphere/internal/model"
	"github.com/sakif/photosphere/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// uniqueViolation is the SQLSTATE Postgres reports for a duplicate key.
const uniqueViolation = "23505"

// CreateUser relies on the unique index on lower(email); a violation is
// reported as apperror.ErrDuplicate.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now().UTC()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, role, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Name, user.Email, user.Role, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			user.ID = ""
			return apperror.Duplicate("user", user.Email)
		}
		return fmt.Errorf("postgres: inserting user %s: %w", user.Email, err)
	}
	return nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, name, email, role, password_hash, created_at
		 FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row, email)
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, name, email, role, password_hash, created_at
		 FROM users WHERE id = $1`, id)
	return scanUser(row, id)
}

func scanUser(row pgx.Row, key string) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", key)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", key, err)
	}
	return &u, nil
}
