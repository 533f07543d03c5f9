package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/photosphere/internal/apperror"
	"github.com/sakif/photosphere/internal/model"
)

// CreatePhoto inserts the photo together with its initial counters and
// comments in one transaction.
func (db *DB) CreatePhoto(ctx context.Context, photo *model.Photo) error {
	photo.ID = xid.New().String()
	photo.CreatedAt = time.Now().UTC()
	if photo.Reactions == nil {
		photo.Reactions = model.NewReactions()
	}
	if photo.Comments == nil {
		photo.Comments = []model.Comment{}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO photos (id, url, thumbnail_url, title, creator, creator_id, shares, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		photo.ID,
		photo.URL,
		photo.ThumbnailURL,
		photo.Title,
		photo.Creator,
		photo.CreatorID,
		photo.Shares,
		photo.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting photo: %w", err)
	}

	for kind, n := range photo.Reactions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO photo_reactions (photo_id, kind, total) VALUES (?, ?, ?)`,
			photo.ID, kind, n,
		); err != nil {
			return fmt.Errorf("sqlite: inserting reaction %q for photo %s: %w", kind, photo.ID, err)
		}
	}

	for i := range photo.Comments {
		c := &photo.Comments[i]
		if c.CreatedAt.IsZero() {
			c.CreatedAt = photo.CreatedAt
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO photo_comments (photo_id, user_name, text, created_at) VALUES (?, ?, ?, ?)`,
			photo.ID, c.User, c.Text, c.CreatedAt,
		); err != nil {
			return fmt.Errorf("sqlite: inserting comment for photo %s: %w", photo.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing photo %s: %w", photo.ID, err)
	}
	return nil
}

// ListPhotos returns the whole feed, newest first.
//
// The pool has a single connection, so the photo rows are fully read and
// closed before reactions and comments are fetched. Two bulk queries keep it
// at three round trips regardless of feed size.
func (db *DB) ListPhotos(ctx context.Context) ([]model.Photo, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, url, thumbnail_url, title, creator, creator_id, shares, created_at
		 FROM photos
		 ORDER BY seq DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing photos: %w", err)
	}

	photos := []model.Photo{}
	index := make(map[string]int)
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[p.ID] = len(photos)
		photos = append(photos, *p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating photos: %w", err)
	}
	rows.Close()

	reactions, err := db.conn.QueryContext(ctx, `SELECT photo_id, kind, total FROM photo_reactions`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing reactions: %w", err)
	}
	for reactions.Next() {
		var photoID, kind string
		var n int
		if err := reactions.Scan(&photoID, &kind, &n); err != nil {
			reactions.Close()
			return nil, fmt.Errorf("sqlite: scanning reaction row: %w", err)
		}
		if i, ok := index[photoID]; ok {
			photos[i].Reactions[kind] = n
		}
	}
	if err := reactions.Err(); err != nil {
		reactions.Close()
		return nil, fmt.Errorf("sqlite: iterating reactions: %w", err)
	}
	reactions.Close()

	comments, err := db.conn.QueryContext(ctx,
		`SELECT photo_id, user_name, text, created_at FROM photo_comments ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments: %w", err)
	}
	defer comments.Close()
	for comments.Next() {
		var photoID string
		var c model.Comment
		if err := comments.Scan(&photoID, &c.User, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		if i, ok := index[photoID]; ok {
			photos[i].Comments = append(photos[i].Comments, c)
		}
	}
	if err := comments.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}

	return photos, nil
}

// GetPhoto returns apperror.ErrNotFound if the photo doesn't exist.
func (db *DB) GetPhoto(ctx context.Context, id string) (*model.Photo, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, url, thumbnail_url, title, creator, creator_id, shares, created_at
		 FROM photos WHERE id = ?`,
		id,
	)
	p, err := scanPhoto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("photo", id)
		}
		return nil, err
	}

	if p.Reactions, err = reactionsTx(ctx, tx, id); err != nil {
		return nil, err
	}
	if p.Comments, err = commentsTx(ctx, tx, id); err != nil {
		return nil, err
	}

	return p, nil
}

// AddReaction upserts the (photo, kind) counter. An absent kind is inserted
// at 1; an existing one is incremented in the same statement.
func (db *DB) AddReaction(ctx context.Context, id, kind string) (map[string]int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning tx: %w", err)
	}
	defer tx.Rollback()

	if err := photoExistsTx(ctx, tx, id); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO photo_reactions (photo_id, kind, total) VALUES (?, ?, 1)
		 ON CONFLICT (photo_id, kind) DO UPDATE SET total = total + 1`,
		id, kind,
	); err != nil {
		return nil, fmt.Errorf("sqlite: reacting to photo %s: %w", id, err)
	}

	reactions, err := reactionsTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing reaction on photo %s: %w", id, err)
	}
	return reactions, nil
}

func (db *DB) AddComment(ctx context.Context, id string, comment model.Comment) ([]model.Comment, error) {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning tx: %w", err)
	}
	defer tx.Rollback()

	if err := photoExistsTx(ctx, tx, id); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO photo_comments (photo_id, user_name, text, created_at) VALUES (?, ?, ?, ?)`,
		id, comment.User, comment.Text, comment.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("sqlite: commenting on photo %s: %w", id, err)
	}

	comments, err := commentsTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing comment on photo %s: %w", id, err)
	}
	return comments, nil
}

// IncrementShares uses RowsAffected to detect an unknown id, like the
// UPDATE-based methods elsewhere in this package.
func (db *DB) IncrementShares(ctx context.Context, id string) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE photos SET shares = shares + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sharing photo %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, apperror.NotFound("photo", id)
	}

	var shares int
	if err := tx.QueryRowContext(ctx, `SELECT shares FROM photos WHERE id = ?`, id).Scan(&shares); err != nil {
		return 0, fmt.Errorf("sqlite: reading shares of photo %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing share of photo %s: %w", id, err)
	}
	return shares, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPhoto(s scanner) (*model.Photo, error) {
	p := model.Photo{
		Reactions: map[string]int{},
		Comments:  []model.Comment{},
	}
	err := s.Scan(
		&p.ID,
		&p.URL,
		&p.ThumbnailURL,
		&p.Title,
		&p.Creator,
		&p.CreatorID,
		&p.Shares,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scanning photo row: %w", err)
	}
	return &p, nil
}

func photoExistsTx(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM photos WHERE id = ?`, id).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("photo", id)
		}
		return fmt.Errorf("sqlite: looking up photo %s: %w", id, err)
	}
	return nil
}

func reactionsTx(ctx context.Context, tx *sql.Tx, id string) (map[string]int, error) {
	rows, err := tx.QueryContext(ctx, `SELECT kind, total FROM photo_reactions WHERE photo_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading reactions of photo %s: %w", id, err)
	}
	defer rows.Close()

	reactions := map[string]int{}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("sqlite: scanning reaction row: %w", err)
		}
		reactions[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating reactions: %w", err)
	}
	return reactions, nil
}

func commentsTx(ctx context.Context, tx *sql.Tx, id string) ([]model.Comment, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT user_name, text, created_at FROM photo_comments WHERE photo_id = ? ORDER BY seq`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading comments of photo %s: %w", id, err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.User, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}
