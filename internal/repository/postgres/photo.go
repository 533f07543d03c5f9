package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/photosphere/internal/apperror"
	"github.com/sakif/photosphere/internal/model"
)

const selectPhoto = `SELECT id, url, thumbnail_url, title, creator, creator_id, shares, created_at FROM photos`

func (db *DB) CreatePhoto(ctx context.Context, photo *model.Photo) error {
	photo.ID = xid.New().String()
	photo.CreatedAt = time.Now().UTC()
	if photo.Reactions == nil {
		photo.Reactions = model.NewReactions()
	}
	if photo.Comments == nil {
		photo.Comments = []model.Comment{}
	}

	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO photos (id, url, thumbnail_url, title, creator, creator_id, shares, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			photo.ID, photo.URL, photo.ThumbnailURL, photo.Title,
			photo.Creator, photo.CreatorID, photo.Shares, photo.CreatedAt,
		); err != nil {
			return fmt.Errorf("postgres: inserting photo: %w", err)
		}

		batch := &pgx.Batch{}
		for kind, n := range photo.Reactions {
			batch.Queue(`INSERT INTO photo_reactions (photo_id, kind, total) VALUES ($1, $2, $3)`,
				photo.ID, kind, n)
		}
		for i := range photo.Comments {
			c := &photo.Comments[i]
			if c.CreatedAt.IsZero() {
				c.CreatedAt = photo.CreatedAt
			}
			batch.Queue(`INSERT INTO photo_comments (photo_id, user_name, text, created_at) VALUES ($1, $2, $3, $4)`,
				photo.ID, c.User, c.Text, c.CreatedAt)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: inserting counters for photo %s: %w", photo.ID, err)
		}
		return nil
	})
}

func (db *DB) ListPhotos(ctx context.Context) ([]model.Photo, error) {
	rows, err := db.pool.Query(ctx, selectPhoto+` ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing photos: %w", err)
	}
	photos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Photo, error) {
		p, err := scanPhoto(row)
		if err != nil {
			return model.Photo{}, err
		}
		return *p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning photos: %w", err)
	}

	index := make(map[string]int, len(photos))
	for i := range photos {
		index[photos[i].ID] = i
	}

	reactions, err := db.pool.Query(ctx, `SELECT photo_id, kind, total FROM photo_reactions`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing reactions: %w", err)
	}
	var photoID, kind string
	var n int
	_, err = pgx.ForEachRow(reactions, []any{&photoID, &kind, &n}, func() error {
		if i, ok := index[photoID]; ok {
			photos[i].Reactions[kind] = n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning reactions: %w", err)
	}

	comments, err := db.pool.Query(ctx,
		`SELECT photo_id, user_name, text, created_at FROM photo_comments ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing comments: %w", err)
	}
	var c model.Comment
	_, err = pgx.ForEachRow(comments, []any{&photoID, &c.User, &c.Text, &c.CreatedAt}, func() error {
		if i, ok := index[photoID]; ok {
			photos[i].Comments = append(photos[i].Comments, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning comments: %w", err)
	}

	return photos, nil
}

func (db *DB) GetPhoto(ctx context.Context, id string) (*model.Photo, error) {
	p, err := scanPhoto(db.pool.QueryRow(ctx, selectPhoto+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("photo", id)
		}
		return nil, err
	}

	if p.Reactions, err = reactions(ctx, db.pool, id); err != nil {
		return nil, err
	}
	if p.Comments, err = comments(ctx, db.pool, id); err != nil {
		return nil, err
	}
	return p, nil
}

// AddReaction locks the photo row first so the existence check and the
// upsert can't race with anything else touching the same photo.
func (db *DB) AddReaction(ctx context.Context, id, kind string) (map[string]int, error) {
	var out map[string]int
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if err := lockPhoto(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO photo_reactions (photo_id, kind, total) VALUES ($1, $2, 1)
			 ON CONFLICT (photo_id, kind) DO UPDATE SET total = photo_reactions.total + 1`,
			id, kind,
		); err != nil {
			return fmt.Errorf("postgres: reacting to photo %s: %w", id, err)
		}
		var err error
		out, err = reactions(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (db *DB) AddComment(ctx context.Context, id string, comment model.Comment) ([]model.Comment, error) {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}

	var out []model.Comment
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if err := lockPhoto(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO photo_comments (photo_id, user_name, text, created_at) VALUES ($1, $2, $3, $4)`,
			id, comment.User, comment.Text, comment.CreatedAt,
		); err != nil {
			return fmt.Errorf("postgres: commenting on photo %s: %w", id, err)
		}
		var err error
		out, err = comments(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (db *DB) IncrementShares(ctx context.Context, id string) (int, error) {
	var shares int
	err := db.pool.QueryRow(ctx,
		`UPDATE photos SET shares = shares + 1 WHERE id = $1 RETURNING shares`, id,
	).Scan(&shares)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NotFound("photo", id)
		}
		return 0, fmt.Errorf("postgres: sharing photo %s: %w", id, err)
	}
	return shares, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanPhoto(row pgx.Row) (*model.Photo, error) {
	p := model.Photo{
		Reactions: map[string]int{},
		Comments:  []model.Comment{},
	}
	err := row.Scan(&p.ID, &p.URL, &p.ThumbnailURL, &p.Title, &p.Creator, &p.CreatorID, &p.Shares, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: scanning photo row: %w", err)
	}
	return &p, nil
}

func lockPhoto(ctx context.Context, tx pgx.Tx, id string) error {
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM photos WHERE id = $1 FOR UPDATE`, id).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("photo", id)
		}
		return fmt.Errorf("postgres: locking photo %s: %w", id, err)
	}
	return nil
}

func reactions(ctx context.Context, q querier, id string) (map[string]int, error) {
	rows, err := q.Query(ctx, `SELECT kind, total FROM photo_reactions WHERE photo_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: reading reactions of photo %s: %w", id, err)
	}
	out := map[string]int{}
	var kind string
	var n int
	if _, err := pgx.ForEachRow(rows, []any{&kind, &n}, func() error {
		out[kind] = n
		return nil
	}); err != nil {
		return nil, fmt.Errorf("postgres: scanning reactions of photo %s: %w", id, err)
	}
	return out, nil
}

func comments(ctx context.Context, q querier, id string) ([]model.Comment, error) {
	rows, err := q.Query(ctx,
		`SELECT user_name, text, created_at FROM photo_comments WHERE photo_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: reading comments of photo %s: %w", id, err)
	}
	out := []model.Comment{}
	var c model.Comment
	if _, err := pgx.ForEachRow(rows, []any{&c.User, &c.Text, &c.CreatedAt}, func() error {
		out = append(out, c)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("postgres: scanning comments of photo %s: %w", id, err)
	}
	return out, nil
}
