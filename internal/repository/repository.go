// Package repository declares the storage contracts used by the service layer.
//
// Implementations live in subpackages (memory, sqlite, postgres). Services
// depend only on these interfaces, so the backing store is chosen once in
// server.New.
package repository

import (
	"context"

	"github.com/sakif/photosphere/internal/model"
)

// UserRepository is the credential store. Email is the unique key.
type UserRepository interface {
	// CreateUser assigns ID and CreatedAt. Returns apperror.ErrDuplicate when
	// the email is already registered.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// PhotoRepository is the photo store. The feed is ordered newest first.
//
// Every mutation is atomic with respect to concurrent callers and returns
// apperror.ErrNotFound, leaving all photos untouched, when the id is unknown.
type PhotoRepository interface {
	// CreatePhoto assigns ID and CreatedAt and puts the photo at the head of the feed.
	CreatePhoto(ctx context.Context, photo *model.Photo) error
	ListPhotos(ctx context.Context) ([]model.Photo, error)
	GetPhoto(ctx context.Context, id string) (*model.Photo, error)
	// AddReaction increments the named counter, creating it at 1 if absent,
	// and returns the full updated reaction map.
	AddReaction(ctx context.Context, id, kind string) (map[string]int, error)
	// AddComment appends and returns the full updated comment list.
	AddComment(ctx context.Context, id string, comment model.Comment) ([]model.Comment, error)
	IncrementShares(ctx context.Context, id string) (int, error)
}

// Store bundles both repositories with a lifecycle, which is what the
// server owns.
type Store interface {
	UserRepository
	PhotoRepository
	Close() error
}
