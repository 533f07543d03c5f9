// Package memory implements the repository interfaces in process memory.
//
// This is the default store: nothing survives a restart. All state sits
// behind one RWMutex because net/http serves requests on parallel goroutines
// and counter increments are read-modify-write.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/photosphere/internal/apperror"
	"github.com/sakif/photosphere/internal/model"
	"github.com/sakif/photosphere/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store holds users keyed by email and photos in feed order (newest first).
type Store struct {
	mu      sync.RWMutex
	users   map[string]*model.User // email -> user
	byID    map[string]*model.User // id -> user
	photos  []*model.Photo
	photoIx map[string]*model.Photo
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:   make(map[string]*model.User),
		byID:    make(map[string]*model.User),
		photoIx: make(map[string]*model.Photo),
	}
}

// Close is a no-op; it exists to satisfy repository.Store.
func (s *Store) Close() error { return nil }

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	key := strings.ToLower(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[key]; exists {
		return apperror.Duplicate("user", user.Email)
	}

	user.ID = xid.New().String()
	user.CreatedAt = time.Now().UTC()

	stored := *user
	s.users[key] = &stored
	s.byID[stored.ID] = &stored
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	out := *u
	return &out, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	out := *u
	return &out, nil
}

func (s *Store) CreatePhoto(_ context.Context, photo *model.Photo) error {
	photo.ID = xid.New().String()
	photo.CreatedAt = time.Now().UTC()
	if photo.Reactions == nil {
		photo.Reactions = model.NewReactions()
	}
	if photo.Comments == nil {
		photo.Comments = []model.Comment{}
	}

	stored := photo.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Prepend: the feed is newest first.
	s.photos = append([]*model.Photo{stored}, s.photos...)
	s.photoIx[stored.ID] = stored
	return nil
}

func (s *Store) ListPhotos(_ context.Context) ([]model.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Photo, 0, len(s.photos))
	for _, p := range s.photos {
		out = append(out, *p.Clone())
	}
	return out, nil
}

func (s *Store) GetPhoto(_ context.Context, id string) (*model.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.photoIx[id]
	if !ok {
		return nil, apperror.NotFound("photo", id)
	}
	return p.Clone(), nil
}

func (s *Store) AddReaction(_ context.Context, id, kind string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.photoIx[id]
	if !ok {
		return nil, apperror.NotFound("photo", id)
	}
	p.Reactions[kind]++
	return model.CloneReactions(p.Reactions), nil
}

func (s *Store) AddComment(_ context.Context, id string, comment model.Comment) ([]model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.photoIx[id]
	if !ok {
		return nil, apperror.NotFound("photo", id)
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	p.Comments = append(p.Comments, comment)
	return model.CloneComments(p.Comments), nil
}

func (s *Store) IncrementShares(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.photoIx[id]
	if !ok {
		return 0, apperror.NotFound("photo", id)
	}
	p.Shares++
	return p.Shares, nil
}
