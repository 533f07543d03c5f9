// Package repotest is a conformance suite every repository.Store
// implementation runs from its own tests.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photosphere/internal/apperror"
	"github.com/sakif/photosphere/internal/model"
	"github.com/sakif/photosphere/internal/repository"
)

// Run exercises newStore with the full suite. newStore must return a fresh,
// empty store for every call; the suite closes it.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Helper()

	fresh := func(t *testing.T) repository.Store {
		t.Helper()
		s := newStore(t)
		t.Cleanup(func() { s.Close() })
		return s
	}

	t.Run("CreateUser", func(t *testing.T) { testCreateUser(t, fresh(t)) })
	t.Run("CreateUser_DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, fresh(t)) })
	t.Run("GetUser_NotFound", func(t *testing.T) { testGetUserNotFound(t, fresh(t)) })
	t.Run("CreatePhoto_Defaults", func(t *testing.T) { testCreatePhotoDefaults(t, fresh(t)) })
	t.Run("ListPhotos_NewestFirst", func(t *testing.T) { testListNewestFirst(t, fresh(t)) })
	t.Run("AddReaction_Counts", func(t *testing.T) { testAddReaction(t, fresh(t)) })
	t.Run("AddReaction_NewKind", func(t *testing.T) { testAddReactionNewKind(t, fresh(t)) })
	t.Run("AddComment_Order", func(t *testing.T) { testAddCommentOrder(t, fresh(t)) })
	t.Run("IncrementShares", func(t *testing.T) { testIncrementShares(t, fresh(t)) })
	t.Run("UnknownPhoto_NoMutation", func(t *testing.T) { testUnknownPhoto(t, fresh(t)) })
	t.Run("ConcurrentReactions", func(t *testing.T) { testConcurrentReactions(t, fresh(t)) })
	t.Run("ReturnedStateIsIsolated", func(t *testing.T) { testIsolation(t, fresh(t)) })
}

// CreateTestPhoto inserts a photo with default counters.
func CreateTestPhoto(t *testing.T, s repository.PhotoRepository, title string) *model.Photo {
	t.Helper()
	p := &model.Photo{
		URL:       "data:image/png;base64,AAAA",
		Title:     title,
		Creator:   "alice",
		CreatorID: "u-alice",
		Reactions: model.NewReactions(),
	}
	require.NoError(t, s.CreatePhoto(context.Background(), p))
	return p
}

func testCreateUser(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := &model.User{Name: "alice", Email: "a@x.com", Role: model.RoleCreator, PasswordHash: "hash"}

	require.NoError(t, s.CreateUser(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	byEmail, err := s.GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, "alice", byEmail.Name)
	assert.Equal(t, model.RoleCreator, byEmail.Role)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	byID, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byID.Email)
}

func testDuplicateEmail(t *testing.T, s repository.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &model.User{Name: "a", Email: "a@x.com", PasswordHash: "h"}))

	err := s.CreateUser(ctx, &model.User{Name: "b", Email: "a@x.com", PasswordHash: "h"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrDuplicate)
}

func testGetUserNotFound(t *testing.T, s repository.Store) {
	ctx := context.Background()

	_, err := s.GetUserByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = s.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func testCreatePhotoDefaults(t *testing.T, s repository.Store) {
	p := CreateTestPhoto(t, s, "T")
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := s.GetPhoto(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "alice", got.Creator)
	assert.Equal(t, "data:image/png;base64,AAAA", got.URL)
	assert.Equal(t, model.NewReactions(), got.Reactions)
	assert.Empty(t, got.Comments)
	assert.NotNil(t, got.Comments)
	assert.Equal(t, 0, got.Shares)
}

func testListNewestFirst(t *testing.T, s repository.Store) {
	for i := 1; i <= 3; i++ {
		CreateTestPhoto(t, s, fmt.Sprintf("photo-%d", i))
	}

	photos, err := s.ListPhotos(context.Background())
	require.NoError(t, err)
	require.Len(t, photos, 3)
	assert.Equal(t, "photo-3", photos[0].Title)
	assert.Equal(t, "photo-2", photos[1].Title)
	assert.Equal(t, "photo-1", photos[2].Title)
}

func testAddReaction(t *testing.T, s repository.Store) {
	ctx := context.Background()
	p := CreateTestPhoto(t, s, "T")

	var reactions map[string]int
	var err error
	for i := 0; i < 5; i++ {
		reactions, err = s.AddReaction(ctx, p.ID, "like")
		require.NoError(t, err)
	}
	assert.Equal(t, 5, reactions["like"])
	assert.Equal(t, 0, reactions["love"])

	got, err := s.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Reactions["like"])
}

func testAddReactionNewKind(t *testing.T, s repository.Store) {
	p := CreateTestPhoto(t, s, "T")

	reactions, err := s.AddReaction(context.Background(), p.ID, "fire")
	require.NoError(t, err)
	assert.Equal(t, 1, reactions["fire"])
	assert.Len(t, reactions, len(model.DefaultReactionKinds)+1)
}

func testAddCommentOrder(t *testing.T, s repository.Store) {
	ctx := context.Background()
	p := CreateTestPhoto(t, s, "T")

	_, err := s.AddComment(ctx, p.ID, model.Comment{User: "bob", Text: "first"})
	require.NoError(t, err)
	comments, err := s.AddComment(ctx, p.ID, model.Comment{User: "carol", Text: "second"})
	require.NoError(t, err)

	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Text)
	assert.Equal(t, "bob", comments[0].User)
	assert.Equal(t, "second", comments[1].Text)
	assert.Equal(t, "carol", comments[1].User)

	got, err := s.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 2)
	assert.Equal(t, "first", got.Comments[0].Text)
}

func testIncrementShares(t *testing.T, s repository.Store) {
	ctx := context.Background()
	p := CreateTestPhoto(t, s, "T")

	n, err := s.IncrementShares(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.IncrementShares(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testUnknownPhoto(t *testing.T, s repository.Store) {
	ctx := context.Background()
	p := CreateTestPhoto(t, s, "T")

	_, err := s.GetPhoto(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = s.AddReaction(ctx, "missing", "like")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = s.AddComment(ctx, "missing", model.Comment{User: "bob", Text: "hi"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = s.IncrementShares(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	got, err := s.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NewReactions(), got.Reactions)
	assert.Empty(t, got.Comments)
	assert.Equal(t, 0, got.Shares)
}

func testConcurrentReactions(t *testing.T, s repository.Store) {
	ctx := context.Background()
	p := CreateTestPhoto(t, s, "T")

	const workers, perWorker = 8, 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker*2)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := s.AddReaction(ctx, p.ID, "like"); err != nil {
					errs <- err
				}
				if _, err := s.IncrementShares(ctx, p.ID); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, got.Reactions["like"])
	assert.Equal(t, workers*perWorker, got.Shares)
}

func testIsolation(t *testing.T, s repository.Store) {
	ctx := context.Background()
	p := CreateTestPhoto(t, s, "T")

	got, err := s.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	got.Reactions["like"] = 100
	got.Comments = append(got.Comments, model.Comment{User: "x", Text: "y", CreatedAt: time.Now()})

	again, err := s.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Reactions["like"])
	assert.Empty(t, again.Comments)
}
