package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photosphere/internal/apperror"
	"github.com/sakif/photosphere/internal/events"
	"github.com/sakif/photosphere/internal/events/eventstest"
	"github.com/sakif/photosphere/internal/model"
	"github.com/sakif/photosphere/internal/repository/memory"
)

var (
	creator = model.Identity{UserID: "u-creator", Name: "Carol", Role: model.RoleCreator}
	reader  = model.Identity{UserID: "u-reader", Name: "Rick", Role: model.RoleReader}
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestPhotoService(t *testing.T, opts ...PhotoOption) (*PhotoService, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewPhotoService(store, discardLogger(), opts...), store
}

func upload(t *testing.T, svc *PhotoService, title string) *model.Photo {
	t.Helper()
	p, err := svc.Upload(context.Background(), creator, UploadInput{
		Title: title, Image: testPNG(t, 4, 4), MIMEType: "image/png",
	})
	require.NoError(t, err)
	return p
}

func TestUpload_CreatorGoesToFeedHead(t *testing.T) {
	svc, _ := newTestPhotoService(t)
	upload(t, svc, "first")
	p := upload(t, svc, "second")

	assert.NotEmpty(t, p.ID)
	assert.True(t, strings.HasPrefix(p.URL, "data:image/png;base64,"))
	assert.Equal(t, "Carol", p.Creator)
	assert.Equal(t, "u-creator", p.CreatorID)
	assert.Equal(t, map[string]int{"like": 0, "love": 0, "wow": 0, "sad": 0}, p.Reactions)
	assert.Empty(t, p.Comments)
	assert.Zero(t, p.Shares)
	assert.Empty(t, p.ThumbnailURL, "thumbnails are off by default")

	feed, err := svc.Feed(context.Background())
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, p.ID, feed[0].ID)
	assert.Equal(t, "first", feed[1].Title)
}

func TestUpload_ReaderForbidden(t *testing.T) {
	svc, store := newTestPhotoService(t)

	_, err := svc.Upload(context.Background(), reader, UploadInput{Title: "x", Image: testPNG(t, 2, 2)})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	feed, err := store.ListPhotos(context.Background())
	require.NoError(t, err)
	assert.Empty(t, feed)
}

func TestUpload_Validation(t *testing.T) {
	img := testPNG(t, 2, 2)
	tests := []struct {
		name      string
		in        UploadInput
		wantField string
	}{
		{"missing title", UploadInput{Image: img}, "title"},
		{"blank title", UploadInput{Title: "  ", Image: img}, "title"},
		{"long title", UploadInput{Title: strings.Repeat("t", MaxTitleLength+1), Image: img}, "title"},
		{"missing image", UploadInput{Title: "ok"}, "image"},
		{"not an image", UploadInput{Title: "ok", Image: []byte("plain text, honestly"), MIMEType: "text/plain"}, "image"},
	}

	svc, _ := newTestPhotoService(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), creator, tt.in)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}
}

func TestUpload_SniffsMissingMIME(t *testing.T) {
	svc, _ := newTestPhotoService(t)
	p, err := svc.Upload(context.Background(), creator, UploadInput{
		Title: "sniffed", Image: testPNG(t, 2, 2), MIMEType: "application/octet-stream",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.URL, "data:image/png;base64,"))
}

func TestUpload_Thumbnail(t *testing.T) {
	svc, _ := newTestPhotoService(t, WithThumbnails(8))
	p, err := svc.Upload(context.Background(), creator, UploadInput{
		Title: "big", Image: testPNG(t, 64, 32), MIMEType: "image/png",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.ThumbnailURL, "data:image/jpeg;base64,"))
}

func TestUpload_UndecodableImageSkipsThumbnail(t *testing.T) {
	svc, _ := newTestPhotoService(t, WithThumbnails(8))
	// A PNG signature followed by garbage sniffs as an image but does not
	// decode: the upload still succeeds.
	raw := append([]byte("\x89PNG\r\n\x1a\n"), 0x00, 0x01, 0x02, 0x03)
	p, err := svc.Upload(context.Background(), creator, UploadInput{
		Title: "raw", Image: raw, MIMEType: "image/png",
	})
	require.NoError(t, err)
	assert.Empty(t, p.ThumbnailURL)
	assert.True(t, strings.HasPrefix(p.URL, "data:image/png;base64,"))
}

func TestUpload_DeclaredTypeMustMatchContent(t *testing.T) {
	svc, _ := newTestPhotoService(t)
	_, err := svc.Upload(context.Background(), creator, UploadInput{
		Title: "fake", Image: []byte("<script>alert(1)</script>"), MIMEType: "image/png",
	})
	require.ErrorIs(t, err, apperror.ErrValidation)

	p, err := svc.Upload(context.Background(), creator, UploadInput{
		Title: "mislabelled", Image: testPNG(t, 2, 2), MIMEType: "image/gif",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.URL, "data:image/png;base64,"))
}

func TestReact_CountsEveryCall(t *testing.T) {
	svc, _ := newTestPhotoService(t)
	p := upload(t, svc, "p")

	const n = 5
	var got map[string]int
	for i := 0; i < n; i++ {
		var err error
		got, err = svc.React(context.Background(), reader, p.ID, "like")
		require.NoError(t, err)
	}
	assert.Equal(t, n, got["like"])
	assert.Equal(t, 0, got["love"])
}

func TestReact_NewKindStartsAtOne(t *testing.T) {
	svc, _ := newTestPhotoService(t)
	p := upload(t, svc, "p")

	got, err := svc.React(context.Background(), reader, p.ID, " fire ")
	require.NoError(t, err)
	assert.Equal(t, 1, got["fire"])
	assert.Len(t, got, 5)
}

func TestReact_Validation(t *testing.T) {
	svc, _ := newTestPhotoService(t)
	p := upload(t, svc, "p")

	_, err := svc.React(context.Background(), reader, p.ID, "  ")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.React(context.Background(), reader, p.ID, strings.Repeat("k", MaxReactionKindLength+1))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestReact_Concurrent(t *testing.T) {
	svc, _ := newTestPhotoService(t)
	p := upload(t, svc, "p")

	const workers, perWorker = 10, 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := svc.React(context.Background(), reader, p.ID, "love")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, got.Reactions["love"])
}

func TestComment_OrderAndAuthor(t *testing.T) {
	svc, _ := newTestPhotoService(t)
	p := upload(t, svc, "p")

	_, err := svc.Comment(context.Background(), reader, p.ID, "first")
	require.NoError(t, err)
	comments, err := svc.Comment(context.Background(), creator, p.ID, "  second  ")
	require.NoError(t, err)

	require.Len(t, comments, 2)
	assert.Equal(t, "Rick", comments[0].User)
	assert.Equal(t, "first", comments[0].Text)
	assert.Equal(t, "Carol", comments[1].User)
	assert.Equal(t, "second", comments[1].Text)
	assert.False(t, comments[1].CreatedAt.IsZero())
}

func TestComment_Validation(t *testing.T) {
	svc, _ := newTestPhotoService(t)
	p := upload(t, svc, "p")

	_, err := svc.Comment(context.Background(), reader, p.ID, " \n ")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Comment(context.Background(), reader, p.ID, strings.Repeat("c", MaxCommentLength+1))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestShare_Increments(t *testing.T) {
	svc, _ := newTestPhotoService(t)
	p := upload(t, svc, "p")

	n, err := svc.Share(context.Background(), reader, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.Share(context.Background(), reader, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUnknownPhoto_NotFoundWithoutMutation(t *testing.T) {
	svc, _ := newTestPhotoService(t)
	p := upload(t, svc, "p")
	before, err := svc.Feed(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = svc.React(ctx, reader, "missing", "like")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = svc.Comment(ctx, reader, "missing", "hello")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = svc.Share(ctx, reader, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	after, err := svc.Feed(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, p.ID, after[0].ID)
}

func TestGet_EmptyID(t *testing.T) {
	svc, _ := newTestPhotoService(t)
	_, err := svc.Get(context.Background(), " ")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestSeedWelcome(t *testing.T) {
	svc, _ := newTestPhotoService(t)

	p, err := svc.SeedWelcome(context.Background())
	require.NoError(t, err)

	feed, err := svc.Feed(context.Background())
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, p.ID, feed[0].ID)
	assert.Equal(t, "Welcome to PhotoSphere", feed[0].Title)
	assert.Equal(t, 4, feed[0].Reactions["like"])
	assert.Equal(t, 2, feed[0].Shares)
	require.Len(t, feed[0].Comments, 1)
	assert.Equal(t, "Admin", feed[0].Comments[0].User)

	// The template itself must stay untouched.
	assert.Empty(t, WelcomePhoto.ID)
}

func TestEvents_PublishedAfterEachChange(t *testing.T) {
	rec := eventstest.NewRecorder(16)
	svc, _ := newTestPhotoService(t, WithPublisher(rec))

	p := upload(t, svc, "p")
	_, err := svc.React(context.Background(), reader, p.ID, "wow")
	require.NoError(t, err)
	_, err = svc.Comment(context.Background(), reader, p.ID, "nice")
	require.NoError(t, err)
	_, err = svc.Share(context.Background(), reader, p.ID)
	require.NoError(t, err)

	got := rec.Events()
	require.Len(t, got, 4)
	wantTypes := []string{events.PhotoCreated, events.PhotoReacted, events.PhotoCommented, events.PhotoShared}
	for i, e := range got {
		assert.Equal(t, wantTypes[i], e.Type)
		assert.Equal(t, p.ID, e.PhotoID)
		assert.False(t, e.Timestamp.IsZero())
	}
	assert.Equal(t, "Rick", got[1].Actor)
}

func TestEvents_NotPublishedOnFailure(t *testing.T) {
	rec := eventstest.NewRecorder(4)
	svc, _ := newTestPhotoService(t, WithPublisher(rec))

	_, err := svc.React(context.Background(), reader, "missing", "like")
	require.Error(t, err)
	_, err = svc.Upload(context.Background(), reader, UploadInput{Title: "x", Image: []byte{1}})
	require.Error(t, err)

	assert.Empty(t, rec.Events())
}

// brokenPhotoRepo simulates a storage outage on every call.
type brokenPhotoRepo struct{ err error }

func (b brokenPhotoRepo) CreatePhoto(context.Context, *model.Photo) error {
	return b.err
}

func (b brokenPhotoRepo) ListPhotos(context.Context) ([]model.Photo, error) {
	return nil, b.err
}

func (b brokenPhotoRepo) GetPhoto(context.Context, string) (*model.Photo, error) {
	return nil, b.err
}

func (b brokenPhotoRepo) AddReaction(context.Context, string, string) (map[string]int, error) {
	return nil, b.err
}

func (b brokenPhotoRepo) AddComment(context.Context, string, model.Comment) ([]model.Comment, error) {
	return nil, b.err
}

func (b brokenPhotoRepo) IncrementShares(context.Context, string) (int, error) {
	return 0, b.err
}

func TestStorageFailuresAreWrapped(t *testing.T) {
	dbErr := errors.New("database is locked")
	svc := NewPhotoService(brokenPhotoRepo{err: dbErr}, discardLogger())
	ctx := context.Background()

	_, err := svc.Feed(ctx)
	assert.ErrorIs(t, err, dbErr)

	_, err = svc.Upload(ctx, creator, UploadInput{Title: "t", Image: testPNG(t, 2, 2)})
	assert.ErrorIs(t, err, dbErr)

	_, err = svc.React(ctx, reader, "p", "like")
	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "service/photo")

	_, err = svc.Share(ctx, reader, "p")
	assert.ErrorIs(t, err, dbErr)
}
