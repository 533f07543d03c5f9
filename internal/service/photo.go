package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/photosphere/internal/apperror"
	"github.com/sakif/photosphere/internal/events"
	"github.com/sakif/photosphere/internal/media"
	"github.com/sakif/photosphere/internal/model"
	"github.com/sakif/photosphere/internal/repository"
)

// Validation limits.
const (
	MaxTitleLength        = 200
	MaxCommentLength      = 1000
	MaxReactionKindLength = 32
)

// WelcomePhoto is the feed entry inserted by SeedWelcome.
var WelcomePhoto = model.Photo{
	URL:       "https://picsum.photos/900/600",
	Title:     "Welcome to PhotoSphere",
	Creator:   "PhotoSphere Team",
	Reactions: map[string]int{"like": 4, "love": 3, "wow": 2, "sad": 0},
	Comments:  []model.Comment{{User: "Admin", Text: "Enjoy the flow 🚀"}},
	Shares:    2,
}

// PhotoService handles the feed and every interaction with a photo.
type PhotoService struct {
	repo          repository.PhotoRepository
	events        events.Publisher
	thumbnailSize uint
	logger        *slog.Logger
}

// PhotoOption configures optional PhotoService behaviour.
type PhotoOption func(*PhotoService)

// WithPublisher sends feed events to p after each committed change.
func WithPublisher(p events.Publisher) PhotoOption {
	return func(s *PhotoService) { s.events = p }
}

// WithThumbnails enables thumbnail generation at uploads, bounded to size
// pixels on the longer side. Zero disables thumbnails.
func WithThumbnails(size uint) PhotoOption {
	return func(s *PhotoService) { s.thumbnailSize = size }
}

// NewPhotoService creates a PhotoService. Without options no events are
// published and no thumbnails are generated.
func NewPhotoService(repo repository.PhotoRepository, logger *slog.Logger, opts ...PhotoOption) *PhotoService {
	s := &PhotoService{
		repo:   repo,
		events: events.Nop{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadInput is a new photo as received from the client.
type UploadInput struct {
	Title    string
	Image    []byte
	MIMEType string // declared by the client; the content is always sniffed
}

// Feed returns every photo, newest first.
func (s *PhotoService) Feed(ctx context.Context) ([]model.Photo, error) {
	photos, err := s.repo.ListPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/photo: listing photos: %w", err)
	}
	return photos, nil
}

// Get returns one photo.
func (s *PhotoService) Get(ctx context.Context, id string) (*model.Photo, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "photo ID is required")
	}
	return s.repo.GetPhoto(ctx, id)
}

// Upload stores a new photo at the head of the feed.
//
// Only creators may upload. The image is kept inline as a data URI; when
// thumbnails are enabled a downscaled JPEG is added on a best-effort basis.
func (s *PhotoService) Upload(ctx context.Context, who model.Identity, in UploadInput) (*model.Photo, error) {
	if !who.IsCreator() {
		return nil, apperror.Forbidden("only creators can upload photos")
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if len(in.Image) == 0 {
		return nil, apperror.ValidationFailed("image", "image is required")
	}

	mimeType, err := media.DetectMIME(in.Image, in.MIMEType)
	if err != nil {
		return nil, apperror.ValidationFailed("image", "file must be an image")
	}

	photo := &model.Photo{
		URL:       media.DataURI(mimeType, in.Image),
		Title:     title,
		Creator:   who.Name,
		CreatorID: who.UserID,
		Reactions: model.NewReactions(),
		Comments:  []model.Comment{},
	}

	if s.thumbnailSize > 0 {
		thumb, err := media.Thumbnail(in.Image, s.thumbnailSize)
		if err != nil {
			s.logger.Warn("thumbnail skipped",
				slog.String("mime", mimeType),
				slog.String("error", err.Error()),
			)
		} else {
			photo.ThumbnailURL = thumb
		}
	}

	if err := s.repo.CreatePhoto(ctx, photo); err != nil {
		s.logger.Error("failed to create photo",
			slog.String("creator", who.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/photo: creating photo: %w", err)
	}

	s.logger.Info("photo uploaded",
		slog.String("id", photo.ID),
		slog.String("creator", who.UserID),
		slog.Int("bytes", len(in.Image)),
	)

	s.publish(ctx, events.PhotoCreated, photo.ID, who.Name, map[string]string{
		"title":   photo.Title,
		"creator": photo.Creator,
	})
	return photo, nil
}

// React increments the named reaction counter and returns all counters.
// Kinds outside the defaults are created on first use.
func (s *PhotoService) React(ctx context.Context, who model.Identity, id, kind string) (map[string]int, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return nil, apperror.ValidationFailed("type", "reaction type is required")
	}
	if utf8.RuneCountInString(kind) > MaxReactionKindLength {
		return nil, apperror.ValidationFailed("type",
			fmt.Sprintf("reaction type must be %d characters or less", MaxReactionKindLength))
	}

	reactions, err := s.repo.AddReaction(ctx, id, kind)
	if err != nil {
		return nil, wrapPhotoErr("reacting to", id, err)
	}

	s.publish(ctx, events.PhotoReacted, id, who.Name, reactions)
	return reactions, nil
}

// Comment appends a comment by the caller and returns the whole thread in
// insertion order.
func (s *PhotoService) Comment(ctx context.Context, who model.Identity, id, text string) ([]model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "comment text is required")
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}

	comment := model.Comment{
		User:      who.Name,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	comments, err := s.repo.AddComment(ctx, id, comment)
	if err != nil {
		return nil, wrapPhotoErr("commenting on", id, err)
	}

	s.publish(ctx, events.PhotoCommented, id, who.Name, comment)
	return comments, nil
}

// Share increments the share counter and returns the new value.
func (s *PhotoService) Share(ctx context.Context, who model.Identity, id string) (int, error) {
	shares, err := s.repo.IncrementShares(ctx, id)
	if err != nil {
		return 0, wrapPhotoErr("sharing", id, err)
	}

	s.publish(ctx, events.PhotoShared, id, who.Name, map[string]int{"shares": shares})
	return shares, nil
}

// SeedWelcome inserts WelcomePhoto into an otherwise empty feed.
func (s *PhotoService) SeedWelcome(ctx context.Context) (*model.Photo, error) {
	photo := WelcomePhoto.Clone()
	if err := s.repo.CreatePhoto(ctx, photo); err != nil {
		return nil, fmt.Errorf("service/photo: seeding welcome photo: %w", err)
	}
	s.logger.Info("welcome photo seeded", slog.String("id", photo.ID))
	return photo, nil
}

func (s *PhotoService) publish(ctx context.Context, typ, photoID, actor string, data any) {
	s.events.Publish(ctx, events.Event{
		Type:      typ,
		PhotoID:   photoID,
		Actor:     actor,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// wrapPhotoErr passes domain errors through untouched so the handler can map
// them, and adds context to anything else.
func wrapPhotoErr(action, id string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("service/photo: %s photo %s: %w", action, id, err)
}
