package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/photosphere/internal/apperror"
	"github.com/sakif/photosphere/internal/auth"
	"github.com/sakif/photosphere/internal/model"
	"github.com/sakif/photosphere/internal/service"
)

// DefaultMaxUploadBytes caps a multipart upload body.
const DefaultMaxUploadBytes int64 = 10 << 20

// multipartMemory is how much of an upload ParseMultipartForm keeps in
// memory before spilling to temp files.
const multipartMemory = 8 << 20

// Photos is what PhotoHandler needs from the photo service.
type Photos interface {
	Feed(ctx context.Context) ([]model.Photo, error)
	Get(ctx context.Context, id string) (*model.Photo, error)
	Upload(ctx context.Context, who model.Identity, in service.UploadInput) (*model.Photo, error)
	React(ctx context.Context, who model.Identity, id, kind string) (map[string]int, error)
	Comment(ctx context.Context, who model.Identity, id, text string) ([]model.Comment, error)
	Share(ctx context.Context, who model.Identity, id string) (int, error)
}

// PhotoHandler serves the feed and photo interactions.
type PhotoHandler struct {
	photos         Photos
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewPhotoHandler creates a PhotoHandler. A non-positive maxUploadBytes
// means DefaultMaxUploadBytes.
func NewPhotoHandler(photos Photos, maxUploadBytes int64, logger *slog.Logger) *PhotoHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &PhotoHandler{photos: photos, maxUploadBytes: maxUploadBytes, logger: logger}
}

type commentRequest struct {
	Text string `json:"text"`
}

// ShareResponse is the body of a successful share.
type ShareResponse struct {
	Shares int `json:"shares"`
}

// HandleList returns the feed, newest first.
//
// HTTP: GET /api/photos
func (h *PhotoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	photos, err := h.photos.Feed(r.Context())
	if err != nil {
		h.logger.Error("failed to list photos", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photos)
}

// HandleGet returns one photo.
//
// HTTP: GET /api/photos/{id}
func (h *PhotoHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	photo, err := h.photos.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		logFailure(h.logger, "failed to get photo", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

// HandleUpload stores a new photo.
//
// HTTP: POST /api/photos
// REQUEST: multipart/form-data with an "image" file part and a "title" field.
func (h *PhotoHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	// Role is checked before the body is read so readers don't pay for
	// uploading a file that will be rejected.
	if !who.IsCreator() {
		writeError(w, apperror.Forbidden("only creators can upload photos"))
		return
	}

	if r.ContentLength > h.maxUploadBytes {
		writeTooLarge(w, h.maxUploadBytes)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeTooLarge(w, h.maxUploadBytes)
			return
		}
		writeBadRequest(w, "request must be multipart/form-data with an image file")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, apperror.ValidationFailed("image", "image is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read upload", slog.String("error", err.Error()))
		writeBadRequest(w, "could not read image")
		return
	}

	photo, err := h.photos.Upload(r.Context(), who, service.UploadInput{
		Title:    r.FormValue("title"),
		Image:    data,
		MIMEType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		logFailure(h.logger, "upload failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, photo)
}

// HandleReact increments a reaction counter.
//
// HTTP: POST /api/photos/{id}/react/{type}
func (h *PhotoHandler) HandleReact(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	reactions, err := h.photos.React(r.Context(), who, chi.URLParam(r, "id"), chi.URLParam(r, "type"))
	if err != nil {
		logFailure(h.logger, "react failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reactions)
}

// HandleComment appends a comment.
//
// HTTP: POST /api/photos/{id}/comment
// REQUEST BODY: {"text": "nice shot"}
func (h *PhotoHandler) HandleComment(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	comments, err := h.photos.Comment(r.Context(), who, chi.URLParam(r, "id"), req.Text)
	if err != nil {
		logFailure(h.logger, "comment failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// HandleShare increments the share counter.
//
// HTTP: POST /api/photos/{id}/share
func (h *PhotoHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	shares, err := h.photos.Share(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		logFailure(h.logger, "share failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ShareResponse{Shares: shares})
}

// identity reads the caller set by auth.RequireAuth. A route mounted
// without the gate gets a 401 instead of acting anonymously.
func identity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	who, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
	}
	return who, ok
}
