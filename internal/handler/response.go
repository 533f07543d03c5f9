package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so every error body
// has the same shape:
//   {"error": "not_found", "message": "photo not found with id abc123"}

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/photosphere/internal/apperror"
)

// maxJSONBytes caps JSON request bodies.
const maxJSONBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind, e.g. "not_found"
	Message string `json:"message"` // human-readable description
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be set before the body is written.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to its HTTP status and error kind.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrDuplicate):
		return http.StatusBadRequest, "duplicate_user"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrInvalidToken):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to the appropriate HTTP status code and
// sends it. errors.As walks the wrap chain, so services may add context with
// fmt.Errorf("...: %w", err) and still get the right status.
//
// Unknown errors become a generic 500: raw messages may carry SQL or file
// paths and never reach the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind := errorStatus(err)
		writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// writeBadRequest reports a malformed request that never reached a service.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: message})
}

// writeTooLarge reports a body over its size cap.
func writeTooLarge(w http.ResponseWriter, limit int64) {
	writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
		Error:   "payload_too_large",
		Message: fmt.Sprintf("request body must be %d bytes or less", limit),
	})
}

// decodeJSON reads a single JSON object from a size-capped body. It writes
// the error response itself and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(body)

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeTooLarge(w, maxJSONBytes)
		case errors.Is(err, io.EOF):
			writeBadRequest(w, "request body is required")
		default:
			writeBadRequest(w, "invalid JSON body")
		}
		return false
	}
	return true
}

// logFailure logs client errors at debug and everything else at error.
func logFailure(logger *slog.Logger, msg string, err error) {
	if status, _ := errorStatus(err); status < http.StatusInternalServerError {
		logger.Debug(msg, slog.String("error", err.Error()))
		return
	}
	logger.Error(msg, slog.String("error", err.Error()))
}
