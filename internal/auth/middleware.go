package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sakif/photosphere/internal/model"
)

// contextKey is unexported so no other package can read or shadow the
// identity stored by RequireAuth.
type contextKey string

const identityKey contextKey = "identity"

// Verifier is what the gate needs from a token service.
type Verifier interface {
	Verify(token string) (model.Identity, error)
}

// RequireAuth is the gate for identity-requiring routes.
//
// It reads "Authorization: Bearer <token>":
//   - no header at all          → 401 unauthorized
//   - malformed header or token → 403 forbidden
//
// On success the decoded Identity is stored in the request context. The gate
// is single-pass: no refresh, no retry.
func RequireAuth(tokens Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeGateError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}

			token, ok := bearerToken(header)
			if !ok {
				writeGateError(w, http.StatusForbidden, "forbidden", "malformed authorization header")
				return
			}

			id, err := tokens.Verify(token)
			if err != nil {
				writeGateError(w, http.StatusForbidden, "forbidden", "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller identity set by RequireAuth.
// ok is false on routes that are not behind the gate.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok && id.UserID != ""
}

// bearerToken extracts the token from "Bearer <token>". The scheme is
// case-insensitive per RFC 6750.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeGateError mirrors the handler package's error body. The handler
// package imports auth, so it can't be reused here.
func writeGateError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}
