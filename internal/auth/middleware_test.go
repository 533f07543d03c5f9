package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photosphere/internal/auth"
	"github.com/sakif/photosphere/internal/model"
)

func newGate(t *testing.T) (*auth.TokenService, http.Handler, *model.Identity) {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", 0)
	require.NoError(t, err)

	seen := &model.Identity{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			t.Error("IdentityFromContext() returned ok=false behind the gate")
		}
		*seen = id
		w.WriteHeader(http.StatusNoContent)
	})

	return ts, auth.RequireAuth(ts)(next), seen
}

func TestRequireAuth(t *testing.T) {
	ts, gate, _ := newGate(t)
	valid, err := ts.Issue(model.Identity{UserID: "u1", Name: "bob", Role: model.RoleReader})
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{"missing header", "", http.StatusUnauthorized, "unauthorized"},
		{"wrong scheme", "Basic " + valid, http.StatusForbidden, "forbidden"},
		{"no token", "Bearer ", http.StatusForbidden, "forbidden"},
		{"garbage token", "Bearer abc.def.ghi", http.StatusForbidden, "forbidden"},
		{"valid token", "Bearer " + valid, http.StatusNoContent, ""},
		{"lowercase scheme", "bearer " + valid, http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/photos/x/share", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			gate.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantError != "" {
				assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
				var body map[string]string
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
				assert.Equal(t, tt.wantError, body["error"])
			}
		})
	}
}

func TestRequireAuth_AttachesIdentity(t *testing.T) {
	ts, gate, seen := newGate(t)
	want := model.Identity{UserID: "u1", Name: "bob", Role: model.RoleReader}
	token, err := ts.Issue(want)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	gate.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, want, *seen)
}

func TestRequireAuth_ExpiredTokenIsForbidden(t *testing.T) {
	ts, gate, _ := newGate(t)
	token, err := ts.IssueWithDuration(model.Identity{UserID: "u1"}, -time.Second)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	gate.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestIdentityFromContext_Anonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := auth.IdentityFromContext(req.Context())
	assert.False(t, ok)
}
