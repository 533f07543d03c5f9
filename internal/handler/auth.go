package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/photosphere/internal/model"
	"github.com/sakif/photosphere/internal/service"
)

// Authenticator is what AuthHandler needs from the auth service.
type Authenticator interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandler serves account registration, login and the current account.
type AuthHandler struct {
	auth   Authenticator
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth Authenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// HandleRegister creates an account.
//
// HTTP: POST /api/register
// REQUEST BODY: {"name":"Alice","email":"alice@x.com","password":"...","role":"creator"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.auth.Register(r.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	}); err != nil {
		logFailure(h.logger, "registration failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Registered"})
}

// HandleLogin exchanges credentials for a bearer token.
//
// HTTP: POST /api/login
// REQUEST BODY: {"email":"alice@x.com","password":"..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		logFailure(h.logger, "login failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: res.Token, Role: res.Role})
}

// HandleMe returns the authenticated caller's account.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), who.UserID)
	if err != nil {
		logFailure(h.logger, "failed to load current user", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
