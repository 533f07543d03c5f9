// Package service holds the business rules of PhotoSphere.
//
// Handlers parse HTTP and call into this package; this package validates
// input, enforces roles and talks to the repositories. Nothing here imports
// net/http:
//
//	AuthHandler  → AuthService  → UserRepository
//	             ↘ TokenService (JWT), PasswordService (bcrypt)
//	PhotoHandler → PhotoService → PhotoRepository
//	                            ↘ events.Publisher (live feed, queue)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/photosphere/internal/apperror"
	"github.com/sakif/photosphere/internal/auth"
	"github.com/sakif/photosphere/internal/model"
	"github.com/sakif/photosphere/internal/repository"
)

const (
	MaxNameLength  = 80
	MaxEmailLength = 254
)

// AuthService handles registration, login and token verification.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// RegisterInput is the account being created. Role may be empty.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// LoginResult bundles the issued token with the account it belongs to.
type LoginResult struct {
	Token string
	Role  string
	User  *model.User
}

// Register creates a new account.
//
// The email is trimmed and lowercased before the uniqueness check, so
// "Alice@X.com" and "alice@x.com" are the same account. An empty role
// registers a reader. The password is stored only as a bcrypt hash.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	role := strings.ToLower(strings.TrimSpace(in.Role))

	switch {
	case name == "":
		return nil, apperror.ValidationFailed("name", "name is required")
	case utf8.RuneCountInString(name) > MaxNameLength:
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	case email == "":
		return nil, apperror.ValidationFailed("email", "email is required")
	case len(email) > MaxEmailLength || !strings.Contains(email, "@"):
		return nil, apperror.ValidationFailed("email", "invalid email format")
	case in.Password == "":
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	if role == "" {
		role = model.RoleReader
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", err.Error())
		}
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("role", user.Role),
	)
	return user, nil
}

// Login verifies credentials and issues a bearer token.
//
// An unknown email and a wrong password produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.InvalidCredentials()
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Debug("login rejected", slog.String("userID", user.ID))
		return nil, apperror.InvalidCredentials()
	}

	token, err := s.tokens.Issue(model.Identity{
		UserID: user.ID,
		Name:   user.Name,
		Role:   user.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return &LoginResult{Token: token, Role: user.Role, User: user}, nil
}

// CurrentUser returns the account behind an authenticated identity.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: loading user %s: %w", userID, err)
	}
	return user, nil
}

// VerifyToken validates a bearer token and returns the identity it carries.
func (s *AuthService) VerifyToken(token string) (model.Identity, error) {
	return s.tokens.Verify(token)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
