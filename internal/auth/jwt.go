// Package auth provides bearer-token issuing and verification, password
// hashing, and the HTTP gate that protects identity-requiring routes.
//
// AUTHENTICATION FLOW OVERVIEW:
// 1. POST /api/login verifies email + password against the bcrypt hash
// 2. The server issues a signed JWT carrying {user id, name, role}
// 3. The client sends it back as "Authorization: Bearer <token>"
// 4. RequireAuth validates the JWT and puts the Identity in the request context
//
// Tokens are stateless: there is no server-side session table and no
// revocation list. Validity is the signature plus the expiry check, so every
// token MUST expire.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sakif/photosphere/internal/apperror"
	"github.com/sakif/photosphere/internal/model"
)

const (
	// DefaultTokenTTL is the single expiry policy for issued tokens.
	DefaultTokenTTL = 2 * time.Hour

	issuer          = "photosphere"
	minSecretLength = 16
)

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens. There is no
// built-in fallback secret: the caller must supply one.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and lifetime.
// A non-positive ttl means DefaultTokenTTL.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL reports how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload. "sub" carries the user ID; name and role ride
// alongside so handlers never need a user lookup.
type claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a token for the identity with the service's TTL.
func (s *TokenService) Issue(id model.Identity) (string, error) {
	return s.IssueWithDuration(id, s.ttl)
}

// IssueWithDuration signs a token with a custom lifetime. Used in tests to
// mint already-expired tokens.
func (s *TokenService) IssueWithDuration(id model.Identity, d time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("auth: identity has no user ID")
	}

	now := time.Now()
	c := claims{
		Name: id.Name,
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify parses and verifies a JWT string and returns the identity it carries.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid and the algorithm is HS256 (no "none" tokens)
//   - Token carries an expiry and it is in the future
//   - Issuer matches "photosphere"
//
// Every failure is an apperror.ErrInvalidToken.
func (s *TokenService) Verify(tokenStr string) (model.Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Identity{}, apperror.InvalidToken("token expired")
		}
		return model.Identity{}, &apperror.AppError{
			Err:     fmt.Errorf("%w: %w", apperror.ErrInvalidToken, err),
			Message: "invalid token",
		}
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return model.Identity{}, apperror.InvalidToken("invalid token claims")
	}
	if c.Subject == "" {
		return model.Identity{}, apperror.InvalidToken("token has no subject")
	}

	return model.Identity{UserID: c.Subject, Name: c.Name, Role: c.Role}, nil
}
