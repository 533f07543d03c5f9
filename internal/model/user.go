// Package model defines the data structures used throughout the application.
package model

import "time"

// Roles. Any role other than RoleCreator is treated as a plain viewer.
const (
	RoleCreator = "creator"
	RoleReader  = "reader"
)

// User represents a registered account.
//
// Email is the unique key. PasswordHash holds the bcrypt output and is
// never serialized.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the caller identity carried by a bearer token.
type Identity struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// IsCreator reports whether the identity may upload photos.
func (i Identity) IsCreator() bool {
	return i.Role == RoleCreator
}
