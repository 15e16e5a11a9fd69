package models

import (
	"strings"

	"chat-sync/internal/keys"
)

// User is the signup payload of a chat user.
type User struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
}

// SafeEmail returns the sanitized email used as the user's store key.
func (u User) SafeEmail() string {
	return keys.SafeEmail(u.Email)
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserRecord is the stored shape of the user record fields.
type UserRecord struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DirectoryEntry is one element of the global users index.
type DirectoryEntry struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Identity is the authenticated caller.
type Identity struct {
	Email string
	Name  string
}

// SafeEmail returns the sanitized email of the caller.
func (i Identity) SafeEmail() string {
	return keys.SafeEmail(i.Email)
}
