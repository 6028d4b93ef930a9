// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// User represents a registered local account.
//
// The ID is generated once at creation (xid) and never changes, so the
// session tracker can hold it as a lookup key while name, email and password
// are edited underneath it.
//
// PasswordHash is tagged json:"-" so a User can be handed straight to
// writeJSON without leaking the credential. Storage backends that serialize
// users to JSON use their own record type for that reason.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Name         string    `json:"name"      db:"name"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// EmailKey returns the comparison key for an email address.
//
// Every uniqueness check and every lookup by email goes through this
// function, including the email_key column in SQLite, so the Go-side check
// and the database constraint can never disagree about what "the same email"
// means. The address itself is stored exactly as the user typed it.
func EmailKey(email string) string {
	return strings.ToLower(email)
}

// SameEmail reports whether two addresses are equal case-insensitively.
func SameEmail(a, b string) bool {
	return EmailKey(a) == EmailKey(b)
}
