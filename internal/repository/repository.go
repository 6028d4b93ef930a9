// Package repository declares the storage contracts of the account core.
//
// The persisted state has exactly two artifacts: the user table
// (UserRepository) and the session pointer (SessionRepository). Backends
// live in sub-packages (sqlite, filestore) and implement both through a
// single Store.
package repository

import (
	"context"

	"github.com/sakif/echo-auth/internal/model"
)

// UserRepository owns the durable user records.
//
// Lookups by email compare model.EmailKey values. Create and Update return
// an apperror.ErrDuplicateEmail error when another record already holds the
// email key; GetByID and GetByEmail return apperror.ErrNotFound when nothing
// matches. Returned users are copies: mutating them does not touch storage.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	// List returns every user ordered by creation time, then id.
	List(ctx context.Context) ([]model.User, error)
}

// SessionRepository persists the single "current user id" pointer.
// An empty id means nobody is logged in.
type SessionRepository interface {
	CurrentUserID(ctx context.Context) (string, error)
	SetCurrentUserID(ctx context.Context, id string) error
	ClearCurrentUserID(ctx context.Context) error
}

// Store is a complete storage backend.
type Store interface {
	UserRepository
	SessionRepository
	Close() error
}
