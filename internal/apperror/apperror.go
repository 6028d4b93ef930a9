// Package apperror defines the typed failures the account core returns.
//
// Every expected failure is an *AppError wrapping one of the sentinels below.
// Callers branch with errors.Is(err, apperror.ErrDuplicateEmail) and show
// AppError.Message to the user; anything that is not an *AppError is an
// infrastructure failure (disk, database) and is reported generically.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrDuplicateEmail    = errors.New("duplicate email")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrReauthRequired    = errors.New("reauthentication required")
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports that a user id (or email) does not resolve.
func NotFound(resource, key string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, key),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// DuplicateEmail reports that another account already uses the address.
func DuplicateEmail(email string) *AppError {
	return &AppError{
		Err:     ErrDuplicateEmail,
		Message: fmt.Sprintf("an account with email %s already exists", email),
		Field:   "email",
	}
}

// InvalidCredential reports a password that does not match the stored hash.
// field is "password" on login and "currentPassword" on profile updates.
func InvalidCredential(field string) *AppError {
	return &AppError{
		Err:     ErrInvalidCredential,
		Message: "password is incorrect",
		Field:   field,
	}
}

// ReauthRequired reports an email or password change attempted without the
// current password.
func ReauthRequired() *AppError {
	return &AppError{
		Err:     ErrReauthRequired,
		Message: "current password required to change email or password",
		Field:   "currentPassword",
	}
}
