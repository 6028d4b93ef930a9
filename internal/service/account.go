// Package service holds the account business logic.
//
// AccountService is the whole account core behind one type:
//
//	AccountHandler (HTTP) → AccountService → repository.UserRepository (users)
//	                                       ↘ session.Tracker (current user)
//	                                       ↘ auth.PasswordHasher
//
// It owns the rules that do not belong to storage: password hashing and
// verification, the "current password required" rule for sensitive updates,
// and pointing the session at the right user. Storage enforces email
// uniqueness as well, so the rule holds even if a caller bypasses this
// type.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/echo-auth/internal/apperror"
	"github.com/sakif/echo-auth/internal/auth"
	"github.com/sakif/echo-auth/internal/model"
	"github.com/sakif/echo-auth/internal/repository"
	"github.com/sakif/echo-auth/internal/session"
)

// AccountService handles registration, login, profile updates and logout.
//
// DEPENDENCIES (injected via NewAccountService):
//   - users     repository.UserRepository → read/write user records
//   - sessions  *session.Tracker          → the single current-user pointer
//   - passwords auth.PasswordHasher       → credential hashing
//   - logger    *slog.Logger              → structured logging
//
// CONCURRENCY:
// mu serialises every check-then-write sequence (uniqueness check + insert,
// lookup + verify + session write, lookup + checks + update). Two concurrent
// registrations for the same email therefore cannot both pass the check.
type AccountService struct {
	users     repository.UserRepository
	sessions  *session.Tracker
	passwords auth.PasswordHasher
	logger    *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewAccountService creates an AccountService with all required dependencies.
func NewAccountService(
	users repository.UserRepository,
	sessions *session.Tracker,
	passwords auth.PasswordHasher,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		sessions:  sessions,
		passwords: passwords,
		logger:    logger,
		now:       time.Now,
	}
}

// ProfileUpdate carries the optional fields of UpdateProfile.
//
// nil means "not supplied". For Email, CurrentPassword and NewPassword an
// empty string also counts as not supplied; Name is applied whenever it is
// non-nil, even if empty.
type ProfileUpdate struct {
	Name            *string
	Email           *string
	CurrentPassword *string
	NewPassword     *string
}

func supplied(s *string) bool {
	return s != nil && *s != ""
}

// Register creates an account and logs it in.
//
// Fails with apperror.ErrDuplicateEmail if any account already uses the
// email (case-insensitively). On success the record is durable and the
// session points at it.
//
// If the account is stored but the session cannot be written, Register
// returns the stored user together with the error. The account exists at
// that point (a retry gets DuplicateEmail); the caller can log in instead.
func (s *AccountService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	// Hashing is CPU-bound and needs no shared state, so it runs before the
	// lock is taken.
	hash, err := s.hash("password", password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}

	user := &model.User{
		ID:           auth.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateEmail) {
			return nil, err
		}
		s.logger.Error("failed to create user", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/account: creating user: %w", err)
	}

	if err := s.sessions.Set(ctx, user.ID); err != nil {
		s.logger.Error("user registered but session not started",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return user, fmt.Errorf("service/account: starting session for %s: %w", user.ID, err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// Authenticate checks email + password and, on success, makes the user the
// current session.
//
// Failures: apperror.ErrNotFound (no account for the email),
// apperror.ErrInvalidCredential (wrong password). The two stay distinct here;
// the HTTP layer decides whether to merge them.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/account: looking up %s: %w", email, err)
	}

	if err := s.verify(user, password, "password"); err != nil {
		s.logger.Info("authentication failed", slog.String("userID", user.ID))
		return nil, err
	}

	if err := s.sessions.Set(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("service/account: starting session for %s: %w", user.ID, err)
	}

	s.logger.Info("user authenticated", slog.String("userID", user.ID))
	return user, nil
}

// UpdateProfile edits the account with the given id.
//
// Checks run in this order, and the first failure wins:
//  1. id must resolve                                   → ErrNotFound
//  2. email or new password without current password    → ErrReauthRequired
//  3. current password (whenever supplied) must match   → ErrInvalidCredential
//  4. new email must not belong to another account      → ErrDuplicateEmail
//
// The session is not touched.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/account: fetching user %s: %w", id, err)
	}

	sensitive := supplied(upd.Email) || supplied(upd.NewPassword)
	if sensitive && !supplied(upd.CurrentPassword) {
		return nil, apperror.ReauthRequired()
	}

	if supplied(upd.CurrentPassword) {
		if err := s.verify(user, *upd.CurrentPassword, "currentPassword"); err != nil {
			s.logger.Info("profile update rejected: wrong current password", slog.String("userID", id))
			return nil, err
		}
	}

	if supplied(upd.Email) {
		if err := s.ensureEmailFree(ctx, *upd.Email, id); err != nil {
			return nil, err
		}
	}

	if upd.Name != nil {
		user.Name = *upd.Name
	}
	if supplied(upd.Email) {
		user.Email = *upd.Email
	}
	if supplied(upd.NewPassword) {
		hash, err := s.hash("newPassword", *upd.NewPassword)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateEmail) || errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update user",
			slog.String("userID", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/account: updating user %s: %w", id, err)
	}

	s.logger.Info("profile updated",
		slog.String("userID", id),
		slog.Bool("emailChanged", supplied(upd.Email)),
		slog.Bool("passwordChanged", supplied(upd.NewPassword)),
	)
	return user, nil
}

// Logout clears the session. Calling it while logged out is a no-op.
// The only possible error is a failure to persist the cleared pointer.
func (s *AccountService) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("service/account: logging out: %w", err)
	}
	s.logger.Info("session cleared")
	return nil
}

// CurrentUser resolves the session to a user.
//
// Returns (nil, false, nil) when nobody is logged in, and also when the
// session points at an id that no longer resolves. An error is returned only
// for storage failures.
func (s *AccountService) CurrentUser(ctx context.Context) (*model.User, bool, error) {
	id, ok := s.sessions.CurrentUserID()
	if !ok {
		return nil, false, nil
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Debug("session points at a missing user", slog.String("userID", id))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("service/account: resolving session user %s: %w", id, err)
	}
	return user, true, nil
}

// ensureEmailFree fails with DuplicateEmail if an account other than
// exceptID holds email. Caller holds s.mu.
func (s *AccountService) ensureEmailFree(ctx context.Context, email, exceptID string) error {
	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.ID != exceptID {
			return apperror.DuplicateEmail(email)
		}
		return nil
	case errors.Is(err, apperror.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("service/account: checking email: %w", err)
	}
}

// verify checks plaintext against user's stored hash.
//
// A hash the hasher cannot read is logged and reported as InvalidCredential:
// the password cannot be confirmed, and callers always get a typed failure.
func (s *AccountService) verify(user *model.User, plaintext, field string) error {
	err := s.passwords.Verify(user.PasswordHash, plaintext)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrPasswordMismatch):
		return apperror.InvalidCredential(field)
	default:
		s.logger.Error("stored password hash is unusable",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return apperror.InvalidCredential(field)
	}
}

func (s *AccountService) hash(field, plaintext string) (string, error) {
	hash, err := s.passwords.Hash(plaintext)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", apperror.ValidationFailed(field, "password must be 72 bytes or fewer")
		}
		return "", fmt.Errorf("service/account: hashing password: %w", err)
	}
	return hash, nil
}
