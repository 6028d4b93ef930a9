// Package session tracks the single active session: which user, if any, is
// currently logged in.
//
// The tracker stores a user id, never a *model.User. Resolving the id is the
// caller's job (AccountService.CurrentUser), so profile edits are always seen
// and a user that no longer resolves simply means "logged out".
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sakif/echo-auth/internal/repository"
)

// Tracker is a mutex-guarded cell holding the current user id, written
// through to a SessionRepository so the session survives restarts.
//
// Create it once at startup and pass it by pointer to whoever needs it.
type Tracker struct {
	repo   repository.SessionRepository
	logger *slog.Logger

	mu      sync.RWMutex
	current string
}

// NewTracker loads the persisted pointer. A read failure is logged and the
// tracker starts logged out; it never prevents startup.
func NewTracker(ctx context.Context, repo repository.SessionRepository, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	current, err := repo.CurrentUserID(ctx)
	if err != nil {
		logger.Warn("session: cannot load persisted session, starting logged out",
			slog.String("error", err.Error()),
		)
		current = ""
	}

	return &Tracker{repo: repo, logger: logger, current: current}
}

// CurrentUserID returns the current id and whether one is set.
func (t *Tracker) CurrentUserID() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current, t.current != ""
}

// Set points the session at id. The pointer is persisted before the
// in-memory cell changes, so a failed write leaves the old session intact.
func (t *Tracker) Set(ctx context.Context, id string) error {
	if id == "" {
		return t.Clear(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.repo.SetCurrentUserID(ctx, id); err != nil {
		return fmt.Errorf("session: setting current user: %w", err)
	}
	t.current = id
	return nil
}

// Clear ends the session. Idempotent.
func (t *Tracker) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.repo.ClearCurrentUserID(ctx); err != nil {
		return fmt.Errorf("session: clearing current user: %w", err)
	}
	t.current = ""
	return nil
}
