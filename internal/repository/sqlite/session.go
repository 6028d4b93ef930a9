package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CurrentUserID returns the persisted session pointer, or "" when there is
// no session row.
func (db *DB) CurrentUserID(ctx context.Context) (string, error) {
	var id string
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id FROM session WHERE slot = 1`,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("sqlite: reading session: %w", err)
	}
	return id, nil
}

// SetCurrentUserID upserts the single session row.
func (db *DB) SetCurrentUserID(ctx context.Context, id string) error {
	if id == "" {
		return db.ClearCurrentUserID(ctx)
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO session (slot, user_id, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET user_id = excluded.user_id, updated_at = excluded.updated_at`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing session: %w", err)
	}
	return nil
}

// ClearCurrentUserID removes the session row. Clearing an empty session is
// not an error.
func (db *DB) ClearCurrentUserID(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("sqlite: clearing session: %w", err)
	}
	return nil
}
