// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: a single file next to the binary, no
// server to run. The account core is single-process by definition, which is
// exactly SQLite's sweet spot. Use ":memory:" in tests.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of the SQLite C code, so the
// binary builds without CGo and cross-compiles anywhere Go does.
//
// LAYOUT:
// The two persisted artifacts map to two tables:
//   - users:   one row per account, UNIQUE(email_key)
//   - session: at most one row (slot = 1) holding the current user id
//
// The session row has no foreign key to users. A dangling id reads as
// "logged out" one layer up.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	// Importing the package also registers the "sqlite" driver with
	// database/sql (its init function), so no separate blank import is needed.
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const memoryPath = ":memory:"

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/accounts.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests; lost on close)
//
// CORRUPT FILES:
// If SQLite reports the file as corrupt or "not a database", the file is
// renamed to <dbPath>.corrupt-<unix seconds> and a fresh, empty database is
// created in its place.
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	conn, err := open(dbPath)
	if err != nil && dbPath != memoryPath && isCorrupt(err) {
		quarantined := fmt.Sprintf("%s.corrupt-%d", dbPath, time.Now().Unix())
		logger.Warn("sqlite: database file is corrupt, starting with an empty store",
			slog.String("path", dbPath),
			slog.String("movedTo", quarantined),
			slog.String("error", err.Error()),
		)
		if renameErr := os.Rename(dbPath, quarantined); renameErr != nil {
			return nil, fmt.Errorf("sqlite: moving corrupt database aside: %w", renameErr)
		}
		// Stale WAL/SHM files belong to the corrupt database.
		_ = os.Remove(dbPath + "-wal")
		_ = os.Remove(dbPath + "-shm")

		conn, err = open(dbPath)
	}
	if err != nil {
		return nil, err
	}

	return &DB{conn: conn, logger: logger}, nil
}

// open creates the pool, applies PRAGMAs and migrates. Any failure closes
// the pool before returning.
func open(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: every ":memory:" connection would otherwise be its own
	// empty database, and SQLite serialises writers anyway.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return conn, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func migrate(conn *sql.DB) error {
	// email keeps the address as typed; email_key is model.EmailKey(email)
	// and carries the uniqueness constraint.
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL,
			email_key     TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at, id);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = conn.Exec(`
		CREATE TABLE IF NOT EXISTS session (
			slot       INTEGER PRIMARY KEY CHECK (slot = 1),
			user_id    TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating session table: %w", err)
	}

	return nil
}

// sqliteCode extracts the (extended) SQLite result code from err, or 0.
func sqliteCode(err error) int {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()
	}
	return 0
}

// isCorrupt reports whether err means the file is unusable as a database.
// The low byte of an extended code is its primary code.
func isCorrupt(err error) bool {
	switch sqliteCode(err) & 0xff {
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
