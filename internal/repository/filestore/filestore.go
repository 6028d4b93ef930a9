// Package filestore is a repository.Store kept in two plain files inside a
// data directory:
//
//	<dir>/users.json   JSON array of user records
//	<dir>/session      the current user id, or absent when logged out
//
// One key for the user list, one for the session pointer. Every write
// replaces the whole file atomically (temp file + rename), so a crash never
// leaves a half-written table behind.
//
// Unreadable state never stops the store from opening: a users.json that is
// not valid JSON is moved aside to users.json.corrupt-<unix seconds> and the
// store starts with an empty table.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/echo-auth/internal/apperror"
	"github.com/sakif/echo-auth/internal/model"
	"github.com/sakif/echo-auth/internal/repository"
)

const (
	UsersFile   = "users.json"
	SessionFile = "session"
)

var _ repository.Store = (*Store)(nil)

// record is the on-disk shape of a user. model.User hides the hash from JSON,
// so persistence needs its own type.
type record struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store holds the user table in memory and writes it through to disk on
// every mutation.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	users []record
}

// Open loads (or initialises) the store in dir, creating the directory if
// needed.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: creating data dir %s: %w", dir, err)
	}

	s := &Store{dir: dir, logger: logger}
	s.users = s.readUsers()
	return s, nil
}

// Close is a no-op: every write is already on disk.
func (s *Store) Close() error {
	return nil
}

// readUsers loads users.json. Missing → empty; unparsable → moved aside,
// empty + WARN.
func (s *Store) readUsers() []record {
	path := filepath.Join(s.dir, UsersFile)

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("filestore: cannot read users file, starting empty",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return []record{}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []record{}
	}

	var users []record
	if err := json.Unmarshal(raw, &users); err != nil {
		quarantined := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		s.logger.Warn("filestore: users file is corrupt, starting empty",
			slog.String("path", path),
			slog.String("movedTo", quarantined),
			slog.String("error", err.Error()),
		)
		if renameErr := os.Rename(path, quarantined); renameErr != nil {
			s.logger.Error("filestore: cannot move corrupt users file aside",
				slog.String("path", path),
				slog.String("error", renameErr.Error()),
			)
		}
		return []record{}
	}
	if users == nil {
		users = []record{}
	}
	return users
}

// writeUsers persists the table. Caller holds s.mu for writing.
func (s *Store) writeUsers(users []record) error {
	raw, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encoding users: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.dir, UsersFile), raw)
}

// writeFileAtomic writes data to a temp file in the same directory, syncs
// it and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("filestore: writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("filestore: syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filestore: closing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("filestore: replacing %s: %w", path, err)
	}
	return nil
}

func toModel(r record) *model.User {
	return &model.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

func fromModel(u *model.User) record {
	return record{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

// indexOfEmail returns the index of the record holding email's key, skipping
// exceptID, or -1. Caller holds s.mu.
func (s *Store) indexOfEmail(email, exceptID string) int {
	key := model.EmailKey(email)
	for i, r := range s.users {
		if r.ID != exceptID && model.EmailKey(r.Email) == key {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfID(id string) int {
	for i, r := range s.users {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Create appends a new user and persists the table.
func (s *Store) Create(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOfEmail(user.Email, "") >= 0 {
		return apperror.DuplicateEmail(user.Email)
	}
	if s.indexOfID(user.ID) >= 0 {
		return fmt.Errorf("filestore: user id %s already exists", user.ID)
	}

	next := append(append(make([]record, 0, len(s.users)+1), s.users...), fromModel(user))
	if err := s.writeUsers(next); err != nil {
		return err
	}
	s.users = next
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOfID(id); i >= 0 {
		return toModel(s.users[i]), nil
	}
	return nil, apperror.NotFound("user", id)
}

func (s *Store) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOfEmail(email, ""); i >= 0 {
		return toModel(s.users[i]), nil
	}
	return nil, apperror.NotFound("user", email)
}

// Update overwrites name, email and password hash of an existing user.
func (s *Store) Update(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfID(user.ID)
	if i < 0 {
		return apperror.NotFound("user", user.ID)
	}
	if s.indexOfEmail(user.Email, user.ID) >= 0 {
		return apperror.DuplicateEmail(user.Email)
	}

	next := append(make([]record, 0, len(s.users)), s.users...)
	next[i].Name = user.Name
	next[i].Email = user.Email
	next[i].PasswordHash = user.PasswordHash

	if err := s.writeUsers(next); err != nil {
		return err
	}
	s.users = next
	return nil
}

// List returns all users ordered by creation time, then id.
func (s *Store) List(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, r := range s.users {
		users = append(users, *toModel(r))
	}
	sort.SliceStable(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// CurrentUserID reads the session file. A missing file is "no session";
// an unreadable one is logged and also treated as no session.
func (s *Store) CurrentUserID(_ context.Context) (string, error) {
	path := filepath.Join(s.dir, SessionFile)

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("filestore: cannot read session file, treating as logged out",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return "", nil
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *Store) SetCurrentUserID(ctx context.Context, id string) error {
	if id == "" {
		return s.ClearCurrentUserID(ctx)
	}
	return writeFileAtomic(filepath.Join(s.dir, SessionFile), []byte(id+"\n"))
}

// ClearCurrentUserID removes the session file; a missing file is fine.
func (s *Store) ClearCurrentUserID(_ context.Context) error {
	err := os.Remove(filepath.Join(s.dir, SessionFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filestore: clearing session: %w", err)
	}
	return nil
}
