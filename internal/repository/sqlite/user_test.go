package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sakif/echo-auth/internal/apperror"
	"github.com/sakif/echo-auth/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" gives every test its own fresh database. t.Helper() makes
// failures point at the caller; t.Cleanup closes the pool when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser creates a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, id, name, email string) *model.User {
	t.Helper()
	user := &model.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: "hash-of-" + id,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "u1", "Ann", "ann@x.com")

	found, err := db.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if found.Name != "Ann" || found.Email != "ann@x.com" {
		t.Errorf("got %+v, want name Ann / email ann@x.com", found)
	}
	if found.PasswordHash != created.PasswordHash {
		t.Errorf("PasswordHash = %q, want %q", found.PasswordHash, created.PasswordHash)
	}
	if d := found.CreatedAt.Sub(created.CreatedAt); d > time.Second || d < -time.Second {
		t.Errorf("CreatedAt = %v, want ~%v", found.CreatedAt, created.CreatedAt)
	}
}

func TestUserCreate_DuplicateEmailAnyCase(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "u1", "Ann", "ann@x.com")

	dup := &model.User{ID: "u2", Name: "Bob", Email: "ANN@X.COM", PasswordHash: "h", CreatedAt: time.Now()}
	err := db.Create(context.Background(), dup)

	if !errors.Is(err, apperror.ErrDuplicateEmail) {
		t.Fatalf("Create() error = %v, want ErrDuplicateEmail", err)
	}
}

func TestUserCreate_PreservesEmailAsTyped(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "u1", "Ann", "Ann@X.com")

	found, err := db.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Email != "Ann@X.com" {
		t.Errorf("Email = %q, want it stored as typed", found.Email)
	}
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestUserGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestUserGetByEmail_CaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "u1", "Ann", "ann@x.com")

	for _, email := range []string{"ann@x.com", "ANN@X.COM", "Ann@x.Com"} {
		found, err := db.GetByEmail(context.Background(), email)
		if err != nil {
			t.Fatalf("GetByEmail(%q) error = %v", email, err)
		}
		if found.ID != "u1" {
			t.Errorf("GetByEmail(%q).ID = %q, want u1", email, found.ID)
		}
	}
}

func TestUserGetByEmail_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByEmail(context.Background(), "nobody@x.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByEmail() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUserUpdate(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "u1", "Ann", "ann@x.com")
	originalCreatedAt := user.CreatedAt

	user.Name = "Annie"
	user.Email = "ann2@x.com"
	user.PasswordHash = "new-hash"
	user.CreatedAt = time.Now().Add(time.Hour) // must be ignored
	if err := db.Update(context.Background(), user); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	found, err := db.GetByEmail(context.Background(), "ANN2@x.com")
	if err != nil {
		t.Fatalf("GetByEmail() after Update: %v", err)
	}
	if found.Name != "Annie" || found.PasswordHash != "new-hash" {
		t.Errorf("got %+v after update", found)
	}
	if d := found.CreatedAt.Sub(originalCreatedAt); d > time.Second || d < -time.Second {
		t.Errorf("Update() changed CreatedAt: got %v, want ~%v", found.CreatedAt, originalCreatedAt)
	}

	// The old address is free again.
	if _, err := db.GetByEmail(context.Background(), "ann@x.com"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("old email still resolves: %v", err)
	}
}

func TestUserUpdate_OwnEmailDifferentCase(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "u1", "Ann", "ann@x.com")

	user.Email = "ANN@x.com"
	if err := db.Update(context.Background(), user); err != nil {
		t.Fatalf("Update() with own email in another case: %v", err)
	}
}

func TestUserUpdate_EmailTakenByOther(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "u1", "Ann", "ann@x.com")
	bob := createTestUser(t, db, "u2", "Bob", "bob@x.com")

	bob.Email = "Ann@X.com"
	err := db.Update(context.Background(), bob)
	if !errors.Is(err, apperror.ErrDuplicateEmail) {
		t.Fatalf("Update() error = %v, want ErrDuplicateEmail", err)
	}
}

func TestUserUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.Update(context.Background(), &model.User{ID: "ghost", Email: "g@x.com"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestUserList_OrderedByCreation(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().UTC()

	for i, id := range []string{"c", "a", "b"} {
		u := &model.User{
			ID:        id,
			Name:      id,
			Email:     id + "@x.com",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(context.Background(), u); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}

	users, err := db.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	var got []string
	for _, u := range users {
		got = append(got, u.ID)
	}
	if strings.Join(got, ",") != "c,a,b" {
		t.Errorf("List() order = %v, want [c a b]", got)
	}
}

func TestUserList_Empty(t *testing.T) {
	db := newTestDB(t)

	users, err := db.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", users)
	}
}

// =========================================================================
// DURABILITY TESTS
// =========================================================================

func TestNew_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.db")

	db, err := New(path, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	createTestUser(t, db, "u1", "Ann", "ann@x.com")
	if err := db.SetCurrentUserID(context.Background(), "u1"); err != nil {
		t.Fatalf("SetCurrentUserID() error = %v", err)
	}
	db.Close()

	reopened, err := New(path, nil)
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetByEmail(context.Background(), "ann@x.com"); err != nil {
		t.Errorf("user lost across reopen: %v", err)
	}
	id, err := reopened.CurrentUserID(context.Background())
	if err != nil || id != "u1" {
		t.Errorf("CurrentUserID() after reopen = %q, %v; want u1", id, err)
	}
}

func TestNew_CorruptFileDegradesToEmptyStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.db")

	garbage := []byte(strings.Repeat("this is definitely not an sqlite database\n", 200))
	if err := os.WriteFile(path, garbage, 0o600); err != nil {
		t.Fatalf("writing garbage file: %v", err)
	}

	db, err := New(path, nil)
	if err != nil {
		t.Fatalf("New() on corrupt file error = %v, want an empty store", err)
	}
	defer db.Close()

	users, err := db.List(context.Background())
	if err != nil || len(users) != 0 {
		t.Errorf("List() = %v, %v; want empty", users, err)
	}

	matches, _ := filepath.Glob(path + ".corrupt-*")
	if len(matches) != 1 {
		t.Errorf("expected the corrupt file to be moved aside, found %v", matches)
	}
}
