package sqlite

import (
	"context"
	"testing"
)

func TestSession_EmptyByDefault(t *testing.T) {
	db := newTestDB(t)

	id, err := db.CurrentUserID(context.Background())
	if err != nil {
		t.Fatalf("CurrentUserID() error = %v", err)
	}
	if id != "" {
		t.Errorf("CurrentUserID() = %q, want empty", id)
	}
}

func TestSession_SetOverwriteClear(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	steps := []struct {
		name string
		do   func() error
		want string
	}{
		{"set", func() error { return db.SetCurrentUserID(ctx, "u1") }, "u1"},
		{"overwrite", func() error { return db.SetCurrentUserID(ctx, "u2") }, "u2"},
		{"clear", func() error { return db.ClearCurrentUserID(ctx) }, ""},
		{"clear again", func() error { return db.ClearCurrentUserID(ctx) }, ""},
		{"set after clear", func() error { return db.SetCurrentUserID(ctx, "u1") }, "u1"},
		{"set empty clears", func() error { return db.SetCurrentUserID(ctx, "") }, ""},
	}

	for _, s := range steps {
		if err := s.do(); err != nil {
			t.Fatalf("%s: error = %v", s.name, err)
		}
		got, err := db.CurrentUserID(ctx)
		if err != nil {
			t.Fatalf("%s: CurrentUserID() error = %v", s.name, err)
		}
		if got != s.want {
			t.Errorf("%s: CurrentUserID() = %q, want %q", s.name, got, s.want)
		}
	}
}

// The session is a weak reference: pointing it at an id with no user row is
// allowed at this layer.
func TestSession_DanglingIDIsStored(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SetCurrentUserID(ctx, "no-such-user"); err != nil {
		t.Fatalf("SetCurrentUserID() error = %v", err)
	}
	got, _ := db.CurrentUserID(ctx)
	if got != "no-such-user" {
		t.Errorf("CurrentUserID() = %q, want no-such-user", got)
	}
}
