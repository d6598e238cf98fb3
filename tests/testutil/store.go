package testutil

import (
	"context"
	"testing"

	"github.com/nhle/todo-sync/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t testing.TB) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", Logger(t))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedUser registers an account directly in the store and returns it.
// The password hash is left as given; callers that sign in through the
// auth service should create users through it instead.
func SeedUser(t testing.TB, s store.Store, email string) *store.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), email, "")
	if err != nil {
		t.Fatalf("seeding user %s: %v", email, err)
	}
	return u
}
