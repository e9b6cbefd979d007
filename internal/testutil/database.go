package testutil

import (
	"testing"

	"waterlog/internal/database"
	"waterlog/internal/intake"
)

// NewTestStore creates a new in-memory SQLite store with migrations applied.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T, clock intake.Clock) *database.SQLiteStore {
	t.Helper()

	s, err := database.NewSQLiteStore(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// NewTestTracker creates a Tracker over a fresh in-memory store.
func NewTestTracker(t *testing.T, clock intake.Clock) (*intake.Tracker, *database.SQLiteStore) {
	t.Helper()

	s := NewTestStore(t, clock)
	tr, err := intake.NewTracker(s, clock, intake.NewNopLogger(), clock.Now().Location())
	if err != nil {
		t.Fatalf("failed to create tracker: %v", err)
	}
	return tr, s
}
