// Package testutil provides shared helpers for tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/meetbot/internal/database"
)

// NewTestDB creates a migrated throwaway SQLite database in the test's
// temp directory.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "meetbot_test.db")
	db, err := database.NewDB(path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
