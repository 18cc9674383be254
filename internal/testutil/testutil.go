package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"taskbot/internal/store"
)

// OpenTestDB opens a migrated database in a temporary directory. It is
// closed when the test ends.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
