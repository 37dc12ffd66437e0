// Package testutil provides shared test helpers for setting up registry databases.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/virt/internal/index"
)

// TestDB creates a temporary SQLite registry that is closed when the test ends.
func TestDB(t testing.TB) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "virt-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
