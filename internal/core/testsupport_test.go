package core

import (
	"path/filepath"
	"testing"
)

// newTestModelManager opens a temp-dir SQLite database and archive root,
// migrated and ready for a BMC under test, the same fixture shape
// internal/jsonrpc's own tests use one layer up.
func newTestModelManager(t *testing.T) *ModelManager {
	t.Helper()
	dir := t.TempDir()

	db, err := OpenDB(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	return NewModelManager(db, filepath.Join(dir, "archive"))
}
