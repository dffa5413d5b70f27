// Package testing provides helpers shared by package tests: throwaway
// databases, fixtures and programmable fakes.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/tradeguard/internal/database"
)

// NewTestDB opens a migrated database under t.TempDir().
// name selects the schema ("ledger", "client_data"); other names get an empty database.
// The returned cleanup closes the connection and is safe to call more than once.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("failed to open test database %s: %v", name, err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("failed to migrate test database %s: %v", name, err)
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("failed to close test database %s: %v", name, err)
		}
	}
}
