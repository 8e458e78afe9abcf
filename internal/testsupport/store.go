package testsupport

import (
	"path/filepath"
	"testing"

	"dirconfig/internal/journal"
)

// MustOpenJournal opens a journal in a temp directory and registers cleanup.
func MustOpenJournal(t testing.TB) *journal.Store {
	t.Helper()

	store, err := journal.Open(filepath.Join(t.TempDir(), "dirconfig.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
