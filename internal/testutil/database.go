package testutil

import (
	"testing"

	"photodb/internal/database"
)

// NewTestLedger creates a ledger in a fresh temp directory and returns it.
// The directory doubles as the archive root; paths under it may be served
// by a MockFilesystemManager without touching the disk.
// The ledger is automatically closed when the test completes.
func NewTestLedger(t *testing.T) *database.SQLiteLedger {
	t.Helper()

	root := t.TempDir()
	if _, err := database.CreateLedger(root, database.DefaultOptions()); err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}

	l, err := database.OpenLedger(root, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}

	t.Cleanup(func() {
		l.Close()
	})

	return l
}
