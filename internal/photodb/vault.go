package photodb

import (
	"context"
	"io"
)

// Vault stores ledger snapshots off the archive disk.
// All operations stream through io.Reader/io.Writer.
type Vault interface {
	// PutSnapshot stores a ledger snapshot under name.
	// size is the number of bytes that will be read from r.
	// version is stored alongside the snapshot; it is the ID of the
	// operation that produced it.
	PutSnapshot(ctx context.Context, name string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the stored snapshot for name to w.
	GetSnapshot(ctx context.Context, name string, w io.Writer) error

	// SnapshotVersion returns the stored version for name, or 0 if none.
	SnapshotVersion(ctx context.Context, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
