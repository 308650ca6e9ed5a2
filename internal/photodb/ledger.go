package photodb

import (
	"context"
	"time"

	"photodb/internal/model"
)

// LedgerDir is the hidden directory under an archive root that holds its ledger.
const LedgerDir = ".photodb"

// LedgerFile is the ledger's file name inside LedgerDir.
const LedgerFile = "photodb.db"

// Ledger is the persistent fingerprint -> PhotoRecord store of one archive root.
// Implementations must be safe for concurrent use: reads may run in parallel,
// writes are serialized, and the uniqueness of Fingerprint is enforced by storage.
type Ledger interface {
	// Root returns the archive root this ledger manages.
	Root() string

	// Contains reports whether fp is recorded. It is only a pre-check; Insert
	// is the final arbiter of uniqueness.
	Contains(ctx context.Context, fp model.Fingerprint) (bool, error)

	// Insert records a new photo. If the fingerprint is already present the
	// returned error matches ErrDuplicate.
	Insert(ctx context.Context, rec *model.PhotoRecord) error

	// All returns every record. Order is unspecified.
	All(ctx context.Context) ([]*model.PhotoRecord, error)

	// FindByOriginalPrefix returns records whose OriginalPath starts with prefix.
	// The comparison is a literal byte prefix.
	FindByOriginalPrefix(ctx context.Context, prefix string) ([]*model.PhotoRecord, error)

	// FindByArchivePath returns the record stored at path, or nil if none.
	FindByArchivePath(ctx context.Context, path string) (*model.PhotoRecord, error)

	// Count returns the number of records.
	Count(ctx context.Context) (int64, error)

	// Operation history

	CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (*model.Operation, error)
	FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error
	ListOperations(ctx context.Context, limit int) ([]*model.Operation, error)

	// BackupTo writes a consistent snapshot of the ledger to destPath.
	BackupTo(ctx context.Context, destPath string) error

	// Close stops the writer and closes all connections.
	Close() error
}
