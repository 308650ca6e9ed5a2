package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"photodb/internal/database/migrations"
	"photodb/internal/database/sqlc"
	"photodb/internal/model"
	"photodb/internal/photodb"
)

// Options tunes the ledger's connections.
type Options struct {
	BusyTimeout time.Duration // how long a connection waits on a locked database
	ReadConns   int           // size of the read pool
}

// DefaultOptions returns the options used when config leaves them unset.
func DefaultOptions() Options {
	return Options{BusyTimeout: 5 * time.Second, ReadConns: 4}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = d.BusyTimeout
	}
	if o.ReadConns < 1 {
		o.ReadConns = d.ReadConns
	}
	return o
}

// LedgerPath returns the ledger file location for an archive root.
func LedgerPath(root string) string {
	return filepath.Join(root, photodb.LedgerDir, photodb.LedgerFile)
}

// SQLiteLedger implements photodb.Ledger on one SQLite file in WAL mode.
//
// Reads go through a connection pool. Every write is a request handed to a
// single goroutine that owns the only write connection, so writers never
// contend for the database lock and a uniqueness race between two workers
// is decided by the UNIQUE constraint, one statement at a time.
type SQLiteLedger struct {
	root    string
	path    string
	readDB  *sql.DB
	writeDB *sql.DB
	reads   *sqlc.Queries

	mu     sync.RWMutex // guards closed and sends on writes
	closed bool
	writes chan writeRequest
	done   chan struct{} // closed when the writer exits
}

type writeRequest struct {
	ctx    context.Context
	fn     func(ctx context.Context, q *sqlc.Queries) error
	result chan error
}

// OpenConnection opens a SQLite handle with the ledger PRAGMAs applied to
// every connection in its pool. path can be a file path or ":memory:".
func OpenConnection(path string, maxConns int, opts Options) (*sql.DB, error) {
	opts = opts.withDefaults()
	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate",
		path, opts.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// CreateLedger creates root/.photodb and applies the schema. created is
// false when the ledger already existed at the current version; that is
// reported, not treated as an error.
func CreateLedger(root string, opts Options) (created bool, err error) {
	if err := checkRoot(root); err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Join(root, photodb.LedgerDir), 0755); err != nil {
		return false, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := OpenConnection(LedgerPath(root), 1, opts)
	if err != nil {
		return false, err
	}
	defer db.Close()

	created, err = migrations.MigrateUp(db)
	if err != nil {
		return false, fmt.Errorf("creating ledger schema: %w", err)
	}
	return created, nil
}

// OpenLedger opens the existing ledger of an archive root. It fails if the
// root is not a directory, the ledger was never created, or its schema does
// not match this binary.
func OpenLedger(root string, opts Options) (*SQLiteLedger, error) {
	opts = opts.withDefaults()
	if err := checkRoot(root); err != nil {
		return nil, err
	}
	path := LedgerPath(root)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no ledger at %s: run 'photodb ledger create %s' first", path, root)
		}
		return nil, fmt.Errorf("stat ledger: %w", err)
	}

	writeDB, err := OpenConnection(path, 1, opts)
	if err != nil {
		return nil, err
	}
	if err := migrations.CheckDBMigrationStatus(writeDB); err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("ledger schema out of date: %w", err)
	}

	readDB, err := OpenConnection(path, opts.ReadConns, opts)
	if err != nil {
		writeDB.Close()
		return nil, err
	}

	l := &SQLiteLedger{
		root:    root,
		path:    path,
		readDB:  readDB,
		writeDB: writeDB,
		reads:   sqlc.New(readDB),
		writes:  make(chan writeRequest),
		done:    make(chan struct{}),
	}
	go l.runWriter(sqlc.New(writeDB))
	return l, nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", root)
	}
	return nil
}

// runWriter executes write requests one at a time until writes is closed.
func (l *SQLiteLedger) runWriter(q *sqlc.Queries) {
	defer close(l.done)
	for req := range l.writes {
		if err := req.ctx.Err(); err != nil {
			req.result <- err
			continue
		}
		req.result <- req.fn(req.ctx, q)
	}
}

// write hands fn to the writer and waits for its result. Once a request is
// accepted the caller always learns whether it was applied.
func (l *SQLiteLedger) write(ctx context.Context, fn func(ctx context.Context, q *sqlc.Queries) error) error {
	req := writeRequest{ctx: ctx, fn: fn, result: make(chan error, 1)}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return photodb.ErrLedgerClosed
	}
	select {
	case l.writes <- req:
	case <-ctx.Done():
		l.mu.RUnlock()
		return ctx.Err()
	}
	l.mu.RUnlock()

	return <-req.result
}

// Root returns the archive root.
func (l *SQLiteLedger) Root() string {
	return l.root
}

// Path returns the ledger file path.
func (l *SQLiteLedger) Path() string {
	return l.path
}

// Photo operations

func (l *SQLiteLedger) Contains(ctx context.Context, fp model.Fingerprint) (bool, error) {
	n, err := l.reads.PhotoExists(ctx, fp[:])
	if err != nil {
		return false, fmt.Errorf("looking up fingerprint %s: %w", fp, err)
	}
	return n != 0, nil
}

func (l *SQLiteLedger) Insert(ctx context.Context, rec *model.PhotoRecord) error {
	fp := rec.Fingerprint
	return l.write(ctx, func(ctx context.Context, q *sqlc.Queries) error {
		err := q.InsertPhoto(ctx, sqlc.InsertPhotoParams{
			Fingerprint:  fp[:],
			OriginalPath: rec.OriginalPath,
			ArchivePath:  rec.ArchivePath,
			Year:         int64(rec.Year),
			Month:        int64(rec.Month),
			Model:        rec.Model,
		})
		if err != nil {
			if isUniqueViolation(err) {
				return photodb.NewConstraintError(fp.String(), err)
			}
			return fmt.Errorf("inserting photo %s: %w", fp, err)
		}
		return nil
	})
}

func (l *SQLiteLedger) All(ctx context.Context) ([]*model.PhotoRecord, error) {
	rows, err := l.reads.ListPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w", err)
	}
	return toRecords(rows)
}

func (l *SQLiteLedger) FindByOriginalPrefix(ctx context.Context, prefix string) ([]*model.PhotoRecord, error) {
	rows, err := l.reads.ListPhotosByOriginalPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("finding photos by original prefix: %w", err)
	}
	return toRecords(rows)
}

func (l *SQLiteLedger) FindByArchivePath(ctx context.Context, path string) (*model.PhotoRecord, error) {
	row, err := l.reads.GetPhotoByArchivePath(ctx, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding photo by archive path: %w", err)
	}
	return toRecord(row)
}

// FindByFingerprint returns the record for fp, or nil if none.
func (l *SQLiteLedger) FindByFingerprint(ctx context.Context, fp model.Fingerprint) (*model.PhotoRecord, error) {
	row, err := l.reads.GetPhotoByFingerprint(ctx, fp[:])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding photo by fingerprint: %w", err)
	}
	return toRecord(row)
}

func (l *SQLiteLedger) Count(ctx context.Context) (int64, error) {
	n, err := l.reads.CountPhotos(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting photos: %w", err)
	}
	return n, nil
}

// Operation tracking

func (l *SQLiteLedger) CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (*model.Operation, error) {
	var id int64
	err := l.write(ctx, func(ctx context.Context, q *sqlc.Queries) error {
		var err error
		id, err = q.InsertOperation(ctx, sqlc.InsertOperationParams{
			Operation:  operation,
			Parameters: parameters,
			StartedAt:  startedAt.UTC(),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return &model.Operation{
		ID:         id,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  startedAt.UTC(),
		Status:     "running",
	}, nil
}

func (l *SQLiteLedger) FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error {
	err := l.write(ctx, func(ctx context.Context, q *sqlc.Queries) error {
		return q.UpdateOperationFinished(ctx, sqlc.UpdateOperationFinishedParams{
			FinishedAt: sql.NullTime{Time: finishedAt.UTC(), Valid: true},
			Status:     status,
			ID:         id,
		})
	})
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) ListOperations(ctx context.Context, limit int) ([]*model.Operation, error) {
	ops, err := l.reads.ListOperations(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}

	result := make([]*model.Operation, len(ops))
	for i, op := range ops {
		result[i] = &model.Operation{
			ID:         op.ID,
			Operation:  op.Operation,
			Parameters: op.Parameters,
			StartedAt:  op.StartedAt,
			Status:     op.Status,
		}
		if op.FinishedAt.Valid {
			t := op.FinishedAt.Time
			result[i].FinishedAt = &t
		}
	}
	return result, nil
}

// MaxOperationID returns the highest operation ID, or 0 for a new ledger.
func (l *SQLiteLedger) MaxOperationID(ctx context.Context) (int64, error) {
	id, err := l.reads.GetMaxOperationID(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting max operation ID: %w", err)
	}
	return id, nil
}

// CheckMigrations verifies the ledger schema is up-to-date.
func (l *SQLiteLedger) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(l.writeDB)
}

// BackupTo creates a complete copy of the ledger at destPath using VACUUM INTO.
// destPath must not exist or must be an empty file.
func (l *SQLiteLedger) BackupTo(ctx context.Context, destPath string) error {
	if _, err := l.readDB.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up ledger: %w", err)
	}
	return nil
}

// Close waits for pending writes, stops the writer, and closes both handles.
// It is safe to call more than once.
func (l *SQLiteLedger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.writes)
	l.mu.Unlock()

	<-l.done

	return errors.Join(l.writeDB.Close(), l.readDB.Close())
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func toRecord(p sqlc.Photo) (*model.PhotoRecord, error) {
	fp, err := model.FingerprintFromBytes(p.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("photo at %s: %w", p.ArchivePath, err)
	}
	return &model.PhotoRecord{
		Fingerprint:  fp,
		OriginalPath: p.OriginalPath,
		ArchivePath:  p.ArchivePath,
		Year:         int(p.Year),
		Month:        int(p.Month),
		Model:        p.Model,
	}, nil
}

func toRecords(rows []sqlc.Photo) ([]*model.PhotoRecord, error) {
	result := make([]*model.PhotoRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

// Compile-time check that SQLiteLedger implements photodb.Ledger interface
var _ photodb.Ledger = (*SQLiteLedger)(nil)
