package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"photodb/internal/config"
	"photodb/internal/database"
	"photodb/internal/fs"
	"photodb/internal/metadata"
	"photodb/internal/model"
	"photodb/internal/photodb"
	"photodb/internal/rawimage"
	"photodb/internal/vault"
)

// Options adjusts a PhotoApp beyond what the config file says.
type Options struct {
	Verbose bool // also log to stderr
	Workers int  // overrides the configured worker count when > 0

	Clock photodb.Clock       // nil means photodb.RealClock
	IDs   photodb.IDGenerator // operation log IDs; nil means photodb.UUIDGenerator
}

// PhotoApp is the application layer between the CLI and PhotoService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages ledger lifecycles on Close.
type PhotoApp struct {
	cfg     *config.Config
	fsmgr   photodb.FilesystemManager
	vault   photodb.Vault // nil when backups are disabled
	service *photodb.PhotoService
	clock   photodb.Clock
	logger  *slog.Logger
	logFile *os.File

	op       *Operation
	opLedger *database.SQLiteLedger // ledger the operation is recorded in
	ledgers  map[string]*database.SQLiteLedger
}

// NewPhotoApp creates a fully wired PhotoApp from the given config.
// operation identifies the CLI command being run (e.g. "import", "sync").
// The caller must call Close when done.
func NewPhotoApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*PhotoApp, error) {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	v, err := vault.NewVaultFromConfig(ctx, cfg.Backup)
	if err != nil {
		return nil, fmt.Errorf("creating backup vault: %w", err)
	}

	var clock photodb.Clock = photodb.RealClock{}
	if opts.Clock != nil {
		clock = opts.Clock
	}
	var ids photodb.IDGenerator = photodb.UUIDGenerator{}
	if opts.IDs != nil {
		ids = opts.IDs
	}

	opID := ids.New()
	logger, logFile, err := newLogger(cfg.LogDir, opID, level, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	workers := cfg.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}

	plog := &slogAdapter{l: logger}
	fsmgr := fs.NewOSFilesystemManager(cfg.Import.Extensions, cfg.Import.Ignore, plog)
	svc := photodb.NewPhotoService(fsmgr, rawimage.NewTIFFDecoder(), metadata.NewEXIFReader(),
		plog, clock, workers)

	logger.Debug("app initialized", "operation", operation, "op_id", opID, "workers", svc.Workers(), "backup", cfg.Backup.Type)

	return &PhotoApp{
		cfg:     cfg,
		fsmgr:   fsmgr,
		vault:   v,
		service: svc,
		clock:   clock,
		logger:  logger,
		logFile: logFile,
		op:      NewOperation(operation, nil),
		ledgers: make(map[string]*database.SQLiteLedger),
	}, nil
}

// openLedger opens the ledger of root once per app and caches it.
func (a *PhotoApp) openLedger(root string) (*database.SQLiteLedger, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving archive root: %w", err)
	}
	if l, ok := a.ledgers[abs]; ok {
		return l, nil
	}
	l, err := database.OpenLedgerFromConfig(a.cfg.Database, abs)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	a.ledgers[abs] = l
	return l, nil
}

// snapshotName is the name the ledger of root is backed up under.
func (a *PhotoApp) snapshotName(root string) string {
	if a.cfg.Backup.Name != "" {
		return a.cfg.Backup.Name
	}
	return filepath.Base(root)
}

// persistOperation records the operation in ledger, giving it an
// auto-increment ID. This should only be called for ledger-mutating commands.
// When backups are enabled the vault must be reachable and must not hold a
// snapshot newer than the local ledger.
func (a *PhotoApp) persistOperation(ctx context.Context, ledger *database.SQLiteLedger, params map[string]any) error {
	if a.op.Persisted() {
		return nil // already persisted
	}

	if a.vault != nil {
		if err := a.vault.ValidateSetup(ctx); err != nil {
			return fmt.Errorf("backup vault unavailable: %w", err)
		}
		remote, err := a.vault.SnapshotVersion(ctx, a.snapshotName(ledger.Root()))
		if err != nil {
			return fmt.Errorf("checking backup snapshot version: %w", err)
		}
		local, err := ledger.MaxOperationID(ctx)
		if err != nil {
			return fmt.Errorf("checking local ledger version: %w", err)
		}
		if remote > local {
			return fmt.Errorf("ledger at %s is behind its backup snapshot (local=%d, remote=%d): restore the snapshot or change backup.name", ledger.Root(), local, remote)
		}
	}

	a.op.Parameters = FormatParameters(params)
	dbOp, err := ledger.CreateOperation(ctx, a.op.Name, a.op.Parameters, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	a.opLedger = ledger
	a.logger.Info("operation started", "operation", a.op.Name, "id", a.op.ID, "parameters", a.op.Parameters)
	return nil
}

// CreateLedger creates the ledger of root. created is false when it already existed.
func (a *PhotoApp) CreateLedger(root string) (bool, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return false, fmt.Errorf("resolving archive root: %w", err)
	}
	created, err := database.CreateLedgerFromConfig(a.cfg.Database, abs)
	if err != nil {
		return false, a.op.Record(err)
	}
	a.logger.Info("ledger create", "root", abs, "created", created)
	return created, nil
}

// Import resolves source and imports every RAW file under it into the
// archive at root. The operation is recorded only when a flag allows writes.
func (a *PhotoApp) Import(ctx context.Context, source, root string, opts photodb.ImportOptions) (*photodb.ImportResult, error) {
	ledger, err := a.openLedger(root)
	if err != nil {
		return nil, a.op.Record(err)
	}
	src, err := a.fsmgr.Resolve(source)
	if err != nil {
		return nil, a.op.Record(fmt.Errorf("resolving source: %w", err))
	}

	if opts.Move || opts.Insert {
		params := map[string]any{"source": src.String(), "move": opts.Move, "insert": opts.Insert}
		if err := a.persistOperation(ctx, ledger, params); err != nil {
			return nil, a.op.Record(err)
		}
	}

	res, err := a.service.Import(ctx, ledger, src, opts)
	return res, a.op.Record(err)
}

// Verify re-fingerprints every file tracked by the archive at root.
func (a *PhotoApp) Verify(ctx context.Context, root string) (*photodb.VerifyResult, error) {
	ledger, err := a.openLedger(root)
	if err != nil {
		return nil, err
	}
	return a.service.Verify(ctx, ledger)
}

// FindUntracked lists RAW files under root that the ledger does not reference.
func (a *PhotoApp) FindUntracked(ctx context.Context, root string) ([]string, error) {
	ledger, err := a.openLedger(root)
	if err != nil {
		return nil, err
	}
	return a.service.FindUntracked(ctx, ledger)
}

// Sync replicates the archive at source into the archive at target.
// The operation is recorded in the target ledger when opts.Apply is set.
func (a *PhotoApp) Sync(ctx context.Context, source, target string, opts photodb.SyncOptions) (*photodb.SyncResult, error) {
	src, err := a.openLedger(source)
	if err != nil {
		return nil, a.op.Record(fmt.Errorf("source: %w", err))
	}
	tgt, err := a.openLedger(target)
	if err != nil {
		return nil, a.op.Record(fmt.Errorf("target: %w", err))
	}
	if src == tgt {
		return nil, a.op.Record(fmt.Errorf("source and target are the same archive: %s", src.Root()))
	}

	if opts.Apply {
		params := map[string]any{"source": src.Root(), "apply": true}
		if err := a.persistOperation(ctx, tgt, params); err != nil {
			return nil, a.op.Record(err)
		}
	}

	res, err := a.service.Sync(ctx, src, tgt, opts)
	return res, a.op.Record(err)
}

// Clean removes source copies of photos tracked by the archive at root whose
// original path starts with prefix. A relative prefix is made absolute; a
// trailing separator is kept so "/card/" does not match "/card2".
func (a *PhotoApp) Clean(ctx context.Context, root, prefix string, del bool) (*photodb.CleanResult, error) {
	ledger, err := a.openLedger(root)
	if err != nil {
		return nil, a.op.Record(err)
	}
	if prefix != "" && !filepath.IsAbs(prefix) {
		abs, err := filepath.Abs(prefix)
		if err != nil {
			return nil, a.op.Record(fmt.Errorf("resolving prefix: %w", err))
		}
		if strings.HasSuffix(prefix, string(filepath.Separator)) {
			abs += string(filepath.Separator)
		}
		prefix = abs
	}

	if del {
		if err := a.persistOperation(ctx, ledger, map[string]any{"prefix": prefix, "delete": true}); err != nil {
			return nil, a.op.Record(err)
		}
	}

	res, err := a.service.Clean(ctx, ledger, photodb.CleanOptions{Prefix: prefix, Delete: del})
	return res, a.op.Record(err)
}

// GetHistory returns the most recent operations recorded in the archive at root.
func (a *PhotoApp) GetHistory(ctx context.Context, root string, limit int) ([]*model.Operation, error) {
	ledger, err := a.openLedger(root)
	if err != nil {
		return nil, err
	}
	return a.service.GetHistory(ctx, ledger, limit)
}

// DumpEXIF writes the EXIF tags of the file at path to out.
func (a *PhotoApp) DumpEXIF(out io.Writer, path string, datesOnly bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	data, err := a.fsmgr.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("reading %s: %w", abs, err)
	}
	return metadata.Dump(out, data, datesOnly)
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record, snapshots the
// ledger, and uploads the snapshot to the backup vault.
// For non-persisted operations: just closes the ledgers.
func (a *PhotoApp) Close() error {
	ctx := context.Background()
	var errs []error

	var snapshotPath string
	if a.op.Persisted() {
		if err := a.opLedger.FinishOperation(ctx, a.op.ID, a.op.Status, a.clock.Now()); err != nil {
			errs = append(errs, fmt.Errorf("finishing operation: %w", err))
		}
		a.logger.Info("operation finished", "operation", a.op.Name, "id", a.op.ID, "status", a.op.Status)

		if a.vault != nil {
			path, err := a.snapshotLedger(ctx, a.opLedger)
			if err != nil {
				errs = append(errs, err)
			}
			snapshotPath = path
		}
	}

	for _, l := range a.ledgers {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing ledger %s: %w", l.Root(), err))
		}
	}

	if snapshotPath != "" {
		if err := a.uploadSnapshot(ctx, snapshotPath, a.snapshotName(a.opLedger.Root()), a.op.ID); err != nil {
			errs = append(errs, err)
		}
		os.Remove(snapshotPath)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return errors.Join(errs...)
}

// snapshotLedger writes a consistent copy of ledger to a temp file and
// returns its path.
func (a *PhotoApp) snapshotLedger(ctx context.Context, ledger *database.SQLiteLedger) (string, error) {
	tmpFile, err := os.CreateTemp("", "photodb-ledger-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for ledger snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	if err := ledger.BackupTo(ctx, tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("snapshotting ledger: %w", err)
	}
	return tmpPath, nil
}

// uploadSnapshot uploads the snapshot at path with the given version, unless
// the vault already holds that version or a newer one.
func (a *PhotoApp) uploadSnapshot(ctx context.Context, path, name string, version int64) error {
	remote, err := a.vault.SnapshotVersion(ctx, name)
	if err != nil {
		return fmt.Errorf("checking backup snapshot version: %w", err)
	}
	if remote >= version {
		a.logger.Info("backup snapshot up to date", "name", name, "version", remote)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening ledger snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger snapshot: %w", err)
	}

	if err := a.vault.PutSnapshot(ctx, name, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading ledger snapshot: %w", err)
	}
	a.logger.Info("backup snapshot uploaded", "name", name, "version", version, "size", info.Size())
	return nil
}
