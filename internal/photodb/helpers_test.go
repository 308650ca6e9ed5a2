package photodb_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"photodb/internal/database"
	"photodb/internal/model"
	"photodb/internal/photodb"
	"photodb/internal/testutil"
)

// archive bundles a ledger with a mock filesystem holding its root.
type archive struct {
	fs     *testutil.MockFilesystemManager
	ledger *database.SQLiteLedger
}

func newArchive(t *testing.T, fsmgr *testutil.MockFilesystemManager) *archive {
	t.Helper()
	l := testutil.NewTestLedger(t)
	fsmgr.AddDirectory(l.Root())
	return &archive{fs: fsmgr, ledger: l}
}

func (a *archive) root() string { return a.ledger.Root() }

func newService(fsmgr photodb.FilesystemManager) *photodb.PhotoService {
	return newServiceWith(fsmgr, testutil.FakeDecoder{})
}

func newServiceWith(fsmgr photodb.FilesystemManager, dec photodb.Decoder) *photodb.PhotoService {
	return photodb.NewPhotoService(fsmgr, dec, testutil.FakeMetadataReader{}, photodb.NewNopLogger(), testutil.FixedClock(), 4)
}

// sourceDir creates an empty import source directory in the mock filesystem.
func sourceDir(t *testing.T, fsmgr *testutil.MockFilesystemManager) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "card", "DCIM")
	fsmgr.AddDirectory(dir)
	return dir
}

func resolve(t *testing.T, fsmgr photodb.FilesystemManager, path string) *photodb.Path {
	t.Helper()
	p, err := fsmgr.Resolve(path)
	if err != nil {
		t.Fatalf("Resolve(%s) error = %v", path, err)
	}
	return p
}

var importAll = photodb.ImportOptions{Move: true, Insert: true}

func runImport(t *testing.T, svc *photodb.PhotoService, a *archive, src string, opts photodb.ImportOptions) *photodb.ImportResult {
	t.Helper()
	res, err := svc.Import(context.Background(), a.ledger, resolve(t, a.fs, src), opts)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	return res
}

func count(t *testing.T, l photodb.Ledger) int64 {
	t.Helper()
	n, err := l.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	return n
}

func allRecords(t *testing.T, l photodb.Ledger) []*model.PhotoRecord {
	t.Helper()
	recs, err := l.All(context.Background())
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	return recs
}

func fingerprints(recs []*model.PhotoRecord) map[model.Fingerprint]bool {
	set := make(map[model.Fingerprint]bool, len(recs))
	for _, r := range recs {
		set[r.Fingerprint] = true
	}
	return set
}

// countingDecoder records how many times Decode is called.
type countingDecoder struct {
	inner photodb.Decoder
	calls atomic.Int64
}

func (d *countingDecoder) Decode(data []byte) (*photodb.RawImage, error) {
	d.calls.Add(1)
	return d.inner.Decode(data)
}

// insertFailLedger fails every Insert with err.
type insertFailLedger struct {
	photodb.Ledger
	err error
}

func (l insertFailLedger) Insert(context.Context, *model.PhotoRecord) error { return l.err }

// blindLedger never reports a fingerprint as present, so uniqueness is only
// discovered by Insert.
type blindLedger struct {
	photodb.Ledger
}

func (blindLedger) Contains(context.Context, model.Fingerprint) (bool, error) { return false, nil }
