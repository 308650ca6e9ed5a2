package photodb_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"photodb/internal/model"
	"photodb/internal/photodb"
	"photodb/internal/testutil"
)

// populatedArchive imports n distinct photos into a fresh archive.
func populatedArchive(t *testing.T, fsmgr *testutil.MockFilesystemManager, n int) *archive {
	t.Helper()
	a := newArchive(t, fsmgr)
	src := sourceDir(t, fsmgr)
	for i := 0; i < n; i++ {
		name := filepath.Join(src, "IMG_"+string(rune('A'+i))+".CR3")
		fsmgr.AddFile(name, testutil.EncodeFakeRaw("Canon", "EOS R8", "2023-10-0"+string(rune('1'+i%9)), uint16(i), 100))
	}
	res := runImport(t, newService(fsmgr), a, src, importAll)
	if res.Imported != n {
		t.Fatalf("Import() = %s, want imported=%d", res.Summary(), n)
	}
	return a
}

func runSync(t *testing.T, svc *photodb.PhotoService, src, tgt *archive, opts photodb.SyncOptions) *photodb.SyncResult {
	t.Helper()
	res, err := svc.Sync(context.Background(), src.ledger, tgt.ledger, opts)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	return res
}

func TestSync_Completeness(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	src := populatedArchive(t, fsmgr, 4)
	tgt := newArchive(t, fsmgr)
	svc := newService(fsmgr)

	res := runSync(t, svc, src, tgt, photodb.SyncOptions{Apply: true})
	if res.Missing != 4 || res.Synced != 4 || res.Failed != 0 {
		t.Fatalf("Sync() = %s, want missing=4 synced=4 failed=0", res.Summary())
	}

	srcRecs := allRecords(t, src.ledger)
	tgtRecs := allRecords(t, tgt.ledger)
	srcSet, tgtSet := fingerprints(srcRecs), fingerprints(tgtRecs)
	if len(srcSet) != len(tgtSet) {
		t.Fatalf("target has %d fingerprints, want %d", len(tgtSet), len(srcSet))
	}
	for fp := range srcSet {
		if !tgtSet[fp] {
			t.Errorf("fingerprint %s missing from target", fp)
		}
	}

	bySrcFP := make(map[model.Fingerprint]*model.PhotoRecord)
	for _, r := range srcRecs {
		bySrcFP[r.Fingerprint] = r
	}
	for _, r := range tgtRecs {
		if !strings.HasPrefix(r.ArchivePath, tgt.root()+string(filepath.Separator)) {
			t.Errorf("target ArchivePath %s is outside the target root", r.ArchivePath)
		}
		if !fsmgr.Has(r.ArchivePath) {
			t.Errorf("target file %s does not exist", r.ArchivePath)
		}
		s := bySrcFP[r.Fingerprint]
		if r.OriginalPath != s.ArchivePath {
			t.Errorf("OriginalPath = %s, want source archive path %s", r.OriginalPath, s.ArchivePath)
		}
		if r.Year != s.Year || r.Month != s.Month || r.Model != s.Model {
			t.Errorf("target record %+v does not carry source placement %+v", r, s)
		}
	}
}

func TestSync_Idempotent(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	src := populatedArchive(t, fsmgr, 3)
	tgt := newArchive(t, fsmgr)
	svc := newService(fsmgr)

	runSync(t, svc, src, tgt, photodb.SyncOptions{Apply: true})
	writes := fsmgr.Writes()

	res := runSync(t, svc, src, tgt, photodb.SyncOptions{Apply: true})
	if res.Missing != 0 || len(res.Outcomes) != 0 {
		t.Errorf("second Sync() = %s, want nothing missing", res.Summary())
	}
	if fsmgr.Writes() != writes {
		t.Errorf("second Sync() wrote %d files", fsmgr.Writes()-writes)
	}
	if got := count(t, tgt.ledger); got != 3 {
		t.Errorf("target rows = %d, want 3", got)
	}
}

func TestSync_ReportOnly(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	src := populatedArchive(t, fsmgr, 2)
	tgt := newArchive(t, fsmgr)
	writes := fsmgr.Writes()

	res := runSync(t, newService(fsmgr), src, tgt, photodb.SyncOptions{})
	if res.Pending != 2 || res.Synced != 0 {
		t.Errorf("Sync() = %s, want pending=2 synced=0", res.Summary())
	}
	if fsmgr.Writes() != writes {
		t.Error("report-only sync wrote files")
	}
	if count(t, tgt.ledger) != 0 {
		t.Error("report-only sync inserted rows")
	}
	for _, o := range res.Outcomes {
		if !strings.HasPrefix(o.Line(), "mock synced ") {
			t.Errorf("Line() = %q, want mock synced line", o.Line())
		}
	}
}

func TestSync_DestinationPresent(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	src := populatedArchive(t, fsmgr, 1)
	tgt := newArchive(t, fsmgr)

	rec := allRecords(t, src.ledger)[0]
	dest := photodb.CanonicalPath(tgt.root(), rec.Model, rec.Year, rec.Month, photodb.CanonicalName(rec.ArchivePath))
	fsmgr.AddFile(dest, []byte("left over from an earlier copy"))

	res := runSync(t, newService(fsmgr), src, tgt, photodb.SyncOptions{Apply: true})
	if res.Present != 1 {
		t.Fatalf("Sync() = %s, want present=1", res.Summary())
	}
	if got := res.Outcomes[0].Line(); got != "already present "+dest {
		t.Errorf("Line() = %q, want %q", got, "already present "+dest)
	}
	if count(t, tgt.ledger) != 0 {
		t.Error("sync inserted a row for a file it did not copy")
	}
}

func TestSync_CopyFailure(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	src := populatedArchive(t, fsmgr, 3)
	tgt := newArchive(t, fsmgr)

	broken := allRecords(t, src.ledger)[0]
	fsmgr.FailOn("copy", broken.ArchivePath, errors.New("no space left on device"))

	res := runSync(t, newService(fsmgr), src, tgt, photodb.SyncOptions{Apply: true})
	if res.Synced != 2 || res.Failed != 1 {
		t.Fatalf("Sync() = %s, want synced=2 failed=1", res.Summary())
	}
	for _, o := range res.Outcomes {
		if o.Status == photodb.SyncFailed && photodb.KindOf(o.Err) != photodb.KindIO {
			t.Errorf("failed outcome kind = %s, want io", photodb.KindOf(o.Err))
		}
	}
	if ok, _ := tgt.ledger.Contains(context.Background(), broken.Fingerprint); ok {
		t.Error("failed copy was recorded in the target ledger")
	}
}

func TestSync_InsertFailureRemovesCopy(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	src := populatedArchive(t, fsmgr, 1)
	tgt := newArchive(t, fsmgr)

	target := insertFailLedger{Ledger: tgt.ledger, err: errors.New("database is locked")}
	res, err := newService(fsmgr).Sync(context.Background(), src.ledger, target, photodb.SyncOptions{Apply: true})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("Sync() = %s, want failed=1", res.Summary())
	}
	if fsmgr.Has(res.Outcomes[0].Dest) {
		t.Error("copy without a ledger row was left in the target")
	}
}

func TestMissingRecords(t *testing.T) {
	mk := func(b byte, path string) *model.PhotoRecord {
		var fp model.Fingerprint
		fp[0] = b
		return &model.PhotoRecord{Fingerprint: fp, ArchivePath: path}
	}
	source := []*model.PhotoRecord{mk(1, "/s/c"), mk(2, "/s/a"), mk(3, "/s/b")}
	target := []*model.PhotoRecord{mk(2, "/t/a")}

	got := photodb.MissingRecords(source, target)
	if len(got) != 2 {
		t.Fatalf("MissingRecords() returned %d records, want 2", len(got))
	}
	if got[0].ArchivePath != "/s/b" || got[1].ArchivePath != "/s/c" {
		t.Errorf("MissingRecords() = [%s %s], want [/s/b /s/c]", got[0].ArchivePath, got[1].ArchivePath)
	}

	if n := len(photodb.MissingRecords(nil, target)); n != 0 {
		t.Errorf("MissingRecords(nil, target) returned %d records", n)
	}
}
