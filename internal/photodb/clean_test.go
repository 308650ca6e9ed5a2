package photodb_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"photodb/internal/photodb"
	"photodb/internal/testutil"
)

// importedFrom imports n photos and returns the archive and the source dir.
func importedFrom(t *testing.T, n int) (*testutil.MockFilesystemManager, *archive, string) {
	t.Helper()
	fsmgr := testutil.NewMockFilesystemManager()
	a := newArchive(t, fsmgr)
	src := sourceDir(t, fsmgr)
	for i := 0; i < n; i++ {
		fsmgr.AddFile(src+"/P"+string(rune('0'+i))+".ORF", testutil.EncodeFakeRaw("OLYMPUS", "E-M1", "2022-05-05", uint16(i+1)))
	}
	if res := runImport(t, newService(fsmgr), a, src, importAll); res.Imported != n {
		t.Fatalf("Import() = %s, want imported=%d", res.Summary(), n)
	}
	return fsmgr, a, src
}

func runClean(t *testing.T, svc *photodb.PhotoService, a *archive, opts photodb.CleanOptions) *photodb.CleanResult {
	t.Helper()
	res, err := svc.Clean(context.Background(), a.ledger, opts)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	return res
}

func TestClean_ReportThenDelete(t *testing.T) {
	fsmgr, a, src := importedFrom(t, 3)
	svc := newService(fsmgr)

	res := runClean(t, svc, a, photodb.CleanOptions{Prefix: src})
	if res.Pending != 3 || res.Deleted != 0 {
		t.Fatalf("Clean() = %s, want pending=3", res.Summary())
	}
	if fsmgr.Removes() != 0 {
		t.Fatal("report-only clean removed files")
	}
	for _, o := range res.Outcomes {
		if !strings.HasPrefix(o.Line(), "mock deleted ") {
			t.Errorf("Line() = %q, want mock deleted line", o.Line())
		}
	}

	res = runClean(t, svc, a, photodb.CleanOptions{Prefix: src, Delete: true})
	if res.Deleted != 3 {
		t.Fatalf("Clean() = %s, want deleted=3", res.Summary())
	}
	for _, r := range allRecords(t, a.ledger) {
		if fsmgr.Has(r.OriginalPath) {
			t.Errorf("source %s still exists", r.OriginalPath)
		}
		if !fsmgr.Has(r.ArchivePath) {
			t.Errorf("archive copy %s was removed", r.ArchivePath)
		}
	}
	if got := count(t, a.ledger); got != 3 {
		t.Errorf("ledger rows = %d, want 3", got)
	}

	res = runClean(t, svc, a, photodb.CleanOptions{Prefix: src, Delete: true})
	if res.Gone != 3 {
		t.Errorf("third Clean() = %s, want gone=3", res.Summary())
	}
}

func TestClean_PrefixSelectsRecords(t *testing.T) {
	fsmgr, a, src := importedFrom(t, 2)

	res := runClean(t, newService(fsmgr), a, photodb.CleanOptions{Prefix: src + "/P0"})
	if len(res.Outcomes) != 1 || res.Outcomes[0].Record.OriginalPath != src+"/P0.ORF" {
		t.Errorf("Clean() outcomes = %d, want only P0.ORF", len(res.Outcomes))
	}

	res = runClean(t, newService(fsmgr), a, photodb.CleanOptions{Prefix: "/nowhere"})
	if len(res.Outcomes) != 0 {
		t.Errorf("Clean() matched %d records for an unrelated prefix", len(res.Outcomes))
	}
}

func TestClean_ArchiveCopyMissing(t *testing.T) {
	fsmgr, a, src := importedFrom(t, 1)
	rec := allRecords(t, a.ledger)[0]
	if err := fsmgr.Remove(rec.ArchivePath); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	removes := fsmgr.Removes()

	res := runClean(t, newService(fsmgr), a, photodb.CleanOptions{Prefix: src, Delete: true})
	if res.Skipped != 1 {
		t.Fatalf("Clean() = %s, want skipped=1", res.Summary())
	}
	if res.Outcomes[0].Reason != "archive copy missing" {
		t.Errorf("Reason = %q", res.Outcomes[0].Reason)
	}
	if !fsmgr.Has(rec.OriginalPath) || fsmgr.Removes() != removes {
		t.Error("source was removed although its archive copy is missing")
	}
}

func TestClean_ArchiveIsOriginal(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	a := newArchive(t, fsmgr)
	path := a.root() + "/2022/5/E-M1/P0.ORF"
	fsmgr.AddFile(path, testutil.EncodeFakeRaw("OLYMPUS", "E-M1", "2022-05-05", 1))

	// Importing an archive into itself records original == archive path.
	runImport(t, newService(fsmgr), a, a.root(), photodb.ImportOptions{Insert: true})

	res := runClean(t, newService(fsmgr), a, photodb.CleanOptions{Prefix: a.root(), Delete: true})
	if res.Skipped != 1 || res.Outcomes[0].Reason != "original is the archive copy" {
		t.Fatalf("Clean() = %s, want the archive copy skipped", res.Summary())
	}
	if !fsmgr.Has(path) {
		t.Error("archive copy was removed")
	}
}

func TestClean_RemoveFailure(t *testing.T) {
	fsmgr, a, src := importedFrom(t, 2)
	recs := allRecords(t, a.ledger)
	fsmgr.FailOn("remove", recs[0].OriginalPath, errors.New("read-only file system"))

	res := runClean(t, newService(fsmgr), a, photodb.CleanOptions{Prefix: src, Delete: true})
	if res.Failed != 1 || res.Deleted != 1 {
		t.Fatalf("Clean() = %s, want failed=1 deleted=1", res.Summary())
	}
	for _, o := range res.Outcomes {
		if o.Status == photodb.CleanFailed && photodb.KindOf(o.Err) != photodb.KindIO {
			t.Errorf("KindOf() = %s, want io", photodb.KindOf(o.Err))
		}
	}
}

func TestClean_EmptyPrefix(t *testing.T) {
	fsmgr, a, _ := importedFrom(t, 1)
	if _, err := newService(fsmgr).Clean(context.Background(), a.ledger, photodb.CleanOptions{Delete: true}); err == nil {
		t.Error("Clean() expected error for empty prefix")
	}
	if fsmgr.Removes() != 0 {
		t.Error("Clean() removed files for an empty prefix")
	}
}
