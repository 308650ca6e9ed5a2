package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"photodb/internal/model"
	"photodb/internal/photodb"
)

// newTestLedger creates an archive root in a temp dir with a fresh ledger.
func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()

	root := t.TempDir()
	if _, err := CreateLedger(root, DefaultOptions()); err != nil {
		t.Fatalf("CreateLedger() error = %v", err)
	}
	l, err := OpenLedger(root, DefaultOptions())
	if err != nil {
		t.Fatalf("OpenLedger() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func fp(b byte) model.Fingerprint {
	var f model.Fingerprint
	f[0] = b
	f[15] = ^b
	return f
}

func record(b byte, original string) *model.PhotoRecord {
	name := filepath.Base(original)
	return &model.PhotoRecord{
		Fingerprint:  fp(b),
		OriginalPath: original,
		ArchivePath:  filepath.Join("/archive/2024/3/X100", name),
		Year:         2024,
		Month:        3,
		Model:        "X100",
	}
}

func TestCreateLedger(t *testing.T) {
	t.Run("creates ledger under .photodb", func(t *testing.T) {
		root := t.TempDir()

		created, err := CreateLedger(root, DefaultOptions())
		if err != nil {
			t.Fatalf("CreateLedger() error = %v", err)
		}
		if !created {
			t.Error("CreateLedger() created = false, want true")
		}
		if _, err := os.Stat(filepath.Join(root, ".photodb", "photodb.db")); err != nil {
			t.Errorf("ledger file not created: %v", err)
		}
	})

	t.Run("reports existing ledger without failing", func(t *testing.T) {
		root := t.TempDir()
		if _, err := CreateLedger(root, DefaultOptions()); err != nil {
			t.Fatalf("first CreateLedger() error = %v", err)
		}

		created, err := CreateLedger(root, DefaultOptions())
		if err != nil {
			t.Fatalf("second CreateLedger() error = %v", err)
		}
		if created {
			t.Error("second CreateLedger() created = true, want false")
		}
	})

	t.Run("fails when root is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "not-a-dir")
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := CreateLedger(file, DefaultOptions()); err == nil {
			t.Error("CreateLedger() expected error for file root")
		}
	})
}

func TestOpenLedger(t *testing.T) {
	t.Run("fails without ledger", func(t *testing.T) {
		_, err := OpenLedger(t.TempDir(), DefaultOptions())
		if err == nil {
			t.Fatal("OpenLedger() expected error for root without ledger")
		}
	})

	t.Run("fails when root missing", func(t *testing.T) {
		_, err := OpenLedger(filepath.Join(t.TempDir(), "missing"), DefaultOptions())
		if err == nil {
			t.Fatal("OpenLedger() expected error for missing root")
		}
	})

	t.Run("reports root and path", func(t *testing.T) {
		l := newTestLedger(t)
		if filepath.Dir(filepath.Dir(l.Path())) != l.Root() {
			t.Errorf("Path() = %q, want under %q", l.Path(), l.Root())
		}
	})
}

func TestSQLiteLedger_InsertAndContains(t *testing.T) {
	ctx := context.Background()

	t.Run("contains is false for unknown fingerprint", func(t *testing.T) {
		l := newTestLedger(t)

		ok, err := l.Contains(ctx, fp(1))
		if err != nil {
			t.Fatalf("Contains() error = %v", err)
		}
		if ok {
			t.Error("Contains() = true, want false")
		}
	})

	t.Run("insert then contains", func(t *testing.T) {
		l := newTestLedger(t)

		if err := l.Insert(ctx, record(1, "/in/a.nef")); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		ok, err := l.Contains(ctx, fp(1))
		if err != nil {
			t.Fatalf("Contains() error = %v", err)
		}
		if !ok {
			t.Error("Contains() = false, want true")
		}
	})

	t.Run("duplicate insert is ErrDuplicate", func(t *testing.T) {
		l := newTestLedger(t)

		if err := l.Insert(ctx, record(1, "/in/a.nef")); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		err := l.Insert(ctx, record(1, "/elsewhere/a.nef"))
		if !errors.Is(err, photodb.ErrDuplicate) {
			t.Fatalf("second Insert() error = %v, want ErrDuplicate", err)
		}
		if photodb.KindOf(err) != photodb.KindConstraint {
			t.Errorf("KindOf() = %v, want constraint", photodb.KindOf(err))
		}

		// First write wins.
		got, err := l.FindByFingerprint(ctx, fp(1))
		if err != nil {
			t.Fatalf("FindByFingerprint() error = %v", err)
		}
		if got.OriginalPath != "/in/a.nef" {
			t.Errorf("OriginalPath = %q, want /in/a.nef", got.OriginalPath)
		}
	})

	t.Run("round trips every field", func(t *testing.T) {
		l := newTestLedger(t)
		want := &model.PhotoRecord{
			Fingerprint:  fp(9),
			OriginalPath: "/in/ü.dng",
			ArchivePath:  "/archive/0/0/unknown/ü.dng",
			Year:         0,
			Month:        0,
			Model:        "unknown",
		}
		if err := l.Insert(ctx, want); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}

		got, err := l.FindByArchivePath(ctx, want.ArchivePath)
		if err != nil {
			t.Fatalf("FindByArchivePath() error = %v", err)
		}
		if got == nil || *got != *want {
			t.Errorf("FindByArchivePath() = %+v, want %+v", got, want)
		}
	})
}

func TestSQLiteLedger_ConcurrentInsertRace(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	const workers = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		success    int
		duplicates int
		others     []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := l.Insert(ctx, record(7, fmt.Sprintf("/in/copy-%d.nef", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, photodb.ErrDuplicate):
				duplicates++
			default:
				others = append(others, err)
			}
		}(i)
	}
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if success != 1 || duplicates != workers-1 {
		t.Errorf("success=%d duplicates=%d, want 1 and %d", success, duplicates, workers-1)
	}
	n, err := l.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestSQLiteLedger_All(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	for i := byte(1); i <= 3; i++ {
		if err := l.Insert(ctx, record(i, fmt.Sprintf("/in/%d.nef", i))); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	all, err := l.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(All()) = %d, want 3", len(all))
	}
	seen := make(map[model.Fingerprint]bool)
	for _, r := range all {
		if seen[r.Fingerprint] {
			t.Errorf("fingerprint %s listed twice", r.Fingerprint)
		}
		seen[r.Fingerprint] = true
	}
}

func TestSQLiteLedger_FindByOriginalPrefix(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	paths := []string{
		"/card/DCIM/a.nef",
		"/card/DCIM/sub/b.nef",
		"/card2/c.nef",
		"/cards_x/d.nef", // '_' is a LIKE wildcard; must not match "/card%"
		"/other/e.nef",
	}
	for i, p := range paths {
		if err := l.Insert(ctx, record(byte(i+1), p)); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	tests := []struct {
		prefix string
		want   []string
	}{
		{"/card/", []string{"/card/DCIM/a.nef", "/card/DCIM/sub/b.nef"}},
		{"/card", []string{"/card/DCIM/a.nef", "/card/DCIM/sub/b.nef", "/card2/c.nef", "/cards_x/d.nef"}},
		{"/card_", nil},
		{"/card%", nil},
		{"/nowhere", nil},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got, err := l.FindByOriginalPrefix(ctx, tt.prefix)
			if err != nil {
				t.Fatalf("FindByOriginalPrefix() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("FindByOriginalPrefix(%q) returned %d rows, want %d", tt.prefix, len(got), len(tt.want))
			}
			for i, r := range got {
				if r.OriginalPath != tt.want[i] {
					t.Errorf("row %d = %q, want %q", i, r.OriginalPath, tt.want[i])
				}
			}
		})
	}
}

func TestSQLiteLedger_FindByArchivePath_NotFound(t *testing.T) {
	l := newTestLedger(t)

	got, err := l.FindByArchivePath(context.Background(), "/nope")
	if err != nil {
		t.Fatalf("FindByArchivePath() error = %v", err)
	}
	if got != nil {
		t.Errorf("FindByArchivePath() = %v, want nil", got)
	}
}

func TestSQLiteLedger_Operations(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	maxID, err := l.MaxOperationID(ctx)
	if err != nil {
		t.Fatalf("MaxOperationID() error = %v", err)
	}
	if maxID != 0 {
		t.Errorf("MaxOperationID() = %d, want 0", maxID)
	}

	op, err := l.CreateOperation(ctx, "import", "/card", start)
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if op.ID == 0 {
		t.Fatal("CreateOperation() returned ID 0")
	}
	if err := l.FinishOperation(ctx, op.ID, "success", start.Add(2*time.Second)); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}
	if _, err := l.CreateOperation(ctx, "sync", "", start.Add(time.Minute)); err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}

	ops, err := l.ListOperations(ctx, 10)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("len(ListOperations()) = %d, want 2", len(ops))
	}
	if ops[0].Operation != "sync" || ops[0].FinishedAt != nil || ops[0].Status != "running" {
		t.Errorf("newest op = %+v, want running sync", ops[0])
	}
	if ops[1].Status != "success" || ops[1].FinishedAt == nil {
		t.Fatalf("oldest op = %+v, want finished success", ops[1])
	}
	if d := ops[1].FinishedAt.Sub(ops[1].StartedAt); d != 2*time.Second {
		t.Errorf("duration = %v, want 2s", d)
	}

	limited, err := l.ListOperations(ctx, 1)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("len(ListOperations(1)) = %d, want 1", len(limited))
	}
}

func TestSQLiteLedger_BackupTo(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	if err := l.Insert(ctx, record(1, "/in/a.nef")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	// The snapshot is itself a valid ledger once placed under a root.
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".photodb"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := l.BackupTo(ctx, LedgerPath(root)); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	copyLedger, err := OpenLedger(root, DefaultOptions())
	if err != nil {
		t.Fatalf("OpenLedger(snapshot) error = %v", err)
	}
	defer copyLedger.Close()

	ok, err := copyLedger.Contains(ctx, fp(1))
	if err != nil {
		t.Fatalf("Contains() error = %v", err)
	}
	if !ok {
		t.Error("snapshot is missing the inserted record")
	}
}

func TestSQLiteLedger_Close(t *testing.T) {
	root := t.TempDir()
	if _, err := CreateLedger(root, DefaultOptions()); err != nil {
		t.Fatalf("CreateLedger() error = %v", err)
	}
	l, err := OpenLedger(root, DefaultOptions())
	if err != nil {
		t.Fatalf("OpenLedger() error = %v", err)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	err = l.Insert(context.Background(), record(1, "/in/a.nef"))
	if !errors.Is(err, photodb.ErrLedgerClosed) {
		t.Errorf("Insert() after Close error = %v, want ErrLedgerClosed", err)
	}
}

func TestSQLiteLedger_InsertCancelled(t *testing.T) {
	l := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Insert(ctx, record(1, "/in/a.nef")); err == nil {
		t.Error("Insert() with cancelled context expected error")
	}
}
