package photodb

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"photodb/internal/fingerprint"
	"photodb/internal/model"
)

// VerifyStatus is the result of re-deriving one record's fingerprint.
type VerifyStatus int

const (
	VerifyError VerifyStatus = iota
	VerifyVerified
	VerifyMismatch
	VerifyMissing
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyVerified:
		return "verified"
	case VerifyMismatch:
		return "mismatch"
	case VerifyMissing:
		return "missing"
	default:
		return "error"
	}
}

// VerifyOutcome describes one ledger record.
type VerifyOutcome struct {
	Record *model.PhotoRecord
	Status VerifyStatus
	Actual model.Fingerprint // set for Verified and Mismatch
	Err    error
}

// Line renders the per-record report line.
func (o *VerifyOutcome) Line() string {
	p := o.Record.ArchivePath
	switch o.Status {
	case VerifyVerified:
		return fmt.Sprintf("verified %s -> %s", p, o.Actual)
	case VerifyMismatch:
		return fmt.Sprintf("mismatch %s -> %s != %s", p, o.Actual, o.Record.Fingerprint)
	case VerifyMissing:
		return fmt.Sprintf("missing %s", p)
	default:
		return fmt.Sprintf("error: %s: %v", p, o.Err)
	}
}

// VerifyResult aggregates a verification pass.
type VerifyResult struct {
	Outcomes []*VerifyOutcome // sorted by archive path
	Verified int
	Mismatch int
	Missing  int
	Errors   int
}

// Summary renders the run counters.
func (r *VerifyResult) Summary() string {
	return fmt.Sprintf("verified=%d mismatch=%d missing=%d error=%d", r.Verified, r.Mismatch, r.Missing, r.Errors)
}

// OK reports whether every record verified.
func (r *VerifyResult) OK() bool {
	return r.Mismatch == 0 && r.Missing == 0 && r.Errors == 0
}

// Verify re-reads, decodes and fingerprints every file the ledger references
// and compares the result with the stored fingerprint. It never writes.
func (s *PhotoService) Verify(ctx context.Context, ledger Ledger) (*VerifyResult, error) {
	records, err := ledger.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	start := s.clock.Now()
	s.logger.Info("verify started", "archive", ledger.Root(), "records", len(records))

	var (
		mu     sync.Mutex
		result = &VerifyResult{}
	)
	runErr := forEach(ctx, s.workers, records, func(_ context.Context, r *model.PhotoRecord) {
		o := s.verifyRecord(r)
		mu.Lock()
		defer mu.Unlock()
		result.Outcomes = append(result.Outcomes, o)
		switch o.Status {
		case VerifyVerified:
			result.Verified++
		case VerifyMismatch:
			result.Mismatch++
		case VerifyMissing:
			result.Missing++
		default:
			result.Errors++
		}
	})

	slices.SortFunc(result.Outcomes, func(a, b *VerifyOutcome) int {
		return strings.Compare(a.Record.ArchivePath, b.Record.ArchivePath)
	})

	s.logger.Info("verify finished", "verified", result.Verified, "mismatch", result.Mismatch,
		"missing", result.Missing, "error", result.Errors, "elapsed", s.clock.Now().Sub(start))

	if runErr != nil {
		return result, fmt.Errorf("verify interrupted: %w", runErr)
	}
	return result, nil
}

func (s *PhotoService) verifyRecord(r *model.PhotoRecord) *VerifyOutcome {
	o := &VerifyOutcome{Record: r}
	path := r.ArchivePath

	exists, err := s.fsmgr.Exists(path)
	if err != nil {
		o.Err = NewFileError(KindIO, "stat", path, err)
		return o
	}
	if !exists {
		o.Status = VerifyMissing
		s.logger.Warn("archive file missing", "path", path, "fingerprint", r.Fingerprint.String())
		return o
	}

	data, err := s.fsmgr.ReadFile(path)
	if err != nil {
		o.Err = NewFileError(KindIO, "read", path, err)
		return o
	}
	img, err := s.decoder.Decode(data)
	if err != nil {
		o.Err = NewFileError(KindDecode, "decode", path, err)
		return o
	}

	o.Actual = fingerprint.Sum(img.Samples)
	if o.Actual != r.Fingerprint {
		o.Status = VerifyMismatch
		s.logger.Error("fingerprint mismatch", "path", path, "stored", r.Fingerprint.String(), "actual", o.Actual.String())
		return o
	}
	o.Status = VerifyVerified
	return o
}

// FindUntracked lists RAW files under the ledger's archive root that no
// record references. The ledger directory itself is hidden and never listed.
func (s *PhotoService) FindUntracked(ctx context.Context, ledger Ledger) ([]string, error) {
	root, err := s.fsmgr.Resolve(ledger.Root())
	if err != nil {
		return nil, fmt.Errorf("resolving archive root: %w", err)
	}
	files, err := s.fsmgr.FindImages(root)
	if err != nil {
		return nil, fmt.Errorf("finding images: %w", err)
	}
	records, err := ledger.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	tracked := make(map[string]struct{}, len(records))
	for _, r := range records {
		tracked[r.ArchivePath] = struct{}{}
	}

	var untracked []string
	for _, f := range files {
		if _, ok := tracked[f.String()]; !ok {
			untracked = append(untracked, f.String())
		}
	}
	slices.Sort(untracked)

	s.logger.Info("untracked scan finished", "archive", ledger.Root(), "files", len(files), "untracked", len(untracked))
	return untracked, nil
}
