package photodb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"

	"photodb/internal/model"
)

// SyncOptions controls a sync run. The zero value only reports.
type SyncOptions struct {
	Apply bool // copy files and write target ledger rows
}

// SyncStatus is the terminal state of one missing record.
type SyncStatus int

const (
	SyncFailed SyncStatus = iota
	SyncSynced
	SyncPending // would be synced; Apply was false
	SyncPresent // a file already exists at the destination
)

func (s SyncStatus) String() string {
	switch s {
	case SyncSynced:
		return "synced"
	case SyncPending:
		return "pending"
	case SyncPresent:
		return "present"
	default:
		return "failed"
	}
}

// SyncOutcome describes one record that was missing from the target.
type SyncOutcome struct {
	Source *model.PhotoRecord
	Dest   string
	Status SyncStatus
	Err    error
}

// Line renders the per-record report line.
func (o *SyncOutcome) Line() string {
	switch o.Status {
	case SyncSynced:
		return fmt.Sprintf("synced %s -> %s", o.Source.ArchivePath, o.Dest)
	case SyncPending:
		return fmt.Sprintf("mock synced %s -> %s", o.Source.ArchivePath, o.Dest)
	case SyncPresent:
		return fmt.Sprintf("already present %s", o.Dest)
	default:
		return fmt.Sprintf("error: %s: %v", o.Source.ArchivePath, o.Err)
	}
}

// SyncResult aggregates a sync run.
type SyncResult struct {
	Outcomes []*SyncOutcome // sorted by source archive path
	Missing  int            // records in source but not in target
	Synced   int
	Pending  int
	Present  int
	Failed   int
}

// Summary renders the run counters.
func (r *SyncResult) Summary() string {
	return fmt.Sprintf("missing=%d synced=%d pending=%d present=%d failed=%d", r.Missing, r.Synced, r.Pending, r.Present, r.Failed)
}

// MissingRecords returns the records of source whose fingerprint is absent
// from target, sorted by archive path.
func MissingRecords(source, target []*model.PhotoRecord) []*model.PhotoRecord {
	have := make(map[model.Fingerprint]struct{}, len(target))
	for _, r := range target {
		have[r.Fingerprint] = struct{}{}
	}

	var missing []*model.PhotoRecord
	for _, r := range source {
		if _, ok := have[r.Fingerprint]; !ok {
			missing = append(missing, r)
		}
	}
	slices.SortFunc(missing, func(a, b *model.PhotoRecord) int { return strings.Compare(a.ArchivePath, b.ArchivePath) })
	return missing
}

// Sync replicates every record of source that target lacks, keyed by
// fingerprint. Files are copied to their canonical path under the target
// root and a row is inserted only after the copy is complete. The source is
// never modified. Without Apply nothing is written anywhere.
func (s *PhotoService) Sync(ctx context.Context, source, target Ledger, opts SyncOptions) (*SyncResult, error) {
	srcRecords, err := source.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading source ledger: %w", err)
	}
	tgtRecords, err := target.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading target ledger: %w", err)
	}

	missing := MissingRecords(srcRecords, tgtRecords)
	result := &SyncResult{Missing: len(missing)}

	start := s.clock.Now()
	s.logger.Info("sync started", "source", source.Root(), "target", target.Root(),
		"source_records", len(srcRecords), "target_records", len(tgtRecords), "missing", len(missing), "apply", opts.Apply)

	var mu sync.Mutex
	runErr := forEach(ctx, s.workers, missing, func(ctx context.Context, r *model.PhotoRecord) {
		o := s.syncRecord(ctx, target, r, opts)
		mu.Lock()
		defer mu.Unlock()
		result.Outcomes = append(result.Outcomes, o)
		switch o.Status {
		case SyncSynced:
			result.Synced++
		case SyncPending:
			result.Pending++
		case SyncPresent:
			result.Present++
		default:
			result.Failed++
		}
	})

	slices.SortFunc(result.Outcomes, func(a, b *SyncOutcome) int {
		return strings.Compare(a.Source.ArchivePath, b.Source.ArchivePath)
	})

	s.logger.Info("sync finished", "synced", result.Synced, "pending", result.Pending,
		"present", result.Present, "failed", result.Failed, "elapsed", s.clock.Now().Sub(start))

	if runErr != nil {
		return result, fmt.Errorf("sync interrupted: %w", runErr)
	}
	return result, nil
}

func (s *PhotoService) syncRecord(ctx context.Context, target Ledger, r *model.PhotoRecord, opts SyncOptions) *SyncOutcome {
	dest := CanonicalPath(target.Root(), r.Model, r.Year, r.Month, CanonicalName(r.ArchivePath))
	o := &SyncOutcome{Source: r, Dest: dest}

	exists, err := s.fsmgr.Exists(dest)
	if err != nil {
		return s.failSync(o, NewFileError(KindIO, "stat", dest, err))
	}
	if exists {
		o.Status = SyncPresent
		s.logger.Info("already present", "dest", dest, "fingerprint", r.Fingerprint.String())
		return o
	}

	if !opts.Apply {
		o.Status = SyncPending
		return o
	}

	if err := s.fsmgr.CopyFile(r.ArchivePath, dest); err != nil {
		if errors.Is(err, fs.ErrExist) {
			o.Status = SyncPresent
			s.logger.Info("already present", "dest", dest, "fingerprint", r.Fingerprint.String())
			return o
		}
		return s.failSync(o, NewFileError(KindIO, "copy", r.ArchivePath, err))
	}

	rec := &model.PhotoRecord{
		Fingerprint:  r.Fingerprint,
		OriginalPath: r.ArchivePath,
		ArchivePath:  dest,
		Year:         r.Year,
		Month:        r.Month,
		Model:        r.Model,
	}
	if err := target.Insert(ctx, rec); err != nil {
		// The copy is only kept when a row references it.
		if rerr := s.fsmgr.Remove(dest); rerr != nil {
			s.logger.Warn("removing untracked copy", "dest", dest, "error", rerr)
		}
		if errors.Is(err, ErrDuplicate) {
			o.Status = SyncPresent
			return o
		}
		return s.failSync(o, NewFileError(KindIO, "insert", dest, err))
	}

	o.Status = SyncSynced
	s.logger.Info("synced", "source", r.ArchivePath, "dest", dest, "fingerprint", r.Fingerprint.String())
	return o
}

func (s *PhotoService) failSync(o *SyncOutcome, err error) *SyncOutcome {
	o.Status = SyncFailed
	o.Err = err
	s.logger.Error("sync failed", "source", o.Source.ArchivePath, "error", err)
	return o
}
