package photodb

import (
	"context"
	"fmt"

	"photodb/internal/model"
)

// CleanOptions selects the source copies to remove.
type CleanOptions struct {
	Prefix string // literal prefix of original_path
	Delete bool   // actually remove files; otherwise only report
}

// CleanStatus is the result for one matching record.
type CleanStatus int

const (
	CleanFailed CleanStatus = iota
	CleanDeleted
	CleanPending // would be deleted
	CleanGone    // source copy already absent
	CleanSkipped // kept because the archive copy is not safe to rely on
)

func (s CleanStatus) String() string {
	switch s {
	case CleanDeleted:
		return "deleted"
	case CleanPending:
		return "pending"
	case CleanGone:
		return "gone"
	case CleanSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// CleanOutcome describes one record whose original path matched the prefix.
type CleanOutcome struct {
	Record *model.PhotoRecord
	Status CleanStatus
	Reason string
	Err    error
}

// Line renders the per-record report line.
func (o *CleanOutcome) Line() string {
	p := o.Record.OriginalPath
	switch o.Status {
	case CleanDeleted:
		return fmt.Sprintf("deleted %s", p)
	case CleanPending:
		return fmt.Sprintf("mock deleted %s", p)
	case CleanGone:
		return fmt.Sprintf("gone %s", p)
	case CleanSkipped:
		return fmt.Sprintf("skipped %s: %s", p, o.Reason)
	default:
		return fmt.Sprintf("error: %s: %v", p, o.Err)
	}
}

// CleanResult aggregates a clean run.
type CleanResult struct {
	Outcomes []*CleanOutcome // ordered by original path
	Deleted  int
	Pending  int
	Gone     int
	Skipped  int
	Failed   int
}

// Summary renders the run counters.
func (r *CleanResult) Summary() string {
	return fmt.Sprintf("deleted=%d pending=%d gone=%d skipped=%d failed=%d", r.Deleted, r.Pending, r.Gone, r.Skipped, r.Failed)
}

// Clean removes source copies of tracked photos whose original path starts
// with opts.Prefix. A source is only removed when its archive copy exists
// and is a different file. Ledger rows are never removed.
func (s *PhotoService) Clean(ctx context.Context, ledger Ledger, opts CleanOptions) (*CleanResult, error) {
	if opts.Prefix == "" {
		return nil, fmt.Errorf("clean requires a non-empty prefix")
	}

	records, err := ledger.FindByOriginalPrefix(ctx, opts.Prefix)
	if err != nil {
		return nil, fmt.Errorf("finding records under %s: %w", opts.Prefix, err)
	}

	s.logger.Info("clean started", "archive", ledger.Root(), "prefix", opts.Prefix, "matches", len(records), "delete", opts.Delete)

	result := &CleanResult{}
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("clean interrupted: %w", err)
		}
		o := s.cleanRecord(r, opts)
		result.Outcomes = append(result.Outcomes, o)
		switch o.Status {
		case CleanDeleted:
			result.Deleted++
		case CleanPending:
			result.Pending++
		case CleanGone:
			result.Gone++
		case CleanSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
	}

	s.logger.Info("clean finished", "deleted", result.Deleted, "pending", result.Pending,
		"gone", result.Gone, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

func (s *PhotoService) cleanRecord(r *model.PhotoRecord, opts CleanOptions) *CleanOutcome {
	o := &CleanOutcome{Record: r}

	if r.OriginalPath == r.ArchivePath {
		o.Status = CleanSkipped
		o.Reason = "original is the archive copy"
		return o
	}

	archived, err := s.fsmgr.Exists(r.ArchivePath)
	if err != nil {
		o.Err = NewFileError(KindIO, "stat", r.ArchivePath, err)
		return o
	}
	if !archived {
		o.Status = CleanSkipped
		o.Reason = "archive copy missing"
		s.logger.Warn("archive copy missing, keeping source", "original", r.OriginalPath, "archive", r.ArchivePath)
		return o
	}

	present, err := s.fsmgr.Exists(r.OriginalPath)
	if err != nil {
		o.Err = NewFileError(KindIO, "stat", r.OriginalPath, err)
		return o
	}
	if !present {
		o.Status = CleanGone
		return o
	}

	if !opts.Delete {
		o.Status = CleanPending
		return o
	}

	if err := s.fsmgr.Remove(r.OriginalPath); err != nil {
		o.Err = NewFileError(KindIO, "remove", r.OriginalPath, err)
		s.logger.Error("removing source copy", "path", r.OriginalPath, "error", err)
		return o
	}
	o.Status = CleanDeleted
	s.logger.Info("source copy removed", "path", r.OriginalPath, "archive", r.ArchivePath)
	return o
}
