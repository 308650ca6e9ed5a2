package photodb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"

	"photodb/internal/fingerprint"
	"photodb/internal/model"
)

// ImportOptions controls the destructive steps of an import.
// The zero value is a dry run: paths are computed and reported, nothing is written.
type ImportOptions struct {
	Move   bool // write files to their archive path
	Insert bool // record files in the ledger
}

// ImportStatus is the terminal state of one file in an import batch.
type ImportStatus int

const (
	ImportFailed ImportStatus = iota
	ImportImported
	ImportDuplicate
	ImportPartial // written to the archive but not recorded in the ledger
)

func (s ImportStatus) String() string {
	switch s {
	case ImportImported:
		return "imported"
	case ImportDuplicate:
		return "duplicate"
	case ImportPartial:
		return "partial"
	default:
		return "failed"
	}
}

// ImportOutcome describes what happened to one discovered file.
type ImportOutcome struct {
	Source      string
	Status      ImportStatus
	Record      *model.PhotoRecord // nil when the file failed before placement
	Fingerprint model.Fingerprint
	Moved       bool // bytes were written (or already present) at the archive path
	Inserted    bool
	Err         error
}

// Line renders the per-file report line.
func (o *ImportOutcome) Line() string {
	switch o.Status {
	case ImportImported:
		line := fmt.Sprintf("%s -> %s", o.Source, o.Record.ArchivePath)
		if !o.Moved || !o.Inserted {
			line = "mock " + line
		}
		var notes []string
		if !o.Moved {
			notes = append(notes, "not moved")
		}
		if !o.Inserted {
			notes = append(notes, "not inserted")
		}
		if len(notes) > 0 {
			line += " (" + strings.Join(notes, ", ") + ")"
		}
		return line
	case ImportDuplicate:
		return fmt.Sprintf("duplicate: %s -> %s", o.Source, o.Fingerprint)
	case ImportPartial:
		return fmt.Sprintf("partial: %s -> %s: file placed but not tracked: %v", o.Source, o.Record.ArchivePath, o.Err)
	default:
		return fmt.Sprintf("error: %s: %v", o.Source, o.Err)
	}
}

// ImportResult aggregates a batch.
type ImportResult struct {
	Outcomes   []*ImportOutcome // sorted by Source
	Imported   int
	Duplicates int
	Failed     int
	Partial    int
}

// Summary renders the batch counters.
func (r *ImportResult) Summary() string {
	return fmt.Sprintf("imported=%d duplicate=%d failed=%d partial=%d", r.Imported, r.Duplicates, r.Failed, r.Partial)
}

func (r *ImportResult) add(o *ImportOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case ImportImported:
		r.Imported++
	case ImportDuplicate:
		r.Duplicates++
	case ImportPartial:
		r.Partial++
	default:
		r.Failed++
	}
}

// Import discovers RAW files under source and drives each one through
// read, decode, fingerprint, dedup, place and persist.
//
// Per-file failures are reported in the result and never abort the batch.
// The returned error is non-nil only for archive-wide problems or when ctx
// is cancelled; the partial result is still returned in the latter case, and
// everything already written or recorded stays valid, so re-running the
// import resumes where it stopped.
func (s *PhotoService) Import(ctx context.Context, ledger Ledger, source *Path, opts ImportOptions) (*ImportResult, error) {
	if !source.IsDir() {
		return nil, fmt.Errorf("source is not a directory: %s", source.String())
	}

	files, err := s.fsmgr.FindImages(source)
	if err != nil {
		return nil, fmt.Errorf("finding images: %w", err)
	}

	if opts.Insert && !opts.Move {
		s.logger.Warn("recording ledger rows without moving files; verify reports them missing until the files are placed",
			"archive", ledger.Root())
	}

	start := s.clock.Now()
	s.logger.Info("import started", "source", source.String(), "archive", ledger.Root(),
		"files", len(files), "move", opts.Move, "insert", opts.Insert, "workers", s.workers)

	var (
		mu     sync.Mutex
		result = &ImportResult{}
		claims = newClaimTable()
	)

	runErr := forEach(ctx, s.workers, files, func(ctx context.Context, p *Path) {
		o := s.importFile(ctx, ledger, claims, p.String(), opts)
		mu.Lock()
		result.add(o)
		mu.Unlock()
	})

	slices.SortFunc(result.Outcomes, func(a, b *ImportOutcome) int { return strings.Compare(a.Source, b.Source) })

	s.logger.Info("import finished", "imported", result.Imported, "duplicate", result.Duplicates,
		"failed", result.Failed, "partial", result.Partial, "elapsed", s.clock.Now().Sub(start))

	if runErr != nil {
		return result, fmt.Errorf("import interrupted: %w", runErr)
	}
	return result, nil
}

// importFile runs the per-file state machine.
func (s *PhotoService) importFile(ctx context.Context, ledger Ledger, claims *claimTable, path string, opts ImportOptions) *ImportOutcome {
	o := &ImportOutcome{Source: path}

	data, err := s.fsmgr.ReadFile(path)
	if err != nil {
		return s.failImport(o, NewFileError(KindIO, "read", path, err))
	}

	img, err := s.decoder.Decode(data)
	if err != nil {
		return s.failImport(o, NewFileError(KindDecode, "decode", path, err))
	}

	o.Fingerprint = fingerprint.Sum(img.Samples)
	s.logger.Debug("fingerprinted", "path", path, "fingerprint", o.Fingerprint.String(), "samples", len(img.Samples))

	// Files of the same batch with identical samples: the first claimer
	// proceeds, the rest wait for it. If the claimer fails, a waiter retries.
	for {
		c, owner := claims.acquire(o.Fingerprint)
		if owner {
			placed := false
			defer func() { claims.release(o.Fingerprint, c, placed) }()
			s.placeFile(ctx, ledger, o, data, img, opts)
			placed = o.Status != ImportFailed
			return o
		}

		select {
		case <-c.done:
		case <-ctx.Done():
			return s.failImport(o, NewFileError(KindIO, "dedup", path, ctx.Err()))
		}
		if c.placed {
			o.Status = ImportDuplicate
			s.logger.Info("duplicate in batch", "path", path, "fingerprint", o.Fingerprint.String())
			return o
		}
	}
}

// placeFile runs the dedup check, placement and persistence for a claimed fingerprint.
func (s *PhotoService) placeFile(ctx context.Context, ledger Ledger, o *ImportOutcome, data []byte, img *RawImage, opts ImportOptions) {
	path := o.Source

	exists, err := ledger.Contains(ctx, o.Fingerprint)
	if err != nil {
		s.failImport(o, NewFileError(KindIO, "lookup", path, err))
		return
	}
	if exists {
		o.Status = ImportDuplicate
		s.logger.Info("duplicate", "path", path, "fingerprint", o.Fingerprint.String())
		return
	}

	meta := s.extractMetadata(path, data)
	o.Record = BuildRecord(ledger.Root(), path, o.Fingerprint, img, meta)
	dest := o.Record.ArchivePath

	wrote := false
	if opts.Move {
		err := s.fsmgr.WriteFile(dest, data)
		switch {
		case err == nil:
			wrote = true
		case errors.Is(err, fs.ErrExist):
			// A resumed run finds its own earlier copy; anything else at the
			// archive path is a different photo and is never replaced.
			existing, rerr := s.fsmgr.ReadFile(dest)
			if rerr != nil {
				s.failImport(o, NewFileError(KindIO, "place", path, fmt.Errorf("reading existing %s: %w", dest, rerr)))
				return
			}
			if !bytes.Equal(existing, data) {
				s.failImport(o, NewFileError(KindIO, "place", path, fmt.Errorf("archive path occupied by a different file: %s", dest)))
				return
			}
			s.logger.Debug("archive copy already present", "path", path, "dest", dest)
		default:
			s.failImport(o, NewFileError(KindIO, "place", path, err))
			return
		}
		o.Moved = true
	}

	if opts.Insert {
		err := ledger.Insert(ctx, o.Record)
		switch {
		case err == nil:
			o.Inserted = true
		case errors.Is(err, ErrDuplicate):
			// Lost the race to another process or an earlier row.
			if wrote {
				if rerr := s.fsmgr.Remove(dest); rerr != nil {
					s.logger.Warn("removing duplicate copy", "dest", dest, "error", rerr)
				}
			}
			o.Status = ImportDuplicate
			o.Moved = false
			s.logger.Info("duplicate on insert", "path", path, "fingerprint", o.Fingerprint.String())
			return
		default:
			o.Err = NewFileError(KindIO, "insert", path, err)
			if o.Moved {
				o.Status = ImportPartial
				s.logger.Error("file placed but not tracked", "path", path, "dest", dest, "error", err)
			} else {
				o.Status = ImportFailed
				s.logger.Error("insert failed", "path", path, "error", err)
			}
			return
		}
	}

	o.Status = ImportImported
	s.logger.Info("imported", "path", path, "dest", dest, "fingerprint", o.Fingerprint.String(),
		"moved", o.Moved, "inserted", o.Inserted)
}

// extractMetadata never fails: missing or unreadable metadata falls back to
// the unknown model and the 0/0 date bucket.
func (s *PhotoService) extractMetadata(path string, data []byte) *Metadata {
	meta, err := s.meta.Extract(data)
	if err != nil {
		s.logger.Warn("metadata unavailable, using fallbacks", "path", path,
			"error", NewFileError(KindMetadata, "metadata", path, err))
		return &Metadata{}
	}
	if meta == nil {
		return &Metadata{}
	}
	return meta
}

func (s *PhotoService) failImport(o *ImportOutcome, err error) *ImportOutcome {
	o.Status = ImportFailed
	o.Err = err
	s.logger.Error("import failed", "path", o.Source, "kind", KindOf(err).String(), "error", err)
	return o
}
