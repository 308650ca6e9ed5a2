package photodb

import (
	"runtime"
)

// PhotoService is the orchestration layer behind every CLI command:
// import, sync, verify and clean. Ledgers are passed per call because sync
// works across two of them.
type PhotoService struct {
	fsmgr   FilesystemManager
	decoder Decoder
	meta    MetadataReader
	logger  Logger
	clock   Clock
	workers int
}

// NewPhotoService creates a PhotoService with the provided dependencies.
// workers bounds per-file parallelism; values below 1 mean runtime.NumCPU().
func NewPhotoService(fsmgr FilesystemManager, decoder Decoder, meta MetadataReader, logger Logger, clock Clock, workers int) *PhotoService {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &PhotoService{
		fsmgr:   fsmgr,
		decoder: decoder,
		meta:    meta,
		logger:  logger,
		clock:   clock,
		workers: workers,
	}
}

// Workers returns the configured worker pool size.
func (s *PhotoService) Workers() int {
	return s.workers
}
