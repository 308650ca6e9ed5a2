package photodb

import (
	"errors"
	"fmt"
)

// ErrDuplicate reports that a fingerprint is already recorded in a ledger.
// It is an expected outcome, not a failure.
var ErrDuplicate = errors.New("fingerprint already in ledger")

// ErrLedgerClosed is returned by ledger writes issued after Close.
var ErrLedgerClosed = errors.New("ledger is closed")

// ErrorKind classifies per-file failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindIO
	KindDecode
	KindMetadata
	KindDuplicate
	KindConstraint
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindDecode:
		return "decode"
	case KindMetadata:
		return "metadata"
	case KindDuplicate:
		return "duplicate"
	case KindConstraint:
		return "constraint"
	default:
		return "unknown"
	}
}

// FileError attributes a failure to one file and one pipeline step.
type FileError struct {
	Kind ErrorKind
	Op   string // "read", "decode", "place", "insert", ...
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// NewFileError wraps err for the given file and step.
func NewFileError(kind ErrorKind, op, path string, err error) *FileError {
	return &FileError{Kind: kind, Op: op, Path: path, Err: err}
}

// NewConstraintError wraps a storage-level uniqueness violation.
// The result matches ErrDuplicate under errors.Is, so callers treat a lost
// insert race exactly like a duplicate found by lookup.
func NewConstraintError(path string, cause error) *FileError {
	return &FileError{Kind: KindConstraint, Op: "insert", Path: path, Err: errors.Join(ErrDuplicate, cause)}
}

// KindOf returns the kind of the first FileError in err's chain.
// A bare ErrDuplicate is KindDuplicate.
func KindOf(err error) ErrorKind {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, ErrDuplicate) {
		return KindDuplicate
	}
	return KindUnknown
}
