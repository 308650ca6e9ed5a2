package model

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Fingerprint is the 128-bit content identity of a photo's decoded sensor samples.
// Bytes are stored big-endian: the high 64 bits of the digest come first.
type Fingerprint [16]byte

// String renders the fingerprint as 0x followed by 32 lowercase hex digits.
func (f Fingerprint) String() string {
	return "0x" + hex.EncodeToString(f[:])
}

// IsZero reports whether f is the zero fingerprint.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// ParseFingerprint parses the String form. The 0x prefix is optional.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*len(f) {
		return f, fmt.Errorf("fingerprint must be %d hex digits, got %d", 2*len(f), len(s))
	}
	if _, err := hex.Decode(f[:], []byte(s)); err != nil {
		return f, fmt.Errorf("decoding fingerprint: %w", err)
	}
	return f, nil
}

// FingerprintFromBytes copies a 16-byte slice (as stored in the ledger) into a Fingerprint.
func FingerprintFromBytes(b []byte) (Fingerprint, error) {
	var f Fingerprint
	if len(b) != len(f) {
		return f, fmt.Errorf("fingerprint must be %d bytes, got %d", len(f), len(b))
	}
	copy(f[:], b)
	return f, nil
}

// PhotoRecord is one row of an archive ledger.
// Every field is set once when the record is created and never updated.
type PhotoRecord struct {
	Fingerprint  Fingerprint
	OriginalPath string // where the file was first discovered
	ArchivePath  string // canonical location inside the archive root
	Year         int    // 0 when the capture date is unknown
	Month        int    // 0 when the capture date is unknown
	Model        string // "unknown" when no source provides one
}

// Operation records one mutating CLI run against a ledger.
type Operation struct {
	ID         int64
	Operation  string // e.g. "import", "sync"
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time // nil while running or if the process died
	Status     string     // "running", "success" or "error"
}
