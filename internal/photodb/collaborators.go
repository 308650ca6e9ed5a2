package photodb

import "time"

// RawImage is the decoded payload of a RAW file.
type RawImage struct {
	Samples []uint16 // sensor grid, row-major
	Make    string   // camera make as reported by the container
	Width   int
	Height  int
}

// Decoder turns RAW file bytes into sensor samples.
// Implementations must be deterministic for identical input.
type Decoder interface {
	Decode(data []byte) (*RawImage, error)
}

// Metadata is what the metadata reader could find. Either field may be empty.
type Metadata struct {
	CaptureTime *time.Time
	CameraModel string
}

// MetadataReader extracts capture metadata from RAW file bytes.
// Absence of a field is not an error.
type MetadataReader interface {
	Extract(data []byte) (*Metadata, error)
}
