package photodb

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"photodb/internal/model"
)

// UnknownModel is the camera model recorded when no source provides one.
const UnknownModel = "unknown"

// CanonicalPath returns root/year/month/model/name.
// It never touches the filesystem; identical inputs give identical output.
func CanonicalPath(root, model string, year, month int, name string) string {
	return filepath.Join(root, strconv.Itoa(year), strconv.Itoa(month), model, name)
}

// CanonicalName is the file name a photo keeps inside the archive.
func CanonicalName(path string) string {
	return filepath.Base(path)
}

// CleanModel normalizes a camera model or make for display and placement.
// Quotes, commas and NUL padding are dropped and surrounding space trimmed.
// Path separators become underscores so a model is always one path element.
func CleanModel(raw string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '"', ',', 0:
			return -1
		case '/', '\\':
			return '_'
		}
		return r
	}, raw)
	s = strings.TrimSpace(s)
	if s == "." || s == ".." {
		return ""
	}
	return s
}

// ResolveModel picks the first non-empty of the EXIF model and the decoder's
// camera make, falling back to UnknownModel.
func ResolveModel(exifModel, cameraMake string) string {
	if m := CleanModel(exifModel); m != "" {
		return m
	}
	if m := CleanModel(cameraMake); m != "" {
		return m
	}
	return UnknownModel
}

// CaptureDate returns year and month of t, or 0, 0 when t is nil.
func CaptureDate(t *time.Time) (int, int) {
	if t == nil {
		return 0, 0
	}
	return t.Year(), int(t.Month())
}

// BuildRecord assembles the record for a file discovered at originalPath.
func BuildRecord(root, originalPath string, fp model.Fingerprint, img *RawImage, meta *Metadata) *model.PhotoRecord {
	var (
		capture   *time.Time
		exifModel string
	)
	if meta != nil {
		capture = meta.CaptureTime
		exifModel = meta.CameraModel
	}
	var cameraMake string
	if img != nil {
		cameraMake = img.Make
	}

	year, month := CaptureDate(capture)
	camera := ResolveModel(exifModel, cameraMake)
	return &model.PhotoRecord{
		Fingerprint:  fp,
		OriginalPath: originalPath,
		ArchivePath:  CanonicalPath(root, camera, year, month, CanonicalName(originalPath)),
		Year:         year,
		Month:        month,
		Model:        camera,
	}
}
