// Package metadata reads capture metadata from RAW and JPEG files via EXIF.
package metadata

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	"github.com/rwcarlsen/goexif/tiff"

	"photodb/internal/photodb"
)

// dateFields are consulted in order; the first parseable value wins.
var dateFields = []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05",
	"2006:01:02T15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"2006:01:02 15:04",
	"2006-01-02",
}

// maxDumpValue is the longest value Dump prints verbatim.
const maxDumpValue = 100

var registerOnce sync.Once

func registerMakerNotes() {
	registerOnce.Do(func() {
		exif.RegisterParsers(mknote.All...)
	})
}

// EXIFReader implements photodb.MetadataReader with goexif.
type EXIFReader struct{}

// NewEXIFReader creates an EXIFReader and registers the makernote parsers.
func NewEXIFReader() *EXIFReader {
	registerMakerNotes()
	return &EXIFReader{}
}

// Extract returns the camera model and capture time found in data.
// Missing fields are left empty. Only an unreadable EXIF block is an error.
func (r *EXIFReader) Extract(data []byte) (*photodb.Metadata, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, fmt.Errorf("decoding exif: %w", err)
	}

	meta := &photodb.Metadata{}
	if tag, err := x.Get(exif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.CameraModel = strings.TrimSpace(strings.TrimRight(s, "\x00"))
		}
	}

	for _, field := range dateFields {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		if t, ok := ParseDate(s); ok {
			meta.CaptureTime = &t
			break
		}
	}

	return meta, nil
}

// ParseDate parses an EXIF date string against the known layouts.
// Times carry no zone information and are returned in UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type dumpWalker struct {
	lines map[string]string
}

func (w *dumpWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	var val string
	if tag.Format() == tiff.StringVal {
		s, err := tag.StringVal()
		if err != nil {
			return nil
		}
		val = strings.TrimRight(s, "\x00")
	} else {
		val = tag.String()
	}
	w.lines[string(name)] = val
	return nil
}

// Dump writes every EXIF tag in data to out as "\tName :: value" lines
// sorted by name. With datesOnly it writes only the values of tags whose
// name contains "Date", one per line.
func Dump(out io.Writer, data []byte, datesOnly bool) error {
	registerMakerNotes()

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return fmt.Errorf("decoding exif: %w", err)
	}

	w := &dumpWalker{lines: make(map[string]string)}
	if err := x.Walk(w); err != nil {
		return fmt.Errorf("walking exif: %w", err)
	}

	names := make([]string, 0, len(w.lines))
	for name := range w.lines {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		val := w.lines[name]
		var line string
		switch {
		case datesOnly && !strings.Contains(name, "Date"):
			continue
		case datesOnly:
			line = val
		case len(val) > maxDumpValue:
			line = fmt.Sprintf("\t%s :: <long value skipped>", name)
		default:
			line = fmt.Sprintf("\t%s :: %s", name, val)
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

// Compile-time check that EXIFReader implements photodb.MetadataReader interface
var _ photodb.MetadataReader = (*EXIFReader)(nil)
