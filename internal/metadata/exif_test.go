package metadata

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"
)

type exifTag struct {
	id  uint16
	val string
}

// buildEXIF returns a little-endian TIFF whose IFD0 holds ifd0 tags and
// whose Exif sub-IFD holds exifTags. All values are ASCII.
func buildEXIF(ifd0 []exifTag, exifTags []exifTag) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})

	writeIFD := func(tags []exifTag, extra func(*bytes.Buffer)) uint32 {
		offs := make([]uint32, len(tags))
		for i, tag := range tags {
			if buf.Len()%2 != 0 {
				buf.WriteByte(0)
			}
			offs[i] = uint32(buf.Len())
			buf.WriteString(tag.val)
			buf.WriteByte(0)
		}
		if buf.Len()%2 != 0 {
			buf.WriteByte(0)
		}
		start := uint32(buf.Len())
		n := len(tags)
		if extra != nil {
			n++
		}
		buf.Write(le.AppendUint16(nil, uint16(n)))
		for i, tag := range tags {
			buf.Write(le.AppendUint16(nil, tag.id))
			buf.Write(le.AppendUint16(nil, 2))
			buf.Write(le.AppendUint32(nil, uint32(len(tag.val)+1)))
			buf.Write(le.AppendUint32(nil, offs[i]))
		}
		if extra != nil {
			extra(&buf)
		}
		buf.Write(le.AppendUint32(nil, 0))
		return start
	}

	var sub uint32
	if len(exifTags) > 0 {
		sub = writeIFD(exifTags, nil)
	}
	var pointer func(*bytes.Buffer)
	if sub != 0 {
		pointer = func(b *bytes.Buffer) {
			b.Write(le.AppendUint16(nil, 0x8769))
			b.Write(le.AppendUint16(nil, 4))
			b.Write(le.AppendUint32(nil, 1))
			b.Write(le.AppendUint32(nil, sub))
		}
	}
	first := writeIFD(ifd0, pointer)

	out := buf.Bytes()
	le.PutUint32(out[4:], first)
	return out
}

const (
	tagModel            = 0x0110
	tagDateTime         = 0x0132
	tagDateTimeOriginal = 0x9003
)

func TestEXIFReader_Extract(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		wantModel string
		wantTime  *time.Time
	}{
		{
			name: "model and original date",
			data: buildEXIF(
				[]exifTag{{tagModel, "X-T5"}, {tagDateTime, "2023:01:01 00:00:00"}},
				[]exifTag{{tagDateTimeOriginal, "2019:07:14 12:30:00"}},
			),
			wantModel: "X-T5",
			wantTime:  ptr(time.Date(2019, 7, 14, 12, 30, 0, 0, time.UTC)),
		},
		{
			name:      "falls back to DateTime",
			data:      buildEXIF([]exifTag{{tagModel, "NIKON Z 6"}, {tagDateTime, "2021:03:04 05:06:07"}}, nil),
			wantModel: "NIKON Z 6",
			wantTime:  ptr(time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)),
		},
		{
			name:      "unparseable date is absent",
			data:      buildEXIF([]exifTag{{tagModel, "EOS R5"}, {tagDateTime, "sometime in june"}}, nil),
			wantModel: "EOS R5",
		},
		{
			name:     "no model",
			data:     buildEXIF([]exifTag{{tagDateTime, "2020-02-03"}}, nil),
			wantTime: ptr(time.Date(2020, 2, 3, 0, 0, 0, 0, time.UTC)),
		},
	}

	r := NewEXIFReader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := r.Extract(tt.data)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if meta.CameraModel != tt.wantModel {
				t.Errorf("CameraModel = %q, want %q", meta.CameraModel, tt.wantModel)
			}
			switch {
			case tt.wantTime == nil && meta.CaptureTime != nil:
				t.Errorf("CaptureTime = %v, want nil", *meta.CaptureTime)
			case tt.wantTime != nil && meta.CaptureTime == nil:
				t.Errorf("CaptureTime = nil, want %v", *tt.wantTime)
			case tt.wantTime != nil && !meta.CaptureTime.Equal(*tt.wantTime):
				t.Errorf("CaptureTime = %v, want %v", *meta.CaptureTime, *tt.wantTime)
			}
		})
	}
}

func TestEXIFReader_Extract_NotEXIF(t *testing.T) {
	if _, err := NewEXIFReader().Extract([]byte("plain text, no exif here")); err == nil {
		t.Fatal("Extract() expected error for non-EXIF data")
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2019-07-14 12:30:00", time.Date(2019, 7, 14, 12, 30, 0, 0, time.UTC), true},
		{"2019:07:14 12:30:00", time.Date(2019, 7, 14, 12, 30, 0, 0, time.UTC), true},
		{"2019:07:14T12:30:00", time.Date(2019, 7, 14, 12, 30, 0, 0, time.UTC), true},
		{"2019-07-14T12:30:00", time.Date(2019, 7, 14, 12, 30, 0, 0, time.UTC), true},
		{"2019-07-14T12:30:00Z", time.Date(2019, 7, 14, 12, 30, 0, 0, time.UTC), true},
		{"2019:07:14 12:30", time.Date(2019, 7, 14, 12, 30, 0, 0, time.UTC), true},
		{"2019-07-14", time.Date(2019, 7, 14, 0, 0, 0, 0, time.UTC), true},
		{" 2019:07:14 12:30:00\x00", time.Date(2019, 7, 14, 12, 30, 0, 0, time.UTC), true},
		{"0000:00:00 00:00:00", time.Time{}, false},
		{"", time.Time{}, false},
		{"14/07/2019", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDump(t *testing.T) {
	long := strings.Repeat("x", maxDumpValue+1)
	data := buildEXIF(
		[]exifTag{{tagModel, "X-T5"}, {tagDateTime, "2023:01:01 00:00:00"}, {0x010E, long}},
		[]exifTag{{tagDateTimeOriginal, "2019:07:14 12:30:00"}},
	)

	t.Run("all tags", func(t *testing.T) {
		var out bytes.Buffer
		if err := Dump(&out, data, false); err != nil {
			t.Fatalf("Dump() error = %v", err)
		}
		got := out.String()
		for _, want := range []string{
			"\tModel :: X-T5\n",
			"\tDateTimeOriginal :: 2019:07:14 12:30:00\n",
			"\tImageDescription :: <long value skipped>\n",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("Dump() output missing %q:\n%s", want, got)
			}
		}
	})

	t.Run("dates only", func(t *testing.T) {
		var out bytes.Buffer
		if err := Dump(&out, data, true); err != nil {
			t.Fatalf("Dump() error = %v", err)
		}
		want := "2023:01:01 00:00:00\n2019:07:14 12:30:00\n"
		if out.String() != want {
			t.Errorf("Dump() = %q, want %q", out.String(), want)
		}
	})
}

func ptr[T any](v T) *T { return &v }
