// Package rawimage decodes sensor data from TIFF-based RAW containers.
package rawimage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/rwcarlsen/goexif/tiff"

	"photodb/internal/photodb"
)

var (
	// ErrNotTIFF is returned when the data is not a TIFF container.
	ErrNotTIFF = errors.New("not a TIFF container")

	// ErrNoRawData is returned when no IFD holds full-resolution sensor data.
	ErrNoRawData = errors.New("no raw image directory")

	// ErrUnsupported is returned for sensor layouts this decoder cannot unpack,
	// such as compressed or tiled data.
	ErrUnsupported = errors.New("unsupported raw layout")
)

const (
	tagNewSubfileType  = 0x00FE
	tagImageWidth      = 0x0100
	tagImageLength     = 0x0101
	tagBitsPerSample   = 0x0102
	tagCompression     = 0x0103
	tagPhotometric     = 0x0106
	tagMake            = 0x010F
	tagStripOffsets    = 0x0111
	tagSamplesPerPixel = 0x0115
	tagStripByteCounts = 0x0117
	tagTileOffsets     = 0x0144
	tagSubIFDs         = 0x014A

	photometricCFA       = 32803
	photometricLinearRaw = 34892

	compressionNone = 1

	// maxSubIFDDepth bounds SubIFD recursion on malformed files.
	maxSubIFDDepth = 2

	// maxDimension and maxSamplesPerPixel bound header values so size
	// arithmetic cannot overflow on corrupt files.
	maxDimension       = 1 << 17
	maxSamplesPerPixel = 4
)

// TIFFDecoder extracts the full-resolution sensor grid from uncompressed
// DNG, NEF, ARW, 3FR and similar TIFF-structured RAW files.
type TIFFDecoder struct{}

// NewTIFFDecoder creates a TIFFDecoder.
func NewTIFFDecoder() *TIFFDecoder {
	return &TIFFDecoder{}
}

// Decode parses data and returns the samples of the largest raw IFD.
func (d *TIFFDecoder) Decode(data []byte) (*photodb.RawImage, error) {
	r := bytes.NewReader(data)
	t, err := tiff.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotTIFF, err)
	}
	if len(t.Dirs) == 0 {
		return nil, ErrNoRawData
	}

	dirs := collectDirs(r, t.Order, t.Dirs, 0)

	raw := pickRawDir(dirs)
	if raw == nil {
		return nil, ErrNoRawData
	}

	samples, w, h, err := unpack(data, t.Order, raw)
	if err != nil {
		return nil, err
	}

	return &photodb.RawImage{
		Samples: samples,
		Make:    makeOf(t.Dirs[0]),
		Width:   w,
		Height:  h,
	}, nil
}

// collectDirs flattens dirs and their SubIFDs. Unreadable SubIFDs are skipped.
func collectDirs(r *bytes.Reader, order binary.ByteOrder, dirs []*tiff.Dir, depth int) []*tiff.Dir {
	var out []*tiff.Dir
	for _, dir := range dirs {
		out = append(out, dir)
		if depth >= maxSubIFDDepth {
			continue
		}
		sub := findTag(dir, tagSubIFDs)
		if sub == nil {
			continue
		}
		var children []*tiff.Dir
		for i := 0; i < int(sub.Count); i++ {
			off, err := sub.Int64(i)
			if err != nil || off <= 0 || off >= r.Size() {
				continue
			}
			if _, err := r.Seek(off, 0); err != nil {
				continue
			}
			child, _, err := tiff.DecodeDir(r, order)
			if err != nil {
				continue
			}
			children = append(children, child)
		}
		out = append(out, collectDirs(r, order, children, depth+1)...)
	}
	return out
}

// pickRawDir returns the primary (NewSubfileType 0) CFA or LinearRaw
// directory with the largest pixel area.
func pickRawDir(dirs []*tiff.Dir) *tiff.Dir {
	var best *tiff.Dir
	var bestArea int64
	for _, dir := range dirs {
		photometric, ok := tagInt(dir, tagPhotometric, 0)
		if !ok || (photometric != photometricCFA && photometric != photometricLinearRaw) {
			continue
		}
		if subfile, ok := tagInt(dir, tagNewSubfileType, 0); ok && subfile != 0 {
			continue
		}
		w, _ := tagInt(dir, tagImageWidth, 0)
		h, _ := tagInt(dir, tagImageLength, 0)
		if area := int64(w) * int64(h); area > bestArea {
			best, bestArea = dir, area
		}
	}
	return best
}

func unpack(data []byte, order binary.ByteOrder, dir *tiff.Dir) ([]uint16, int, int, error) {
	width, _ := tagInt(dir, tagImageWidth, 0)
	height, _ := tagInt(dir, tagImageLength, 0)
	if width <= 0 || height <= 0 {
		return nil, 0, 0, fmt.Errorf("%w: bad dimensions %dx%d", ErrUnsupported, width, height)
	}

	compression, ok := tagInt(dir, tagCompression, 0)
	if !ok {
		compression = compressionNone
	}
	if compression != compressionNone {
		return nil, 0, 0, fmt.Errorf("%w: compression %d", ErrUnsupported, compression)
	}
	if findTag(dir, tagTileOffsets) != nil {
		return nil, 0, 0, fmt.Errorf("%w: tiled layout", ErrUnsupported)
	}

	bits, ok := tagInt(dir, tagBitsPerSample, 0)
	if !ok {
		return nil, 0, 0, fmt.Errorf("%w: missing BitsPerSample", ErrUnsupported)
	}
	spp, ok := tagInt(dir, tagSamplesPerPixel, 0)
	if !ok {
		spp = 1
	}

	switch bits {
	case 8, 10, 12, 14, 16:
	default:
		return nil, 0, 0, fmt.Errorf("%w: %d bits per sample", ErrUnsupported, bits)
	}
	if width > maxDimension || height > maxDimension || spp < 1 || spp > maxSamplesPerPixel {
		return nil, 0, 0, fmt.Errorf("%w: implausible layout %dx%d, %d samples per pixel", ErrUnsupported, width, height, spp)
	}

	perRow := width * spp
	rowBytes := (perRow*bits + 7) / 8
	need := int64(rowBytes) * int64(height)
	if need > int64(len(data)) {
		return nil, 0, 0, fmt.Errorf("%w: %dx%d image needs %d bytes, file has %d", ErrUnsupported, width, height, need, len(data))
	}

	offsets := findTag(dir, tagStripOffsets)
	counts := findTag(dir, tagStripByteCounts)
	if offsets == nil || counts == nil || offsets.Count != counts.Count {
		return nil, 0, 0, fmt.Errorf("%w: missing strip layout", ErrUnsupported)
	}

	// Concatenate strips. Each row starts on a byte boundary.
	var buf []byte
	for i := 0; i < int(offsets.Count); i++ {
		off, err1 := offsets.Int64(i)
		n, err2 := counts.Int64(i)
		if err1 != nil || err2 != nil || off < 0 || n < 0 || off+n > int64(len(data)) {
			return nil, 0, 0, fmt.Errorf("%w: strip %d out of range", ErrUnsupported, i)
		}
		buf = append(buf, data[off:off+n]...)
	}

	if int64(len(buf)) < need {
		return nil, 0, 0, fmt.Errorf("%w: short strip data (%d < %d bytes)", ErrUnsupported, len(buf), need)
	}

	samples := make([]uint16, 0, perRow*height)
	for y := 0; y < height; y++ {
		row := buf[y*rowBytes : (y+1)*rowBytes]
		samples = appendRow(samples, row, perRow, bits, order)
	}
	return samples, width, height, nil
}

func appendRow(dst []uint16, row []byte, n, bits int, order binary.ByteOrder) []uint16 {
	switch bits {
	case 8:
		for i := 0; i < n; i++ {
			dst = append(dst, uint16(row[i]))
		}
	case 16:
		for i := 0; i < n; i++ {
			dst = append(dst, order.Uint16(row[2*i:]))
		}
	default:
		// Packed MSB-first bit stream.
		var acc uint32
		var have int
		pos := 0
		mask := uint32(1)<<bits - 1
		for i := 0; i < n; i++ {
			for have < bits {
				acc = acc<<8 | uint32(row[pos])
				pos++
				have += 8
			}
			have -= bits
			dst = append(dst, uint16((acc>>have)&mask))
		}
	}
	return dst
}

func makeOf(dir *tiff.Dir) string {
	tag := findTag(dir, tagMake)
	if tag == nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func findTag(dir *tiff.Dir, id uint16) *tiff.Tag {
	for _, tag := range dir.Tags {
		if tag.Id == id {
			return tag
		}
	}
	return nil
}

func tagInt(dir *tiff.Dir, id uint16, i int) (int, bool) {
	tag := findTag(dir, id)
	if tag == nil || int(tag.Count) <= i {
		return 0, false
	}
	v, err := tag.Int(i)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Compile-time check that TIFFDecoder implements photodb.Decoder interface
var _ photodb.Decoder = (*TIFFDecoder)(nil)
