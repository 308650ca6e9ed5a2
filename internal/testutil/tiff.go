package testutil

import (
	"encoding/binary"
	"sort"
)

// RawTIFF describes a minimal uncompressed 16-bit CFA TIFF that the real
// rawimage and metadata packages can read. Width must divide len(Samples).
type RawTIFF struct {
	Make    string
	Model   string
	Date    string // EXIF layout "2006:01:02 15:04:05"; empty omits DateTime
	Width   int
	Samples []uint16

	// HeaderWidth and HeaderHeight, when non-zero, replace the dimensions
	// written to IFD0 without changing the pixel data. Used for corrupt files.
	HeaderWidth  uint32
	HeaderHeight uint32
}

type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Encode renders a little-endian TIFF with a single IFD0 holding the raw strip.
func (r RawTIFF) Encode() []byte {
	le := binary.LittleEndian
	width := r.Width
	if width <= 0 {
		width = len(r.Samples)
	}
	height := 0
	if width > 0 {
		height = len(r.Samples) / width
	}

	pixels := make([]byte, 0, 2*len(r.Samples))
	for _, s := range r.Samples {
		pixels = le.AppendUint16(pixels, s)
	}

	hdrW, hdrH := uint32(width), uint32(height)
	if r.HeaderWidth != 0 {
		hdrW = r.HeaderWidth
	}
	if r.HeaderHeight != 0 {
		hdrH = r.HeaderHeight
	}

	u16 := func(v uint16) []byte { return le.AppendUint16(nil, v) }
	u32 := func(v uint32) []byte { return le.AppendUint32(nil, v) }
	ascii := func(s string) []byte { return append([]byte(s), 0) }

	entries := []tiffEntry{
		{0x00FE, 4, 1, u32(0)},
		{0x0100, 4, 1, u32(hdrW)},
		{0x0101, 4, 1, u32(hdrH)},
		{0x0102, 3, 1, u16(16)},
		{0x0103, 3, 1, u16(1)},
		{0x0106, 3, 1, u16(32803)},
		{0x0111, 4, 1, nil}, // strip offset, patched below
		{0x0115, 3, 1, u16(1)},
		{0x0117, 4, 1, u32(uint32(len(pixels)))},
	}
	if r.Make != "" {
		entries = append(entries, tiffEntry{0x010F, 2, uint32(len(r.Make) + 1), ascii(r.Make)})
	}
	if r.Model != "" {
		entries = append(entries, tiffEntry{0x0110, 2, uint32(len(r.Model) + 1), ascii(r.Model)})
	}
	if r.Date != "" {
		entries = append(entries, tiffEntry{0x0132, 2, uint32(len(r.Date) + 1), ascii(r.Date)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// Layout: header | IFD0 | out-of-line values | pixels.
	ifdSize := 2 + 12*len(entries) + 4
	next := 8 + ifdSize
	var extra []byte
	values := make([][]byte, len(entries))
	for i, e := range entries {
		if e.tag == 0x0111 {
			continue
		}
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			values[i] = v
			continue
		}
		if (next+len(extra))%2 != 0 {
			extra = append(extra, 0)
		}
		values[i] = u32(uint32(next + len(extra)))
		extra = append(extra, e.data...)
	}
	if (next+len(extra))%2 != 0 {
		extra = append(extra, 0)
	}
	pixelOffset := uint32(next + len(extra))
	for i, e := range entries {
		if e.tag == 0x0111 {
			values[i] = u32(pixelOffset)
		}
	}

	out := []byte{'I', 'I', 42, 0}
	out = le.AppendUint32(out, 8)
	out = le.AppendUint16(out, uint16(len(entries)))
	for i, e := range entries {
		out = le.AppendUint16(out, e.tag)
		out = le.AppendUint16(out, e.typ)
		out = le.AppendUint32(out, e.count)
		out = append(out, values[i]...)
	}
	out = le.AppendUint32(out, 0)
	out = append(out, extra...)
	return append(out, pixels...)
}
