package testutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"photodb/internal/photodb"
)

// FakeRaw describes a synthetic RAW file for FakeDecoder and FakeMetadataReader.
type FakeRaw struct {
	Make    string
	Model   string
	Date    string // "2006-01-02"; empty means no capture time
	Samples []uint16

	// MetadataErr makes FakeMetadataReader fail for this file.
	MetadataErr bool
}

// Encode renders the file as a one-line "key=value;..." header followed by
// the samples as little-endian uint16.
func (r FakeRaw) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "make=%s;model=%s;date=%s", r.Make, r.Model, r.Date)
	if r.MetadataErr {
		buf.WriteString(";metaerr=1")
	}
	buf.WriteByte('\n')
	for _, s := range r.Samples {
		buf.Write(binary.LittleEndian.AppendUint16(nil, s))
	}
	return buf.Bytes()
}

// EncodeFakeRaw is shorthand for FakeRaw{...}.Encode().
func EncodeFakeRaw(cameraMake, model, date string, samples ...uint16) []byte {
	return FakeRaw{Make: cameraMake, Model: model, Date: date, Samples: samples}.Encode()
}

var errNotFakeRaw = errors.New("not a fake raw file")

func parseFakeRaw(data []byte) (map[string]string, []byte, error) {
	header, body, ok := bytes.Cut(data, []byte{'\n'})
	if !ok || !bytes.HasPrefix(header, []byte("make=")) {
		return nil, nil, errNotFakeRaw
	}
	fields := make(map[string]string)
	for _, kv := range strings.Split(string(header), ";") {
		k, v, _ := strings.Cut(kv, "=")
		fields[k] = v
	}
	return fields, body, nil
}

// FakeDecoder decodes files produced by FakeRaw.Encode. Anything else is
// rejected as undecodable.
type FakeDecoder struct{}

func (FakeDecoder) Decode(data []byte) (*photodb.RawImage, error) {
	fields, body, err := parseFakeRaw(data)
	if err != nil {
		return nil, err
	}
	if len(body)%2 != 0 {
		return nil, fmt.Errorf("odd sample payload length %d", len(body))
	}

	samples := make([]uint16, len(body)/2)
	for i := range samples {
		samples[i] = binary.LittleEndian.Uint16(body[2*i:])
	}
	return &photodb.RawImage{
		Samples: samples,
		Make:    fields["make"],
		Width:   len(samples),
		Height:  1,
	}, nil
}

// FakeMetadataReader reads model and date from FakeRaw headers.
type FakeMetadataReader struct{}

func (FakeMetadataReader) Extract(data []byte) (*photodb.Metadata, error) {
	fields, _, err := parseFakeRaw(data)
	if err != nil {
		return nil, err
	}
	if fields["metaerr"] != "" {
		return nil, errors.New("metadata block unreadable")
	}

	meta := &photodb.Metadata{CameraModel: fields["model"]}
	if d := fields["date"]; d != "" {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("parsing date %q: %w", d, err)
		}
		meta.CaptureTime = &t
	}
	return meta, nil
}

// Compile-time checks
var (
	_ photodb.Decoder        = FakeDecoder{}
	_ photodb.MetadataReader = FakeMetadataReader{}
)
