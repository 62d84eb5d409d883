package zarr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/pithecene-io/mdio/internal/jsondoc"
)

// Compressor encodes whole chunk payloads. The ID matches the numcodecs
// identifier written to .zarray.
type Compressor interface {
	ID() string
	Encode(raw []byte) ([]byte, error)
	Decode(encoded []byte) ([]byte, error)
	// JSON returns the .zarray "compressor" object; nil for no compression.
	JSON() map[string]any
}

// ParseCompressor decodes the "compressor" member of .zarray.
func ParseCompressor(v any) (Compressor, error) {
	if v == nil {
		return noopCompressor{}, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: compressor must be an object or null", ErrInvalidMetadata)
	}
	id, _ := jsondoc.String(obj["id"])
	level := -1
	if raw, ok := obj["level"]; ok {
		f, ok := jsondoc.Number(raw)
		if !ok {
			return nil, fmt.Errorf("%w: compressor level must be a number", ErrInvalidMetadata)
		}
		level = int(f)
	}
	switch id {
	case "zstd":
		return zstdCompressor{level: level}, nil
	case "gzip":
		return gzipCompressor{level: level}, nil
	case "zlib":
		return zlibCompressor{level: level}, nil
	case "":
		return nil, fmt.Errorf("%w: compressor has no id", ErrInvalidMetadata)
	default:
		return nil, fmt.Errorf("%w: compressor %q", ErrUnsupported, id)
	}
}

// -----------------------------------------------------------------------------
// Zstd Compressor
// -----------------------------------------------------------------------------

type zstdCompressor struct{ level int }

func (z zstdCompressor) ID() string { return "zstd" }

func (z zstdCompressor) Encode(raw []byte) ([]byte, error) {
	var opts []zstd.EOption
	if z.level > 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(z.level)))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = enc.Close() }()
	return enc.EncodeAll(raw, nil), nil
}

func (z zstdCompressor) Decode(encoded []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(encoded, nil)
}

func (z zstdCompressor) JSON() map[string]any {
	out := map[string]any{"id": "zstd"}
	if z.level >= 0 {
		out["level"] = z.level
	}
	return out
}

// -----------------------------------------------------------------------------
// Gzip Compressor
// -----------------------------------------------------------------------------

type gzipCompressor struct{ level int }

func (g gzipCompressor) ID() string { return "gzip" }

func (g gzipCompressor) Encode(raw []byte) ([]byte, error) {
	level := g.level
	if level < 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gzipCompressor) Decode(encoded []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (g gzipCompressor) JSON() map[string]any {
	out := map[string]any{"id": "gzip"}
	if g.level >= 0 {
		out["level"] = g.level
	}
	return out
}

// -----------------------------------------------------------------------------
// Zlib Compressor
// -----------------------------------------------------------------------------

type zlibCompressor struct{ level int }

func (z zlibCompressor) ID() string { return "zlib" }

func (z zlibCompressor) Encode(raw []byte) ([]byte, error) {
	level := z.level
	if level < 0 {
		level = zlib.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (z zlibCompressor) Decode(encoded []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (z zlibCompressor) JSON() map[string]any {
	out := map[string]any{"id": "zlib"}
	if z.level >= 0 {
		out["level"] = z.level
	}
	return out
}

// -----------------------------------------------------------------------------
// NoOp Compressor
// -----------------------------------------------------------------------------

type noopCompressor struct{}

func (noopCompressor) ID() string                        { return "" }
func (noopCompressor) Encode(raw []byte) ([]byte, error) { return raw, nil }
func (noopCompressor) Decode(enc []byte) ([]byte, error) { return enc, nil }
func (noopCompressor) JSON() map[string]any              { return nil }
