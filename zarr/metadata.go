package zarr

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/pithecene-io/mdio/internal/jsondoc"
)

// ArrayMetadata is the decoded .zarray document.
type ArrayMetadata struct {
	ZarrFormat         int
	Shape              []int64
	Chunks             []int64
	DType              DType
	Compressor         Compressor
	FillValue          any
	Order              string
	DimensionSeparator string
}

// ParseMetadata decodes a complete .zarray document.
func ParseMetadata(obj map[string]any) (ArrayMetadata, error) {
	return parseMetadata(obj, true)
}

// parseMetadata decodes obj. When strict is false, obj is a creation
// request: only dtype and shape are required and the rest defaults.
func parseMetadata(obj map[string]any, strict bool) (ArrayMetadata, error) {
	m := ArrayMetadata{ZarrFormat: 2, Order: "C", DimensionSeparator: "."}

	if raw, ok := obj["zarr_format"]; ok {
		f, ok := jsondoc.Number(raw)
		if !ok || f != 2 {
			return ArrayMetadata{}, fmt.Errorf("%w: zarr_format %v", ErrUnsupported, raw)
		}
	} else if strict {
		return ArrayMetadata{}, fmt.Errorf("%w: missing zarr_format", ErrInvalidMetadata)
	}

	rawDType, ok := obj["dtype"]
	if !ok {
		return ArrayMetadata{}, fmt.Errorf("%w: missing dtype", ErrInvalidMetadata)
	}
	dtype, err := ParseDType(rawDType)
	if err != nil {
		return ArrayMetadata{}, err
	}
	m.DType = dtype

	shape, ok := jsondoc.Ints(obj["shape"])
	if !ok {
		return ArrayMetadata{}, fmt.Errorf("%w: shape must be a list of integers", ErrInvalidMetadata)
	}
	for _, s := range shape {
		if s < 0 {
			return ArrayMetadata{}, fmt.Errorf("%w: negative shape %v", ErrInvalidMetadata, shape)
		}
	}
	m.Shape = shape

	if raw, ok := obj["chunks"]; ok && raw != nil {
		chunks, ok := jsondoc.Ints(raw)
		if !ok || len(chunks) != len(shape) {
			return ArrayMetadata{}, fmt.Errorf("%w: chunks must be %d positive integers", ErrInvalidMetadata, len(shape))
		}
		for _, c := range chunks {
			if c <= 0 {
				return ArrayMetadata{}, fmt.Errorf("%w: chunks must be %d positive integers", ErrInvalidMetadata, len(shape))
			}
		}
		m.Chunks = chunks
	} else if strict {
		return ArrayMetadata{}, fmt.Errorf("%w: missing chunks", ErrInvalidMetadata)
	} else {
		m.Chunks = make([]int64, len(shape))
		for i, s := range shape {
			m.Chunks[i] = max(s, 1)
		}
	}

	m.Compressor, err = ParseCompressor(obj["compressor"])
	if err != nil {
		return ArrayMetadata{}, err
	}

	m.FillValue = obj["fill_value"]
	if _, err := m.fillRecord(); err != nil {
		return ArrayMetadata{}, err
	}

	if raw, ok := obj["order"]; ok {
		if order, _ := jsondoc.String(raw); order != "C" {
			return ArrayMetadata{}, fmt.Errorf("%w: order %v", ErrUnsupported, raw)
		}
	}

	if filters := obj["filters"]; !jsondoc.IsEmpty(filters) {
		return ArrayMetadata{}, fmt.Errorf("%w: filters", ErrUnsupported)
	}

	if raw, ok := obj["dimension_separator"]; ok && raw != nil {
		sep, _ := jsondoc.String(raw)
		if sep != "." && sep != "/" {
			return ArrayMetadata{}, fmt.Errorf("%w: dimension_separator %v", ErrInvalidMetadata, raw)
		}
		m.DimensionSeparator = sep
	}

	return m, nil
}

// Rank returns the number of array dimensions.
func (m ArrayMetadata) Rank() int { return len(m.Shape) }

// JSON returns the .zarray document.
func (m ArrayMetadata) JSON() map[string]any {
	var compressor any
	if c := m.Compressor.JSON(); c != nil {
		compressor = c
	}
	return map[string]any{
		"zarr_format":         m.ZarrFormat,
		"shape":               slices.Clone(m.Shape),
		"chunks":              slices.Clone(m.Chunks),
		"dtype":               m.DType.JSON(),
		"compressor":          compressor,
		"fill_value":          m.FillValue,
		"order":               m.Order,
		"filters":             nil,
		"dimension_separator": m.DimensionSeparator,
	}
}

// checkCompatible verifies that every member of a requested metadata object
// agrees with the stored metadata.
func (m ArrayMetadata) checkCompatible(requested map[string]any) error {
	stored, err := jsondoc.NormalizeObject(m.JSON())
	if err != nil {
		return err
	}
	want, err := jsondoc.NormalizeObject(requested)
	if err != nil {
		return err
	}
	for key, v := range want {
		if !jsondoc.Equal(v, stored[key]) {
			return fmt.Errorf("%w: %s: requested %s, stored %s",
				ErrIncompatible, key, jsondoc.Dump(v), jsondoc.Dump(stored[key]))
		}
	}
	return nil
}

// chunkBytes returns the decoded size of one chunk.
func (m ArrayMetadata) chunkBytes() int64 {
	return numElements(m.Chunks) * int64(m.DType.ItemSize)
}

// fillRecord returns the stored byte representation of one fill record.
func (m ArrayMetadata) fillRecord() ([]byte, error) {
	rec := make([]byte, m.DType.ItemSize)
	switch v := m.FillValue.(type) {
	case nil:
		return rec, nil
	case string:
		if m.DType.Structured || m.DType.Fields[0].Type == Byte {
			raw, err := base64.StdEncoding.DecodeString(v)
			if err != nil || len(raw) != len(rec) {
				return nil, fmt.Errorf("%w: fill_value %q for %s", ErrInvalidMetadata, v, m.DType)
			}
			return raw, nil
		}
	}
	if m.DType.Structured {
		if f, ok := jsondoc.Number(m.FillValue); ok && f == 0 {
			return rec, nil
		}
		return nil, fmt.Errorf("%w: fill_value %v for %s", ErrInvalidMetadata, m.FillValue, m.DType)
	}

	field := m.DType.Fields[0]
	b, err := encodeScalar(field.Type, m.FillValue)
	if err != nil {
		return nil, fmt.Errorf("%w: fill_value: %v", ErrInvalidMetadata, err)
	}
	if field.BigEndian {
		swapBytes(b, field.Type.swapUnit())
	}
	return b, nil
}

// encodeScalar encodes a JSON fill value as a little-endian element.
func encodeScalar(t DataType, v any) ([]byte, error) {
	if t == Bool {
		b, ok := v.(bool)
		if !ok {
			f, isNum := jsondoc.Number(v)
			if !isNum {
				return nil, fmt.Errorf("%v is not a bool", v)
			}
			b = f != 0
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	}

	var re, im float64
	if parts, ok := v.([]any); ok && len(parts) == 2 && (t == Complex64 || t == Complex128) {
		var err error
		if re, err = scalarFloat(parts[0]); err != nil {
			return nil, err
		}
		if im, err = scalarFloat(parts[1]); err != nil {
			return nil, err
		}
	} else {
		var err error
		if re, err = scalarFloat(v); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	var data any
	switch t {
	case Int8:
		data = int8(re)
	case Int16:
		data = int16(re)
	case Int32:
		data = int32(re)
	case Int64:
		data = int64(re)
	case Uint8:
		data = uint8(re)
	case Uint16:
		data = uint16(re)
	case Uint32:
		data = uint32(re)
	case Uint64:
		data = uint64(re)
	case Float32:
		data = float32(re)
	case Float64:
		data = re
	case Complex64:
		data = complex64(complex(re, im))
	case Complex128:
		data = complex(re, im)
	default:
		return nil, fmt.Errorf("no scalar encoding for %s", t)
	}
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scalarFloat(v any) (float64, error) {
	if f, ok := jsondoc.Number(v); ok {
		return f, nil
	}
	switch v {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	return 0, fmt.Errorf("%v is not a number", v)
}
