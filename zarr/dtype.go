package zarr

import (
	"fmt"
	"strconv"
	"strings"
)

// DataType is the in-memory element type of a Store or Array.
type DataType string

// Supported element types. Byte is the raw view of a structured record.
const (
	Bool       DataType = "bool"
	Int8       DataType = "int8"
	Int16      DataType = "int16"
	Int32      DataType = "int32"
	Int64      DataType = "int64"
	Uint8      DataType = "uint8"
	Uint16     DataType = "uint16"
	Uint32     DataType = "uint32"
	Uint64     DataType = "uint64"
	Float32    DataType = "float32"
	Float64    DataType = "float64"
	Complex64  DataType = "complex64"
	Complex128 DataType = "complex128"
	Byte       DataType = "byte"
)

// Size returns the element size in bytes, or 0 for an unknown type.
func (t DataType) Size() int {
	switch t {
	case Bool, Int8, Uint8, Byte:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64, Complex64:
		return 8
	case Complex128:
		return 16
	default:
		return 0
	}
}

// swapUnit is the width of the byte-swapped unit: complex numbers swap
// their real and imaginary parts independently.
func (t DataType) swapUnit() int {
	switch t {
	case Complex64:
		return 4
	case Complex128:
		return 8
	default:
		return t.Size()
	}
}

func (t DataType) String() string { return string(t) }

// Field is one member of a zarr dtype. Plain dtypes have a single unnamed
// field.
type Field struct {
	Name      string
	Type      DataType
	BigEndian bool
	// Size is the field width in bytes. It exceeds Type.Size() only for
	// opaque void fields ("|V2"), which are viewed as Byte.
	Size   int
	Offset int
	// Typestr is the numpy type string as written in .zarray.
	Typestr string
}

// DType is a parsed zarr v2 dtype: a numpy typestr or a structured list of
// [name, typestr] pairs.
type DType struct {
	Fields     []Field
	Structured bool
	ItemSize   int
}

// ParseDType decodes the "dtype" member of .zarray.
func ParseDType(v any) (DType, error) {
	switch t := v.(type) {
	case string:
		f, err := parseTypestr(t)
		if err != nil {
			return DType{}, err
		}
		if f.Type == Byte {
			return DType{}, fmt.Errorf("%w: void dtype %q requires a structured record", ErrUnsupported, t)
		}
		return DType{Fields: []Field{f}, ItemSize: f.Size}, nil
	case []any:
		return parseStructured(t)
	default:
		return DType{}, fmt.Errorf("%w: dtype must be a string or list, got %T", ErrInvalidMetadata, v)
	}
}

func parseStructured(list []any) (DType, error) {
	if len(list) == 0 {
		return DType{}, fmt.Errorf("%w: structured dtype has no fields", ErrInvalidMetadata)
	}
	d := DType{Structured: true}
	seen := make(map[string]bool, len(list))
	for i, entry := range list {
		pair, ok := entry.([]any)
		if !ok || len(pair) < 2 {
			return DType{}, fmt.Errorf("%w: field %d must be [name, typestr]", ErrInvalidMetadata, i)
		}
		if len(pair) > 2 {
			return DType{}, fmt.Errorf("%w: subarray field %d", ErrUnsupported, i)
		}
		name, ok := pair[0].(string)
		if !ok || name == "" {
			return DType{}, fmt.Errorf("%w: field %d has no name", ErrInvalidMetadata, i)
		}
		if seen[name] {
			return DType{}, fmt.Errorf("%w: duplicate field %q", ErrInvalidMetadata, name)
		}
		seen[name] = true
		typestr, ok := pair[1].(string)
		if !ok {
			return DType{}, fmt.Errorf("%w: field %q typestr must be a string", ErrInvalidMetadata, name)
		}
		f, err := parseTypestr(typestr)
		if err != nil {
			return DType{}, err
		}
		f.Name = name
		f.Offset = d.ItemSize
		d.ItemSize += f.Size
		d.Fields = append(d.Fields, f)
	}
	return d, nil
}

func parseTypestr(s string) (Field, error) {
	if len(s) < 3 {
		return Field{}, fmt.Errorf("%w: dtype %q", ErrInvalidMetadata, s)
	}
	order, kind := s[0], s[1]
	if order != '<' && order != '>' && order != '|' {
		return Field{}, fmt.Errorf("%w: dtype %q has no byte order", ErrInvalidMetadata, s)
	}
	size, err := strconv.Atoi(s[2:])
	if err != nil || size <= 0 {
		return Field{}, fmt.Errorf("%w: dtype %q has no size", ErrInvalidMetadata, s)
	}

	var t DataType
	switch kind {
	case 'b':
		if size == 1 {
			t = Bool
		}
	case 'i':
		t = map[int]DataType{1: Int8, 2: Int16, 4: Int32, 8: Int64}[size]
	case 'u':
		t = map[int]DataType{1: Uint8, 2: Uint16, 4: Uint32, 8: Uint64}[size]
	case 'f':
		t = map[int]DataType{4: Float32, 8: Float64}[size]
	case 'c':
		t = map[int]DataType{8: Complex64, 16: Complex128}[size]
	case 'V':
		t = Byte
	}
	if t == "" {
		return Field{}, fmt.Errorf("%w: dtype %q", ErrUnsupported, s)
	}
	return Field{
		Type:      t,
		BigEndian: order == '>' && t.Size() > 1,
		Size:      size,
		Typestr:   s,
	}, nil
}

// Field returns the named field of a structured dtype.
func (d DType) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames lists the field names of a structured dtype in declaration order.
func (d DType) FieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		names = append(names, f.Name)
	}
	return names
}

// JSON returns the .zarray form of the dtype.
func (d DType) JSON() any {
	if !d.Structured {
		return d.Fields[0].Typestr
	}
	out := make([]any, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = []any{f.Name, f.Typestr}
	}
	return out
}

func (d DType) String() string {
	if !d.Structured {
		return d.Fields[0].Typestr
	}
	parts := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		parts[i] = f.Name + ":" + f.Typestr
	}
	return "{" + strings.Join(parts, ",") + "}"
}
