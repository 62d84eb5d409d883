package zarr

import (
	"encoding/binary"
	"fmt"
	"slices"
)

// Array is an in-memory strided array of little-endian elements. Arrays
// returned by Sub share the backing buffer with their parent; Materialize
// copies into a fresh contiguous buffer.
type Array struct {
	dtype   DataType
	shape   []int64
	strides []int64 // bytes
	offset  int64   // bytes, position of the first element
	data    []byte
}

// Allocate returns a zero-filled C-order array.
func Allocate(dtype DataType, shape []int64) (*Array, error) {
	size := dtype.Size()
	if size == 0 {
		return nil, fmt.Errorf("zarr: %w: dtype %q", ErrUnsupported, dtype)
	}
	n := numElements(shape)
	if n < 0 {
		return nil, fmt.Errorf("zarr: negative shape %v", shape)
	}
	return &Array{
		dtype:   dtype,
		shape:   slices.Clone(shape),
		strides: contiguousStrides(shape, size),
		data:    make([]byte, n*int64(size)),
	}, nil
}

// NewArray wraps data as a C-order array. The buffer is not copied.
func NewArray(dtype DataType, shape []int64, data []byte) (*Array, error) {
	size := dtype.Size()
	if size == 0 {
		return nil, fmt.Errorf("zarr: %w: dtype %q", ErrUnsupported, dtype)
	}
	if want := numElements(shape) * int64(size); int64(len(data)) != want {
		return nil, fmt.Errorf("zarr: %w: %d bytes for shape %v of %s, want %d",
			ErrIncompatible, len(data), shape, dtype, want)
	}
	return &Array{
		dtype:   dtype,
		shape:   slices.Clone(shape),
		strides: contiguousStrides(shape, size),
		data:    data,
	}, nil
}

// DType returns the element type.
func (a *Array) DType() DataType { return a.dtype }

// Shape returns the extents.
func (a *Array) Shape() []int64 { return slices.Clone(a.shape) }

// Strides returns the byte strides.
func (a *Array) Strides() []int64 { return slices.Clone(a.strides) }

// Rank returns the number of dimensions.
func (a *Array) Rank() int { return len(a.shape) }

// NumElements returns the product of the extents.
func (a *Array) NumElements() int64 { return numElements(a.shape) }

// Bytes returns the shared backing buffer.
func (a *Array) Bytes() []byte { return a.data }

// ByteOffset returns the position of the first element in Bytes.
func (a *Array) ByteOffset() int64 { return a.offset }

// ElementOffset returns ByteOffset in units of elements.
func (a *Array) ElementOffset() int64 { return a.offset / int64(a.dtype.Size()) }

// IsContiguous reports whether the elements are laid out in C order
// without gaps.
func (a *Array) IsContiguous() bool {
	return slices.Equal(a.strides, contiguousStrides(a.shape, a.dtype.Size()))
}

// Sub returns a view of the box [start, start+shape) sharing the buffer.
func (a *Array) Sub(start, shape []int64) (*Array, error) {
	if len(start) != a.Rank() || len(shape) != a.Rank() {
		return nil, fmt.Errorf("zarr: sub-array rank %d/%d, want %d", len(start), len(shape), a.Rank())
	}
	offset := a.offset
	for i := range start {
		if start[i] < 0 || shape[i] < 0 || start[i]+shape[i] > a.shape[i] {
			return nil, fmt.Errorf("zarr: %w: [%d, %d) in extent %d of dimension %d",
				ErrOutOfBounds, start[i], start[i]+shape[i], a.shape[i], i)
		}
		offset += start[i] * a.strides[i]
	}
	return &Array{
		dtype:   a.dtype,
		shape:   slices.Clone(shape),
		strides: slices.Clone(a.strides),
		offset:  offset,
		data:    a.data,
	}, nil
}

// Materialize copies the addressed elements into a new contiguous array.
func (a *Array) Materialize() *Array {
	out, _ := Allocate(a.dtype, a.shape)
	copyStrided(out, a)
	return out
}

// ContiguousBytes returns the elements in C order, copying only when the
// array is a strided or offset view.
func (a *Array) ContiguousBytes() []byte {
	n := a.NumElements() * int64(a.dtype.Size())
	if a.offset == 0 && a.IsContiguous() && int64(len(a.data)) == n {
		return a.data
	}
	return a.Materialize().data
}

// CopyFrom copies src into a element by element. Both arrays must have the
// same dtype and shape.
func (a *Array) CopyFrom(src *Array) error {
	if src.dtype != a.dtype {
		return fmt.Errorf("zarr: %w: copy %s into %s", ErrIncompatible, src.dtype, a.dtype)
	}
	if !slices.Equal(src.shape, a.shape) {
		return fmt.Errorf("zarr: %w: copy shape %v into %v", ErrIncompatible, src.shape, a.shape)
	}
	copyStrided(a, src)
	return nil
}

// Fill sets every element to the little-endian encoding elem.
func (a *Array) Fill(elem []byte) {
	if len(elem) != a.dtype.Size() || a.NumElements() == 0 {
		return
	}
	forEachRow(a.shape, func(idx []int64) {
		off := a.rowOffset(idx)
		inner := a.innerExtent()
		step := a.innerStride()
		for j := int64(0); j < inner; j++ {
			copy(a.data[off+j*step:], elem)
		}
	})
}

func (a *Array) String() string {
	return fmt.Sprintf("%s%v", a.dtype, a.shape)
}

// elementAt returns the byte slice of the element at idx.
func (a *Array) elementAt(idx []int64) ([]byte, error) {
	if len(idx) != a.Rank() {
		return nil, fmt.Errorf("zarr: index rank %d, want %d", len(idx), a.Rank())
	}
	off := a.offset
	for i, v := range idx {
		if v < 0 || v >= a.shape[i] {
			return nil, fmt.Errorf("zarr: %w: index %d in extent %d of dimension %d", ErrOutOfBounds, v, a.shape[i], i)
		}
		off += v * a.strides[i]
	}
	size := int64(a.dtype.Size())
	return a.data[off : off+size], nil
}

func (a *Array) innerExtent() int64 {
	if a.Rank() == 0 {
		return 1
	}
	return a.shape[a.Rank()-1]
}

func (a *Array) innerStride() int64 {
	if a.Rank() == 0 {
		return int64(a.dtype.Size())
	}
	return a.strides[a.Rank()-1]
}

// rowOffset is the byte offset of the first element of the innermost row
// addressed by the outer index idx.
func (a *Array) rowOffset(idx []int64) int64 {
	off := a.offset
	for k, v := range idx {
		off += v * a.strides[k]
	}
	return off
}

// -----------------------------------------------------------------------------
// Typed access
// -----------------------------------------------------------------------------

// Element is a Go type with a fixed-size zarr representation.
type Element interface {
	bool | int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		float32 | float64 | complex64 | complex128
}

// DataTypeOf returns the DataType of T.
func DataTypeOf[T Element]() DataType {
	var zero T
	switch any(zero).(type) {
	case bool:
		return Bool
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float32:
		return Float32
	case float64:
		return Float64
	case complex64:
		return Complex64
	default:
		return Complex128
	}
}

func checkElement[T Element](a *Array) error {
	want := DataTypeOf[T]()
	if a.dtype == want || (a.dtype == Byte && want == Uint8) {
		return nil
	}
	return fmt.Errorf("zarr: %w: array of %s accessed as %s", ErrIncompatible, a.dtype, want)
}

// Values returns the elements of a in C order.
func Values[T Element](a *Array) ([]T, error) {
	if err := checkElement[T](a); err != nil {
		return nil, err
	}
	out := make([]T, a.NumElements())
	if _, err := binary.Decode(a.ContiguousBytes(), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("zarr: decode %s: %w", a.dtype, err)
	}
	return out, nil
}

// FromValues builds a contiguous array of shape from values in C order.
func FromValues[T Element](shape []int64, values []T) (*Array, error) {
	if int64(len(values)) != numElements(shape) {
		return nil, fmt.Errorf("zarr: %w: %d values for shape %v", ErrIncompatible, len(values), shape)
	}
	data, err := binary.Append(nil, binary.LittleEndian, values)
	if err != nil {
		return nil, fmt.Errorf("zarr: encode: %w", err)
	}
	return NewArray(DataTypeOf[T](), shape, data)
}

// At returns the element at idx.
func At[T Element](a *Array, idx ...int64) (T, error) {
	var v T
	if err := checkElement[T](a); err != nil {
		return v, err
	}
	b, err := a.elementAt(idx)
	if err != nil {
		return v, err
	}
	_, err = binary.Decode(b, binary.LittleEndian, &v)
	return v, err
}

// Set stores v at idx.
func Set[T Element](a *Array, v T, idx ...int64) error {
	if err := checkElement[T](a); err != nil {
		return err
	}
	b, err := a.elementAt(idx)
	if err != nil {
		return err
	}
	_, err = binary.Encode(b, binary.LittleEndian, v)
	return err
}

// -----------------------------------------------------------------------------
// Layout helpers
// -----------------------------------------------------------------------------

func numElements(shape []int64) int64 {
	n := int64(1)
	for _, s := range shape {
		if s < 0 {
			return -1
		}
		n *= s
	}
	return n
}

func contiguousStrides(shape []int64, size int) []int64 {
	strides := make([]int64, len(shape))
	acc := int64(size)
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// forEachRow calls fn with every index of the outer rank-1 dimensions, in C
// order. Rank-0 shapes yield one empty index.
func forEachRow(shape []int64, fn func(idx []int64)) {
	if numElements(shape) == 0 {
		return
	}
	outer := len(shape) - 1
	if outer < 0 {
		outer = 0
	}
	idx := make([]int64, outer)
	for {
		fn(idx)
		k := outer - 1
		for ; k >= 0; k-- {
			idx[k]++
			if idx[k] < shape[k] {
				break
			}
			idx[k] = 0
		}
		if k < 0 {
			return
		}
	}
}

// copyStrided copies src into dst. Shapes and element sizes must agree.
func copyStrided(dst, src *Array) {
	size := int64(dst.dtype.Size())
	inner := dst.innerExtent()
	ds, ss := dst.innerStride(), src.innerStride()
	rowContig := ds == size && ss == size
	forEachRow(dst.shape, func(idx []int64) {
		doff, soff := dst.rowOffset(idx), src.rowOffset(idx)
		if rowContig {
			copy(dst.data[doff:doff+inner*size], src.data[soff:soff+inner*size])
			return
		}
		for j := int64(0); j < inner; j++ {
			copy(dst.data[doff+j*ds:doff+j*ds+size], src.data[soff+j*ss:soff+j*ss+size])
		}
	})
}

// swapBytes reverses each unit-byte group of buf in place.
func swapBytes(buf []byte, unit int) {
	if unit <= 1 {
		return
	}
	for i := 0; i+unit <= len(buf); i += unit {
		slices.Reverse(buf[i : i+unit])
	}
}
