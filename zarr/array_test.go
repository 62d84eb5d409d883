package zarr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iota32(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestArray_FromValuesAndAt(t *testing.T) {
	a, err := FromValues([]int64{2, 3}, iota32(6))
	require.NoError(t, err)

	assert.Equal(t, Float32, a.DType())
	assert.Equal(t, []int64{12, 4}, a.Strides())
	assert.True(t, a.IsContiguous())

	v, err := At[float32](a, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, float32(5), v)

	_, err = At[float32](a, 2, 0)
	require.ErrorIs(t, err, ErrOutOfBounds)

	_, err = At[int16](a, 0, 0)
	require.ErrorIs(t, err, ErrIncompatible)

	_, err = FromValues([]int64{2, 2}, iota32(3))
	require.ErrorIs(t, err, ErrIncompatible)
}

func TestArray_SubSharesBuffer(t *testing.T) {
	a, err := FromValues([]int64{3, 4}, iota32(12))
	require.NoError(t, err)

	sub, err := a.Sub([]int64{1, 1}, []int64{2, 2})
	require.NoError(t, err)
	assert.False(t, sub.IsContiguous())
	assert.Equal(t, int64(5), sub.ElementOffset())

	vals, err := Values[float32](sub)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 6, 9, 10}, vals)

	require.NoError(t, Set[float32](sub, 42, 0, 0))
	v, err := At[float32](a, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, float32(42), v, "write through view reaches parent")

	m := sub.Materialize()
	assert.True(t, m.IsContiguous())
	assert.Equal(t, int64(0), m.ElementOffset())
	require.NoError(t, Set[float32](m, -1, 0, 0))
	v, _ = At[float32](a, 1, 1)
	assert.Equal(t, float32(42), v, "materialized copy is detached")

	_, err = a.Sub([]int64{2, 0}, []int64{2, 4})
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestArray_CopyFrom(t *testing.T) {
	dst, err := Allocate(Int16, []int64{2, 3})
	require.NoError(t, err)
	src, err := FromValues([]int64{2, 2}, []int16{1, 2, 3, 4})
	require.NoError(t, err)

	view, err := dst.Sub([]int64{0, 1}, []int64{2, 2})
	require.NoError(t, err)
	require.NoError(t, view.CopyFrom(src))

	vals, err := Values[int16](dst)
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 1, 2, 0, 3, 4}, vals)

	require.ErrorIs(t, dst.CopyFrom(src), ErrIncompatible)
	f, _ := Allocate(Float32, []int64{2, 2})
	require.ErrorIs(t, view.CopyFrom(f), ErrIncompatible)
}

func TestArray_Rank0(t *testing.T) {
	a, err := FromValues(nil, []float64{2.5})
	require.NoError(t, err)
	assert.Equal(t, 0, a.Rank())
	assert.Equal(t, int64(1), a.NumElements())

	v, err := At[float64](a)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)
}

func TestArray_Fill(t *testing.T) {
	a, err := Allocate(Uint16, []int64{2, 2})
	require.NoError(t, err)
	sub, err := a.Sub([]int64{0, 1}, []int64{2, 1})
	require.NoError(t, err)
	sub.Fill([]byte{0x01, 0x02})

	vals, err := Values[uint16](a)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 0x0201, 0, 0x0201}, vals)
}

func TestSwapBytes(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	swapBytes(buf, 4)
	assert.Equal(t, []byte{4, 3, 2, 1, 8, 7, 6, 5}, buf)

	swapBytes(buf, 1)
	assert.Equal(t, []byte{4, 3, 2, 1, 8, 7, 6, 5}, buf)
}
