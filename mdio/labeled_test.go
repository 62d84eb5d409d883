package mdio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/mdio/kvstore"
	"github.com/pithecene-io/mdio/zarr"
)

// grid returns a 4x6 inline/crossline array holding 0..23.
func grid(t *testing.T) LabeledArray {
	t.Helper()
	domain, err := zarr.NewIndexDomain(nil, []int64{4, 6}, []string{"inline", "crossline"})
	require.NoError(t, err)
	arr, err := zarr.FromValues([]int64{4, 6}, seq(24))
	require.NoError(t, err)
	a, err := NewLabeledArray(domain, arr)
	require.NoError(t, err)
	return a
}

func TestLabeledArray_Slice(t *testing.T) {
	a := grid(t)

	sliced, err := a.Slice(Range("crossline", 2, 4))
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2}, sliced.Domain.Origin())
	assert.Equal(t, []int64{4, 2}, sliced.Domain.Shape())
	assert.True(t, sliced.Data.IsContiguous())
	assert.Equal(t, int64(0), sliced.Data.ElementOffset())
	got, err := zarr.Values[float32](sliced.Data)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 8, 9, 14, 15, 20, 21}, got)

	// Indices stay in the original coordinates.
	again, err := sliced.Slice(Range("crossline", 3, 10), Range("inline", 1, 2))
	require.NoError(t, err)
	got, err = zarr.Values[float32](again.Data)
	require.NoError(t, err)
	assert.Equal(t, []float32{9}, got)
}

func TestLabeledArray_SliceCopies(t *testing.T) {
	a := grid(t)
	sliced, err := a.Slice(Range("inline", 0, 1))
	require.NoError(t, err)

	require.NoError(t, zarr.Set[float32](sliced.Data, 99, 0, 0))
	orig, err := zarr.At[float32](a.Data, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, float32(0), orig)
}

func TestLabeledArray_SliceRules(t *testing.T) {
	a := grid(t)

	_, err := a.Slice(SliceDescriptor{Label: Label("inline"), Start: 0, Stop: 2, Step: 3})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = a.Slice(Range("inline", 3, 3))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = a.Slice(Range("inline", 9, 12))
	require.ErrorIs(t, err, ErrInvalidArgument, "start beyond the domain clamps to an empty range")

	whole, err := a.Slice(Range("depth", 0, 1))
	require.NoError(t, err)
	assert.Equal(t, a.Domain, whole.Domain)
	assert.NotSame(t, a.Data, whole.Data)
}

func TestNewLabeledArray_ShapeMismatch(t *testing.T) {
	domain, err := zarr.NewIndexDomain(nil, []int64{2}, nil)
	require.NoError(t, err)
	arr, err := zarr.FromValues([]int64{3}, []float32{1, 2, 3})
	require.NoError(t, err)

	_, err = NewLabeledArray(domain, arr)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

// -----------------------------------------------------------------------------
// VariableData
// -----------------------------------------------------------------------------

func TestFromVariable(t *testing.T) {
	v := createGrid(t, kvstore.NewOpener(), "amp")
	sliced, err := v.Slice(Range("inline", 1, 3))
	require.NoError(t, err)

	data, err := FromVariable(sliced)
	require.NoError(t, err)
	assert.Equal(t, "amp", data.Name)
	assert.Equal(t, "Amplitude", data.LongName)
	assert.Equal(t, zarr.Float32, data.DType())
	assert.Equal(t, int64(12), data.NumSamples())
	assert.Equal(t, sliced.Dimensions(), data.Dimensions())
	assert.Equal(t, int64(0), data.FlattenedOffset())

	got, err := zarr.Values[float32](data.Array())
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 12), got)
}

func TestVariableData_FlattenedOffset(t *testing.T) {
	a := grid(t)
	view, err := a.Data.Sub([]int64{1, 2}, []int64{2, 3})
	require.NoError(t, err)
	domain, err := a.Domain.HalfOpenInterval([]int{0, 1}, []int64{1, 2}, []int64{3, 5})
	require.NoError(t, err)

	data := &VariableData{Name: "amp", Data: LabeledArray{Domain: domain, Data: view}}
	assert.Equal(t, int64(1*6+2), data.FlattenedOffset())

	sliced, err := data.Slice(Range("inline", 2, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(0), sliced.FlattenedOffset())
	got, err := zarr.Values[float32](sliced.Array())
	require.NoError(t, err)
	assert.Equal(t, []float32{14, 15, 16}, got)
	assert.Equal(t, "amp", sliced.Name)
}
