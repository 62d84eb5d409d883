package zarr_test

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/mdio/kvstore"
	"github.com/pithecene-io/mdio/zarr"
)

func memSpec(path string, metadata map[string]any) map[string]any {
	spec := map[string]any{
		"driver":  "zarr",
		"kvstore": map[string]any{"driver": "memory", "path": path},
	}
	if metadata != nil {
		spec["metadata"] = metadata
	}
	return spec
}

func createFloat(t *testing.T, opener *kvstore.Opener, path string, shape, chunks []any, compressor any) *zarr.Store {
	t.Helper()
	s, err := zarr.Open(t.Context(), memSpec(path, map[string]any{
		"dtype":      "<f4",
		"shape":      shape,
		"chunks":     chunks,
		"compressor": compressor,
	}), opener, zarr.ModeCreate)
	require.NoError(t, err)
	return s
}

// -----------------------------------------------------------------------------
// Open / Create
// -----------------------------------------------------------------------------

func TestOpen_CreateThenOpen(t *testing.T) {
	opener := kvstore.NewOpener()
	created := createFloat(t, opener, "vol/velocity", []any{4.0, 6.0}, []any{2.0, 4.0}, map[string]any{"id": "zstd"})
	assert.Equal(t, zarr.Float32, created.DType())
	assert.Equal(t, []int64{4, 6}, created.Domain().Shape())

	opened, err := zarr.Open(t.Context(), memSpec("vol/velocity", nil), opener, zarr.ModeOpen)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4}, opened.Metadata().Chunks)
	assert.Equal(t, "zstd", opened.Metadata().Compressor.ID())
}

func TestOpen_CreateExisting(t *testing.T) {
	opener := kvstore.NewOpener()
	createFloat(t, opener, "v", []any{2.0}, []any{2.0}, nil)

	_, err := zarr.Open(t.Context(), memSpec("v", map[string]any{"dtype": "<f4", "shape": []any{2.0}}), opener, zarr.ModeCreate)
	require.ErrorIs(t, err, zarr.ErrAlreadyExists)
}

func TestOpen_CreateCleanRemovesChunks(t *testing.T) {
	ctx := t.Context()
	opener := kvstore.NewOpener()
	s := createFloat(t, opener, "v", []any{4.0}, []any{2.0}, nil)
	a, err := zarr.FromValues([]int64{4}, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, a))

	clean, err := zarr.Open(ctx, memSpec("v", map[string]any{"dtype": "<i2", "shape": []any{3.0}}), opener, zarr.ModeCreateClean)
	require.NoError(t, err)
	assert.Equal(t, zarr.Int16, clean.DType())

	keys, err := clean.KV().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{".zarray"}, keys)
}

func TestOpen_MissingArray(t *testing.T) {
	_, err := zarr.Open(t.Context(), memSpec("nothing", nil), kvstore.NewOpener(), zarr.ModeOpen)
	require.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestOpen_IncompatibleMetadata(t *testing.T) {
	opener := kvstore.NewOpener()
	createFloat(t, opener, "v", []any{4.0}, []any{2.0}, nil)

	_, err := zarr.Open(t.Context(), memSpec("v", map[string]any{"dtype": "<f8"}), opener, zarr.ModeOpen)
	require.ErrorIs(t, err, zarr.ErrIncompatible)
	assert.Contains(t, err.Error(), "dtype")
}

func TestOpen_Rejects(t *testing.T) {
	opener := kvstore.NewOpener()

	spec := memSpec("v", nil)
	spec["driver"] = "n5"
	_, err := zarr.Open(t.Context(), spec, opener, zarr.ModeOpen)
	require.ErrorIs(t, err, zarr.ErrInvalidMetadata)

	_, err = zarr.Open(t.Context(), map[string]any{"driver": "zarr"}, opener, zarr.ModeOpen)
	require.ErrorIs(t, err, kvstore.ErrInvalidSpec)

	_, err = zarr.Open(t.Context(), memSpec("v", nil), opener, zarr.ModeCreate)
	require.ErrorIs(t, err, zarr.ErrInvalidMetadata)

	created := memSpec("plain", map[string]any{"dtype": "<f4", "shape": []any{1.0}})
	created["field"] = "x"
	_, err = zarr.Open(t.Context(), created, opener, zarr.ModeCreate)
	require.ErrorIs(t, err, zarr.ErrInvalidMetadata)
}

// -----------------------------------------------------------------------------
// Read / Write
// -----------------------------------------------------------------------------

func TestStore_ReadUnwrittenIsFill(t *testing.T) {
	opener := kvstore.NewOpener()
	s, err := zarr.Open(t.Context(), memSpec("v", map[string]any{
		"dtype": "<f4", "shape": []any{3.0}, "chunks": []any{2.0}, "fill_value": "NaN",
	}), opener, zarr.ModeCreate)
	require.NoError(t, err)

	a, err := s.Read(t.Context())
	require.NoError(t, err)
	vals, err := zarr.Values[float32](a)
	require.NoError(t, err)
	for _, v := range vals {
		assert.True(t, math.IsNaN(float64(v)))
	}
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	for _, compressor := range []any{nil, map[string]any{"id": "zstd"}, map[string]any{"id": "gzip"}} {
		opener := kvstore.NewOpener()
		s := createFloat(t, opener, "v", []any{5.0, 7.0}, []any{2.0, 3.0}, compressor)

		values := make([]float32, 35)
		for i := range values {
			values[i] = float32(i) * 0.5
		}
		src, err := zarr.FromValues([]int64{5, 7}, values)
		require.NoError(t, err)
		require.NoError(t, s.Write(t.Context(), src))

		got, err := s.Read(t.Context())
		require.NoError(t, err)
		out, err := zarr.Values[float32](got)
		require.NoError(t, err)
		assert.Equal(t, values, out)

		keys, err := s.KV().List(t.Context())
		require.NoError(t, err)
		assert.Len(t, keys, 1+3*3, "metadata plus a 3x3 chunk grid")
	}
}

func TestStore_PartialWritePreservesNeighbours(t *testing.T) {
	ctx := t.Context()
	opener := kvstore.NewOpener()
	s := createFloat(t, opener, "v", []any{4.0, 4.0}, []any{3.0, 3.0}, nil)

	ones := make([]float32, 16)
	for i := range ones {
		ones[i] = 1
	}
	all, err := zarr.FromValues([]int64{4, 4}, ones)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, all))

	sub, err := s.HalfOpenInterval([]int{0, 1}, []int64{1, 2}, []int64{3, 4})
	require.NoError(t, err)
	patch, err := zarr.FromValues([]int64{2, 2}, []float32{7, 8, 9, 10})
	require.NoError(t, err)
	require.NoError(t, sub.Write(ctx, patch))

	got, err := s.Read(ctx)
	require.NoError(t, err)
	vals, err := zarr.Values[float32](got)
	require.NoError(t, err)
	assert.Equal(t, []float32{
		1, 1, 1, 1,
		1, 1, 7, 8,
		1, 1, 9, 10,
		1, 1, 1, 1,
	}, vals)

	back, err := sub.Read(ctx)
	require.NoError(t, err)
	vals, err = zarr.Values[float32](back)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 8, 9, 10}, vals)
}

func TestStore_WriteRejectsMismatch(t *testing.T) {
	opener := kvstore.NewOpener()
	s := createFloat(t, opener, "v", []any{4.0}, []any{2.0}, nil)

	ints, err := zarr.FromValues([]int64{4}, []int16{1, 2, 3, 4})
	require.NoError(t, err)
	require.ErrorIs(t, s.Write(t.Context(), ints), zarr.ErrIncompatible)

	short, err := zarr.FromValues([]int64{3}, []float32{1, 2, 3})
	require.NoError(t, err)
	require.ErrorIs(t, s.Write(t.Context(), short), zarr.ErrIncompatible)

	keys, err := s.KV().List(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{".zarray"}, keys)
}

func TestStore_SlashSeparatorChunkKeys(t *testing.T) {
	opener := kvstore.NewOpener()
	s, err := zarr.Open(t.Context(), memSpec("v", map[string]any{
		"dtype": "<u2", "shape": []any{2.0, 2.0}, "chunks": []any{1.0, 2.0}, "dimension_separator": "/",
	}), opener, zarr.ModeCreate)
	require.NoError(t, err)

	a, err := zarr.FromValues([]int64{2, 2}, []uint16{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, s.Write(t.Context(), a))

	keys, err := s.KV().List(t.Context())
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{".zarray", "0/0", "1/0"}, keys)
}

func TestStore_BigEndianOnDisk(t *testing.T) {
	ctx := t.Context()
	opener := kvstore.NewOpener()
	s, err := zarr.Open(ctx, memSpec("v", map[string]any{
		"dtype": ">i4", "shape": []any{2.0}, "chunks": []any{2.0},
	}), opener, zarr.ModeCreate)
	require.NoError(t, err)

	a, err := zarr.FromValues([]int64{2}, []int32{1, 258})
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, a))

	raw, err := s.KV().Read(ctx, "0")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1, 0, 0, 1, 2}, raw)

	got, err := s.Read(ctx)
	require.NoError(t, err)
	vals, err := zarr.Values[int32](got)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 258}, vals)
}

// -----------------------------------------------------------------------------
// Structured dtypes
// -----------------------------------------------------------------------------

func structuredSpec(path, field string) map[string]any {
	spec := memSpec(path, map[string]any{
		"dtype": []any{[]any{"cdp_x", "<i4"}, []any{"trace", ">f4"}},
		"shape": []any{3.0},
	})
	if field != "" {
		spec["field"] = field
	}
	return spec
}

func TestStore_StructuredFields(t *testing.T) {
	ctx := t.Context()
	opener := kvstore.NewOpener()

	cdp, err := zarr.Open(ctx, structuredSpec("hdr", "cdp_x"), opener, zarr.ModeCreate)
	require.NoError(t, err)
	assert.Equal(t, zarr.Int32, cdp.DType())
	assert.Equal(t, "cdp_x", cdp.Field())

	xs, err := zarr.FromValues([]int64{3}, []int32{10, 20, 30})
	require.NoError(t, err)
	require.NoError(t, cdp.Write(ctx, xs))

	traceSpec := structuredSpec("hdr", "trace")
	delete(traceSpec, "metadata")
	trace, err := zarr.Open(ctx, traceSpec, opener, zarr.ModeOpen)
	require.NoError(t, err)
	ts, err := zarr.FromValues([]int64{3}, []float32{1.5, 2.5, 3.5})
	require.NoError(t, err)
	require.NoError(t, trace.Write(ctx, ts))

	// cdp_x survived the read-modify-write of the trace field.
	got, err := cdp.Read(ctx)
	require.NoError(t, err)
	vals, err := zarr.Values[int32](got)
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 20, 30}, vals)

	raw, err := zarr.Open(ctx, memSpec("hdr", nil), opener, zarr.ModeOpen)
	require.NoError(t, err)
	assert.Equal(t, zarr.Byte, raw.DType())
	assert.Equal(t, []int64{3, 8}, raw.Domain().Shape())

	records, err := raw.Read(ctx)
	require.NoError(t, err)
	b, err := zarr.Values[uint8](records)
	require.NoError(t, err)
	assert.Equal(t, int32(20), int32(binary.LittleEndian.Uint32(b[8:12])))
	assert.Equal(t, float32(2.5), math.Float32frombits(binary.BigEndian.Uint32(b[12:16])))
}

// -----------------------------------------------------------------------------
// Labels and transforms
// -----------------------------------------------------------------------------

func TestStore_LabelsAndSpecRoundTrip(t *testing.T) {
	ctx := t.Context()
	opener := kvstore.NewOpener()
	s := createFloat(t, opener, "v", []any{10.0, 4.0}, []any{5.0, 4.0}, nil)

	s, err := s.WithLabel(0, "inline")
	require.NoError(t, err)
	s, err = s.WithLabel(1, "crossline")
	require.NoError(t, err)
	s, err = s.HalfOpenInterval([]int{0}, []int64{2}, []int64{7})
	require.NoError(t, err)

	reopened, err := zarr.Open(ctx, s.Spec(), opener, zarr.ModeOpen)
	require.NoError(t, err)
	assert.True(t, s.Domain().Equal(reopened.Domain()), "%s vs %s", s.Domain(), reopened.Domain())
	assert.Equal(t, []string{"inline", "crossline"}, reopened.Domain().Labels())
	assert.Equal(t, int64(2), reopened.Domain().InclusiveMin(0))
}

func TestStore_TransformInputShape(t *testing.T) {
	opener := kvstore.NewOpener()
	createFloat(t, opener, "v", []any{10.0}, []any{5.0}, nil)

	spec := memSpec("v", nil)
	spec["transform"] = map[string]any{
		"input_labels":        []any{"depth"},
		"input_inclusive_min": []any{3.0},
		"input_shape":         []any{4.0},
	}
	s, err := zarr.Open(t.Context(), spec, opener, zarr.ModeOpen)
	require.NoError(t, err)
	assert.Equal(t, "{ \"depth\": [3, 7) }", s.Domain().String())

	spec["transform"] = map[string]any{"input_labels": []any{"a", "b"}}
	_, err = zarr.Open(t.Context(), spec, opener, zarr.ModeOpen)
	require.ErrorIs(t, err, zarr.ErrInvalidMetadata)
}

func TestChunkKey(t *testing.T) {
	assert.Equal(t, "0", zarr.ChunkKey(nil, "."))
	assert.Equal(t, "1.0.12", zarr.ChunkKey([]int64{1, 0, 12}, "."))
	assert.Equal(t, "1/0", zarr.ChunkKey([]int64{1, 0}, "/"))
}

func TestStore_ReadCanceled(t *testing.T) {
	opener := kvstore.NewOpener()
	s := createFloat(t, opener, "v", []any{4.0}, []any{1.0}, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := s.Read(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
