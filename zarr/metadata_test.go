package zarr

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadata_Strict(t *testing.T) {
	m, err := ParseMetadata(map[string]any{
		"zarr_format":         2.0,
		"shape":               []any{10.0, 20.0},
		"chunks":              []any{5.0, 20.0},
		"dtype":               "<f4",
		"compressor":          map[string]any{"id": "zstd", "level": 3.0},
		"fill_value":          "NaN",
		"order":               "C",
		"filters":             nil,
		"dimension_separator": "/",
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, m.Shape)
	assert.Equal(t, []int64{5, 20}, m.Chunks)
	assert.Equal(t, "zstd", m.Compressor.ID())
	assert.Equal(t, "/", m.DimensionSeparator)
	assert.Equal(t, int64(400), m.chunkBytes())

	rec, err := m.fillRecord()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(math.Float32frombits(binary.LittleEndian.Uint32(rec)))))

	_, err = ParseMetadata(map[string]any{"shape": []any{1.0}, "chunks": []any{1.0}, "dtype": "<f4"})
	require.ErrorIs(t, err, ErrInvalidMetadata, "zarr_format is required when strict")
}

func TestParseMetadata_CreateDefaults(t *testing.T) {
	m, err := parseMetadata(map[string]any{
		"dtype": "<i2",
		"shape": []any{0.0, 7.0},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, m.ZarrFormat)
	assert.Equal(t, []int64{1, 7}, m.Chunks)
	assert.Equal(t, ".", m.DimensionSeparator)
	assert.Equal(t, "C", m.Order)
	assert.Nil(t, m.JSON()["compressor"])
}

func TestParseMetadata_Rejects(t *testing.T) {
	base := func() map[string]any {
		return map[string]any{"dtype": "<f4", "shape": []any{4.0}}
	}
	tests := []struct {
		name string
		edit func(map[string]any)
		want error
	}{
		{"missing dtype", func(m map[string]any) { delete(m, "dtype") }, ErrInvalidMetadata},
		{"negative shape", func(m map[string]any) { m["shape"] = []any{-1.0} }, ErrInvalidMetadata},
		{"chunk rank", func(m map[string]any) { m["chunks"] = []any{1.0, 1.0} }, ErrInvalidMetadata},
		{"zero chunk", func(m map[string]any) { m["chunks"] = []any{0.0} }, ErrInvalidMetadata},
		{"fortran order", func(m map[string]any) { m["order"] = "F" }, ErrUnsupported},
		{"filters", func(m map[string]any) { m["filters"] = []any{map[string]any{"id": "delta"}} }, ErrUnsupported},
		{"zarr v3", func(m map[string]any) { m["zarr_format"] = 3.0 }, ErrUnsupported},
		{"blosc", func(m map[string]any) { m["compressor"] = map[string]any{"id": "blosc"} }, ErrUnsupported},
		{"separator", func(m map[string]any) { m["dimension_separator"] = "-" }, ErrInvalidMetadata},
		{"fill type", func(m map[string]any) { m["fill_value"] = "abc" }, ErrInvalidMetadata},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			obj := base()
			tc.edit(obj)
			_, err := parseMetadata(obj, false)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFillRecord(t *testing.T) {
	t.Run("big endian int", func(t *testing.T) {
		m, err := parseMetadata(map[string]any{"dtype": ">i4", "shape": []any{1.0}, "fill_value": 258.0}, false)
		require.NoError(t, err)
		rec, err := m.fillRecord()
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0, 1, 2}, rec)
	})

	t.Run("structured base64", func(t *testing.T) {
		m, err := parseMetadata(map[string]any{
			"dtype":      []any{[]any{"a", "<u1"}, []any{"b", "<u1"}},
			"shape":      []any{1.0},
			"fill_value": "AQI=",
		}, false)
		require.NoError(t, err)
		rec, err := m.fillRecord()
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2}, rec)
	})

	t.Run("complex pair", func(t *testing.T) {
		m, err := parseMetadata(map[string]any{"dtype": "<c8", "shape": []any{1.0}, "fill_value": []any{1.0, "-Infinity"}}, false)
		require.NoError(t, err)
		rec, err := m.fillRecord()
		require.NoError(t, err)
		assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(rec[:4])))
		assert.True(t, math.IsInf(float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[4:]))), -1))
	})

	t.Run("bool", func(t *testing.T) {
		m, err := parseMetadata(map[string]any{"dtype": "|b1", "shape": []any{1.0}, "fill_value": true}, false)
		require.NoError(t, err)
		rec, err := m.fillRecord()
		require.NoError(t, err)
		assert.Equal(t, []byte{1}, rec)
	})
}

func TestCheckCompatible(t *testing.T) {
	m, err := parseMetadata(map[string]any{"dtype": "<f4", "shape": []any{4.0}, "chunks": []any{2.0}}, false)
	require.NoError(t, err)

	require.NoError(t, m.checkCompatible(map[string]any{"dtype": "<f4", "shape": []int64{4}}))

	err = m.checkCompatible(map[string]any{"shape": []any{5.0}})
	require.ErrorIs(t, err, ErrIncompatible)
	assert.Contains(t, err.Error(), "shape")
	assert.Contains(t, err.Error(), "[5]")
	assert.Contains(t, err.Error(), "[4]")
}

func TestCompressors_RoundTrip(t *testing.T) {
	raw := make([]byte, 4096)
	for i := range raw {
		raw[i] = byte(i % 7)
	}
	for _, spec := range []any{
		nil,
		map[string]any{"id": "zstd"},
		map[string]any{"id": "zstd", "level": 5.0},
		map[string]any{"id": "gzip", "level": 1.0},
		map[string]any{"id": "zlib"},
	} {
		c, err := ParseCompressor(spec)
		require.NoError(t, err)
		t.Run(c.ID(), func(t *testing.T) {
			enc, err := c.Encode(raw)
			require.NoError(t, err)
			if c.ID() != "" {
				assert.Less(t, len(enc), len(raw))
			}
			dec, err := c.Decode(enc)
			require.NoError(t, err)
			assert.Equal(t, raw, dec)
		})
	}

	_, err := ParseCompressor("zstd")
	require.ErrorIs(t, err, ErrInvalidMetadata)
	_, err = ParseCompressor(map[string]any{})
	require.ErrorIs(t, err, ErrInvalidMetadata)
}
