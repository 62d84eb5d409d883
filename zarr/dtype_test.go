package zarr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDType_Typestr(t *testing.T) {
	tests := []struct {
		in      string
		want    DataType
		bigEnd  bool
		wantErr error
	}{
		{"<f4", Float32, false, nil},
		{">f8", Float64, true, nil},
		{"|b1", Bool, false, nil},
		{"<i2", Int16, false, nil},
		{"|u1", Uint8, false, nil},
		{">u1", Uint8, false, nil},
		{"<c8", Complex64, false, nil},
		{"<f2", "", false, ErrUnsupported},
		{"|V4", "", false, ErrUnsupported},
		{"f4", "", false, ErrInvalidMetadata},
		{"<fx", "", false, ErrInvalidMetadata},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			d, err := ParseDType(tc.in)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.False(t, d.Structured)
			assert.Equal(t, tc.want, d.Fields[0].Type)
			assert.Equal(t, tc.bigEnd, d.Fields[0].BigEndian)
			assert.Equal(t, tc.want.Size(), d.ItemSize)
			assert.Equal(t, tc.in, d.JSON())
		})
	}
}

func TestParseDType_Structured(t *testing.T) {
	d, err := ParseDType([]any{
		[]any{"cdp_x", "<i4"},
		[]any{"trace", ">f4"},
		[]any{"header", "|V6"},
	})
	require.NoError(t, err)

	assert.True(t, d.Structured)
	assert.Equal(t, 14, d.ItemSize)
	assert.Equal(t, []string{"cdp_x", "trace", "header"}, d.FieldNames())

	f, ok := d.Field("trace")
	require.True(t, ok)
	assert.Equal(t, 4, f.Offset)
	assert.True(t, f.BigEndian)

	h, ok := d.Field("header")
	require.True(t, ok)
	assert.Equal(t, Byte, h.Type)
	assert.Equal(t, 6, h.Size)
	assert.Equal(t, 8, h.Offset)

	assert.Equal(t, "{cdp_x:<i4,trace:>f4,header:|V6}", d.String())
}

func TestParseDType_StructuredErrors(t *testing.T) {
	_, err := ParseDType([]any{})
	require.ErrorIs(t, err, ErrInvalidMetadata)

	_, err = ParseDType([]any{[]any{"a", "<i4"}, []any{"a", "<f4"}})
	require.ErrorIs(t, err, ErrInvalidMetadata)

	_, err = ParseDType([]any{[]any{"a", "<i4", []any{2.0}}})
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = ParseDType(4.0)
	require.ErrorIs(t, err, ErrInvalidMetadata)
}
