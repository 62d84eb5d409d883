// Package jsondoc provides helpers for the decoded JSON documents exchanged
// between mdio, the zarr engine and the companion attribute files.
//
// Documents are the generic decoding of JSON: map[string]any for objects,
// []any for arrays, float64 for numbers, string, bool and nil.
package jsondoc

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// Codec is the JSON configuration shared by every package of the module.
var Codec = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotObject indicates a document that does not decode to a JSON object.
var ErrNotObject = errors.New("json document is not an object")

// Parse decodes data into a JSON object.
func Parse(data []byte) (map[string]any, error) {
	var v any
	if err := Codec.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// Marshal encodes v as compact JSON.
func Marshal(v any) ([]byte, error) {
	return Codec.Marshal(v)
}

// Dump renders v as compact JSON for error messages. Unencodable values
// fall back to fmt formatting.
func Dump(v any) string {
	b, err := Codec.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Normalize round-trips v through JSON so that typed Go values ([]string,
// int, nested structs) take their generic decoded form.
func Normalize(v any) (any, error) {
	b, err := Codec.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := Codec.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeObject is Normalize for documents that must be objects.
func NormalizeObject(v map[string]any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	obj, ok := n.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// Clone deep-copies objects and arrays. Scalars are shared.
func Clone(v map[string]any) map[string]any {
	if v == nil {
		return nil
	}
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = cloneValue(val)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Object returns v as an object when it is one.
func Object(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok
}

// String returns v as a string when it is one.
func String(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// Strings converts a JSON array of strings.
func Strings(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), true
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// Ints converts a JSON array of integral numbers.
func Ints(v any) ([]int64, bool) {
	switch t := v.(type) {
	case []int64:
		return append([]int64(nil), t...), true
	case []int:
		out := make([]int64, len(t))
		for i, e := range t {
			out[i] = int64(e)
		}
		return out, true
	case []any:
		out := make([]int64, len(t))
		for i, e := range t {
			f, ok := Number(e)
			if !ok || f != float64(int64(f)) {
				return nil, false
			}
			out[i] = int64(f)
		}
		return out, true
	default:
		return nil, false
	}
}

// Number converts any JSON or Go numeric value to float64.
func Number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case jsoniter.Number:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Equal reports whether a and b are the same JSON value. Numbers compare by
// value regardless of their Go type.
func Equal(a, b any) bool {
	if fa, ok := Number(a); ok {
		fb, ok := Number(b)
		return ok && fa == fb
	}
	switch ta := a.(type) {
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, va := range ta {
			vb, ok := tb[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	case []any:
		tb, ok := asArray(b)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !Equal(ta[i], tb[i]) {
				return false
			}
		}
		return true
	case []string:
		na, _ := asArray(ta)
		return Equal(na, b)
	}
	if _, ok := b.([]any); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asArray(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out, true
	default:
		return nil, false
	}
}

// IsEmpty reports whether v is null, an empty array, an empty object or an
// empty string.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
