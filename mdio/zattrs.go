package mdio

import (
	"strings"

	"github.com/pithecene-io/mdio/internal/jsondoc"
	"github.com/pithecene-io/mdio/kvstore"
	"github.com/pithecene-io/mdio/zarr"
)

// companionKey returns the key of the .zattrs document within a variable's
// kvstore. Local stores address it from the root; object stores have no
// leading slash.
func companionKey(spec kvstore.Spec) string {
	if spec.IsCloud() {
		return zarr.AttrsKey
	}
	return "/" + zarr.AttrsKey
}

// ToZattrs converts variable metadata into its companion document:
//
//   - "dimension_names" is stored as "_ARRAY_DIMENSIONS"
//   - "variable_name" is dropped; it is derived from the path
//   - members of "metadata" move to the top level, except "chunkGrid"
//   - an empty "long_name" and empty or blank "coordinates" are dropped
func ToZattrs(meta map[string]any) map[string]any {
	out := jsondoc.Clone(meta)
	if dims, ok := out[KeyDimensionNames]; ok {
		out[KeyArrayDimensions] = dims
		delete(out, KeyDimensionNames)
	}
	delete(out, KeyVariableName)
	out = flattenMetadata(out)
	if v, ok := out[KeyLongName]; ok && v == "" {
		delete(out, KeyLongName)
	}
	if v, ok := out[KeyCoordinates]; ok && blankCoordinates(v) {
		delete(out, KeyCoordinates)
	}
	return out
}

// FromZattrs reconstructs canonical variable metadata from a companion
// document: "_ARRAY_DIMENSIONS" becomes "dimension_names" and name is set
// as "variable_name".
func FromZattrs(doc map[string]any, name string) map[string]any {
	out := jsondoc.Clone(doc)
	if dims, ok := out[KeyArrayDimensions]; ok {
		out[KeyDimensionNames] = dims
		delete(out, KeyArrayDimensions)
	}
	out[KeyVariableName] = name
	return out
}

// flattenMetadata moves the members of a nested "metadata" object to the
// top level of doc, dropping "chunkGrid". doc is modified and returned.
func flattenMetadata(doc map[string]any) map[string]any {
	nested, ok := jsondoc.Object(doc[KeyMetadata])
	if !ok {
		return doc
	}
	delete(doc, KeyMetadata)
	for k, v := range nested {
		if k == KeyChunkGrid {
			continue
		}
		doc[k] = v
	}
	return doc
}

func blankCoordinates(v any) bool {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return jsondoc.IsEmpty(v)
}
