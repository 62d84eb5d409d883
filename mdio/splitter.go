package mdio

import (
	"fmt"

	"github.com/pithecene-io/mdio/internal/jsondoc"
	"github.com/pithecene-io/mdio/kvstore"
)

// SplitSpec separates a variable spec into the store spec seen by the zarr
// engine and the variable metadata.
//
// The store spec is spec without "attributes". The variable metadata is the
// "attributes" object plus "variable_name", the last component of the
// kvstore path. Both results are deep copies in decoded JSON form.
func SplitSpec(spec map[string]any) (storeSpec, variableMetadata map[string]any, err error) {
	raw, ok := spec[KeyAttributes]
	if !ok {
		return nil, nil, fmt.Errorf("mdio: %w: spec does not contain %q", ErrMissingField, KeyAttributes)
	}
	attrs, ok := jsondoc.Object(raw)
	if !ok {
		return nil, nil, fmt.Errorf("mdio: %w: %q must be an object", ErrInvalidArgument, KeyAttributes)
	}
	if _, ok := attrs[KeyDimensionNames]; !ok {
		return nil, nil, fmt.Errorf("mdio: %w: %q does not contain %q", ErrMissingField, KeyAttributes, KeyDimensionNames)
	}

	normalized, err := jsondoc.NormalizeObject(spec)
	if err != nil {
		return nil, nil, fmt.Errorf("mdio: %w: %v", ErrInvalidArgument, err)
	}
	name, err := variableName(normalized)
	if err != nil {
		return nil, nil, err
	}

	variableMetadata, _ = jsondoc.Object(normalized[KeyAttributes])
	variableMetadata[KeyVariableName] = name
	delete(normalized, KeyAttributes)
	return normalized, variableMetadata, nil
}

// variableName derives a variable's name from its kvstore location.
func variableName(spec map[string]any) (string, error) {
	kv, err := kvstore.ParseSpec(spec[KeyKvstore])
	if err != nil {
		return "", fmt.Errorf("mdio: %w: %v", ErrInvalidArgument, err)
	}
	name := kv.Name()
	if name == "" {
		return "", fmt.Errorf("mdio: %w: kvstore path %q does not name a variable", ErrInvalidArgument, kv.Path)
	}
	return name, nil
}
