package stats

import (
	"fmt"

	"github.com/pithecene-io/mdio/internal/jsondoc"
)

// UserAttributes is an immutable snapshot of a variable's attributes and
// statistics. Updates build a new value; nothing mutates one in place.
type UserAttributes struct {
	attributes map[string]any
	stats      []SummaryStats
	// statsList records whether statsV1 was given as a list, so a single
	// element list survives a round trip.
	statsList bool
}

// Empty returns attributes with neither free-form attributes nor statistics.
func Empty() *UserAttributes { return &UserAttributes{} }

// FromJSON decodes {"attributes": {...}, "statsV1": {...} | [...]}. Both
// keys are optional; other keys are ignored.
func FromJSON(doc map[string]any, kind Kind) (*UserAttributes, error) {
	u := &UserAttributes{}
	if raw, ok := doc[KeyAttributes]; ok && raw != nil {
		obj, ok := jsondoc.Object(raw)
		if !ok {
			return nil, fmt.Errorf("stats: %w: %s must be an object", ErrInvalidValue, KeyAttributes)
		}
		u.attributes = jsondoc.Clone(obj)
	}

	raw, ok := doc[KeyStats]
	if !ok || raw == nil {
		return u, nil
	}
	if list, isList := raw.([]any); isList {
		u.statsList = true
		for i, e := range list {
			s, err := SummaryStatsFromJSON(e, kind)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", KeyStats, i, err)
			}
			u.stats = append(u.stats, s)
		}
		return u, nil
	}
	s, err := SummaryStatsFromJSON(raw, kind)
	if err != nil {
		return nil, err
	}
	u.stats = []SummaryStats{s}
	return u, nil
}

// FromVariableJSON extracts user attributes from a variable's metadata.
// They are read from "metadata.attributes" and "metadata.statsV1", falling
// back to the flattened top-level keys of a companion document.
func FromVariableJSON(doc map[string]any) (*UserAttributes, error) {
	src := map[string]any{}
	for _, key := range []string{KeyAttributes, KeyStats} {
		if v, ok := doc[key]; ok {
			src[key] = v
		}
	}
	if meta, ok := jsondoc.Object(doc[KeyMetadata]); ok {
		for _, key := range []string{KeyAttributes, KeyStats} {
			if v, ok := meta[key]; ok {
				src[key] = v
			}
		}
	}
	return FromJSON(src, Float32)
}

// FromDatasetJSON extracts the user attributes of the variable named name
// from a dataset document ({"metadata": ..., "variables": [...]}).
func FromDatasetJSON(doc map[string]any, name string) (*UserAttributes, error) {
	vars, _ := doc["variables"].([]any)
	for _, v := range vars {
		obj, ok := jsondoc.Object(v)
		if !ok {
			continue
		}
		if n, _ := jsondoc.String(obj["name"]); n != name {
			continue
		}
		meta, ok := jsondoc.Object(obj[KeyMetadata])
		if !ok {
			return Empty(), nil
		}
		return FromJSON(meta, Float32)
	}
	return nil, fmt.Errorf("stats: %w: variable %s not found in dataset", ErrVariableNotFound, name)
}

// Attributes returns a copy of the free-form attributes, or nil.
func (u *UserAttributes) Attributes() map[string]any {
	if u.attributes == nil {
		return nil
	}
	return jsondoc.Clone(u.attributes)
}

// Stats returns the summary statistics in declaration order.
func (u *UserAttributes) Stats() []SummaryStats {
	return append([]SummaryStats(nil), u.stats...)
}

// IsEmpty reports whether ToJSON would return an empty object.
func (u *UserAttributes) IsEmpty() bool {
	return u.attributes == nil && len(u.stats) == 0 && !u.statsList
}

// ToJSON encodes the attributes in the form accepted by FromJSON.
func (u *UserAttributes) ToJSON() map[string]any {
	out := map[string]any{}
	if u.attributes != nil {
		out[KeyAttributes] = jsondoc.Clone(u.attributes)
	}
	switch {
	case u.statsList:
		list := make([]any, len(u.stats))
		for i, s := range u.stats {
			list[i] = s.JSON()
		}
		out[KeyStats] = list
	case len(u.stats) == 1:
		out[KeyStats] = u.stats[0].JSON()
	}
	return out
}
