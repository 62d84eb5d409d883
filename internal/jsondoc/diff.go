package jsondoc

import (
	"sort"
	"strings"
)

// MismatchKind classifies a structural difference.
type MismatchKind int

const (
	// Missing means the key exists in the expected document only.
	Missing MismatchKind = iota
	// Conflict means the key exists on both sides with different values.
	Conflict
)

func (k MismatchKind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Mismatch is one difference found by Diff.
type Mismatch struct {
	Path     []string
	Kind     MismatchKind
	Expected any
	Actual   any
}

// Key returns the innermost key of the mismatch.
func (m Mismatch) Key() string {
	if len(m.Path) == 0 {
		return ""
	}
	return m.Path[len(m.Path)-1]
}

// PathString joins the path with dots.
func (m Mismatch) PathString() string {
	return strings.Join(m.Path, ".")
}

// DiffMode selects how much of the documents Diff inspects.
type DiffMode int

const (
	// FailFast stops at the first mismatch.
	FailFast DiffMode = iota
	// CollectAll reports every mismatch.
	CollectAll
)

type diffFrame struct {
	path     []string
	expected map[string]any
	actual   map[string]any
}

// Diff compares expected against actual breadth first. Every key of expected
// must be present in actual with an equal value; objects present on both
// sides are compared recursively. Keys only present in actual are ignored.
// Keys are visited in sorted order so results are deterministic.
func Diff(expected, actual map[string]any, mode DiffMode) []Mismatch {
	var out []Mismatch
	queue := []diffFrame{{expected: expected, actual: actual}}
	for len(queue) > 0 {
		frame := queue[0]
		queue = queue[1:]

		keys := make([]string, 0, len(frame.expected))
		for k := range frame.expected {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			want := frame.expected[key]
			path := append(append([]string(nil), frame.path...), key)

			got, ok := frame.actual[key]
			if !ok {
				out = append(out, Mismatch{Path: path, Kind: Missing, Expected: want})
				if mode == FailFast {
					return out
				}
				continue
			}

			wantObj, wantIsObj := want.(map[string]any)
			gotObj, gotIsObj := got.(map[string]any)
			if wantIsObj && gotIsObj {
				queue = append(queue, diffFrame{path: path, expected: wantObj, actual: gotObj})
				continue
			}
			if !Equal(want, got) {
				out = append(out, Mismatch{Path: path, Kind: Conflict, Expected: want, Actual: got})
				if mode == FailFast {
					return out
				}
			}
		}
	}
	return out
}
