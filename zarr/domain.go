package zarr

import (
	"fmt"
	"slices"
	"strings"
)

// IndexDomain is a rectangular region of index space: per-dimension
// inclusive origin, shape and optional label. Values are immutable; every
// method returns a new domain.
type IndexDomain struct {
	origin []int64
	shape  []int64
	labels []string
}

// NewIndexDomain builds a domain. A nil origin means all zeros; nil labels
// means all unlabeled.
func NewIndexDomain(origin, shape []int64, labels []string) (IndexDomain, error) {
	rank := len(shape)
	if origin == nil {
		origin = make([]int64, rank)
	}
	if labels == nil {
		labels = make([]string, rank)
	}
	if len(origin) != rank || len(labels) != rank {
		return IndexDomain{}, fmt.Errorf("zarr: domain rank mismatch: origin %d, shape %d, labels %d",
			len(origin), rank, len(labels))
	}
	for i, n := range shape {
		if n < 0 {
			return IndexDomain{}, fmt.Errorf("zarr: %w: negative extent %d in dimension %d", ErrInvalidMetadata, n, i)
		}
	}
	d := IndexDomain{
		origin: slices.Clone(origin),
		shape:  slices.Clone(shape),
		labels: slices.Clone(labels),
	}
	if err := d.checkLabels(); err != nil {
		return IndexDomain{}, err
	}
	return d, nil
}

// Rank returns the number of dimensions.
func (d IndexDomain) Rank() int { return len(d.shape) }

// Origin returns the inclusive lower bounds.
func (d IndexDomain) Origin() []int64 { return slices.Clone(d.origin) }

// Shape returns the extents.
func (d IndexDomain) Shape() []int64 { return slices.Clone(d.shape) }

// Labels returns the dimension labels; unlabeled dimensions are "".
func (d IndexDomain) Labels() []string { return slices.Clone(d.labels) }

// Label returns the label of dimension i.
func (d IndexDomain) Label(i int) string { return d.labels[i] }

// InclusiveMin returns the origin of dimension i.
func (d IndexDomain) InclusiveMin(i int) int64 { return d.origin[i] }

// ExclusiveMax returns origin+shape of dimension i.
func (d IndexDomain) ExclusiveMax(i int) int64 { return d.origin[i] + d.shape[i] }

// NumElements returns the product of the extents.
func (d IndexDomain) NumElements() int64 {
	n := int64(1)
	for _, s := range d.shape {
		n *= s
	}
	return n
}

// IndexOf returns the dimension carrying label.
func (d IndexDomain) IndexOf(label string) (int, bool) {
	if label == "" {
		return 0, false
	}
	i := slices.Index(d.labels, label)
	return i, i >= 0
}

// WithLabel returns the domain with dimension i labeled name.
func (d IndexDomain) WithLabel(i int, name string) (IndexDomain, error) {
	if i < 0 || i >= d.Rank() {
		return IndexDomain{}, fmt.Errorf("zarr: %w: dimension %d not in rank %d", ErrOutOfBounds, i, d.Rank())
	}
	out := d.clone()
	out.labels[i] = name
	if err := out.checkLabels(); err != nil {
		return IndexDomain{}, err
	}
	return out, nil
}

// HalfOpenInterval restricts each dimension dims[k] to [start[k], stop[k]).
// The interval must lie within the current bounds. Origins are preserved, so
// index i addresses the same element before and after the restriction.
func (d IndexDomain) HalfOpenInterval(dims []int, start, stop []int64) (IndexDomain, error) {
	if len(dims) != len(start) || len(dims) != len(stop) {
		return IndexDomain{}, fmt.Errorf("zarr: interval arity mismatch: %d dims, %d starts, %d stops",
			len(dims), len(start), len(stop))
	}
	out := d.clone()
	seen := make(map[int]bool, len(dims))
	for k, i := range dims {
		if i < 0 || i >= d.Rank() {
			return IndexDomain{}, fmt.Errorf("zarr: %w: dimension %d not in rank %d", ErrOutOfBounds, i, d.Rank())
		}
		if seen[i] {
			return IndexDomain{}, fmt.Errorf("zarr: dimension %d selected more than once", i)
		}
		seen[i] = true
		lo, hi := d.InclusiveMin(i), d.ExclusiveMax(i)
		if start[k] < lo || stop[k] > hi || start[k] > stop[k] {
			return IndexDomain{}, fmt.Errorf("zarr: %w: [%d, %d) not contained in [%d, %d) for dimension %d",
				ErrOutOfBounds, start[k], stop[k], lo, hi, i)
		}
		out.origin[i] = start[k]
		out.shape[i] = stop[k] - start[k]
	}
	return out, nil
}

// Contains reports whether other lies within d.
func (d IndexDomain) Contains(other IndexDomain) bool {
	if other.Rank() != d.Rank() {
		return false
	}
	for i := range d.shape {
		if other.InclusiveMin(i) < d.InclusiveMin(i) || other.ExclusiveMax(i) > d.ExclusiveMax(i) {
			return false
		}
	}
	return true
}

// Equal reports whether both domains have the same bounds and labels.
func (d IndexDomain) Equal(other IndexDomain) bool {
	return slices.Equal(d.origin, other.origin) &&
		slices.Equal(d.shape, other.shape) &&
		slices.Equal(d.labels, other.labels)
}

// SameShape reports whether both domains have the same extents.
func (d IndexDomain) SameShape(other IndexDomain) bool {
	return slices.Equal(d.shape, other.shape)
}

// String renders the domain as { "label": [lo, hi), ... }.
func (d IndexDomain) String() string {
	parts := make([]string, d.Rank())
	for i := range d.shape {
		label := ""
		if d.labels[i] != "" {
			label = fmt.Sprintf("%q: ", d.labels[i])
		}
		parts[i] = fmt.Sprintf("%s[%d, %d)", label, d.InclusiveMin(i), d.ExclusiveMax(i))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func (d IndexDomain) clone() IndexDomain {
	return IndexDomain{
		origin: slices.Clone(d.origin),
		shape:  slices.Clone(d.shape),
		labels: slices.Clone(d.labels),
	}
}

func (d IndexDomain) checkLabels() error {
	seen := make(map[string]int, len(d.labels))
	for i, l := range d.labels {
		if l == "" {
			continue
		}
		if j, ok := seen[l]; ok {
			return fmt.Errorf("zarr: %w: label %q on dimensions %d and %d", ErrInvalidMetadata, l, j, i)
		}
		seen[l] = i
	}
	return nil
}
