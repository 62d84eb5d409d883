package mdio

import (
	"fmt"

	"github.com/pithecene-io/mdio/zarr"
)

// interval is a resolved, clamped slice along one dimension.
type interval struct {
	dims        []int
	start, stop []int64
}

func (iv interval) empty() bool { return len(iv.dims) == 0 }

// clampSlice restricts desc to the bounds of the dimension it names in
// domain. Descriptors naming no dimension of domain are returned unchanged.
func clampSlice(domain zarr.IndexDomain, desc SliceDescriptor) SliceDescriptor {
	dim, ok := desc.Label.resolve(domain)
	if !ok {
		return desc
	}
	out := desc
	if lo := domain.InclusiveMin(dim); out.Start < lo {
		out.Start = lo
	}
	if hi := domain.ExclusiveMax(dim); out.Stop > hi {
		out.Stop = hi
	}
	return out
}

// resolveSlices validates descs against domain and returns the intervals to
// apply. Every descriptor must have a step of 1 and, once clamped, a start
// below its stop. Descriptors for dimensions not in domain are dropped.
func resolveSlices(domain zarr.IndexDomain, descs []SliceDescriptor) (interval, error) {
	for _, d := range descs {
		if d.Step != 1 {
			return interval{}, fmt.Errorf("mdio: %w: only step 1 is supported, got %s", ErrInvalidArgument, d)
		}
	}

	var out interval
	seen := make(map[int]bool, len(descs))
	for _, d := range descs {
		c := clampSlice(domain, d)
		if c.Start >= c.Stop {
			return interval{}, fmt.Errorf(
				"mdio: %w: slice descriptor for %s had an illegal configuration: start %d greater than or equal to stop %d",
				ErrInvalidArgument, d.Label, c.Start, c.Stop)
		}
		dim, ok := c.Label.resolve(domain)
		if !ok {
			continue
		}
		if seen[dim] {
			return interval{}, fmt.Errorf("mdio: %w: dimension %s sliced more than once", ErrInvalidArgument, d.Label)
		}
		seen[dim] = true
		out.dims = append(out.dims, dim)
		out.start = append(out.start, c.Start)
		out.stop = append(out.stop, c.Stop)
	}
	return out, nil
}
