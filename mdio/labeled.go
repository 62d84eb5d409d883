package mdio

import (
	"fmt"
	"slices"

	"github.com/pithecene-io/mdio/zarr"
)

// LabeledArray is an in-memory array addressed through a labeled index
// domain. Data has the domain's shape; index origin[i] of the domain is
// position 0 of Data along dimension i.
//
// Copies of a LabeledArray share Data.
type LabeledArray struct {
	Domain zarr.IndexDomain
	Data   *zarr.Array
}

// NewLabeledArray pairs data with a domain of the same shape.
func NewLabeledArray(domain zarr.IndexDomain, data *zarr.Array) (LabeledArray, error) {
	if !slices.Equal(domain.Shape(), data.Shape()) {
		return LabeledArray{}, fmt.Errorf("mdio: %w: array shape %v does not match domain %s",
			ErrInvalidArgument, data.Shape(), domain)
	}
	return LabeledArray{Domain: domain, Data: data}, nil
}

// Slice returns the region selected by descs as a new contiguous array.
// Descriptors follow the rules of Variable.Slice. The result keeps the
// original index origin of every sliced dimension.
func (a LabeledArray) Slice(descs ...SliceDescriptor) (LabeledArray, error) {
	iv, err := resolveSlices(a.Domain, descs)
	if err != nil {
		return LabeledArray{}, err
	}
	domain, err := a.Domain.HalfOpenInterval(iv.dims, iv.start, iv.stop)
	if err != nil {
		return LabeledArray{}, fmt.Errorf("mdio: %w: %w", ErrInvalidArgument, err)
	}

	start := make([]int64, a.Domain.Rank())
	for i := range start {
		start[i] = domain.InclusiveMin(i) - a.Domain.InclusiveMin(i)
	}
	view, err := a.Data.Sub(start, domain.Shape())
	if err != nil {
		return LabeledArray{}, fmt.Errorf("mdio: %w: %w", ErrInvalidArgument, err)
	}
	return LabeledArray{Domain: domain, Data: view.Materialize()}, nil
}

func (a LabeledArray) String() string {
	return fmt.Sprintf("%s %s", a.Data.DType(), a.Domain)
}
