package mdio

import (
	"fmt"

	"github.com/pithecene-io/mdio/internal/jsondoc"
	"github.com/pithecene-io/mdio/zarr"
)

// VariableData is the materialized content of a Variable: its descriptive
// metadata and a labeled in-memory array.
type VariableData struct {
	Name     string
	LongName string
	Metadata map[string]any
	Data     LabeledArray
}

// FromVariable returns zero-filled data shaped like v.
func FromVariable(v *Variable) (*VariableData, error) {
	domain := v.Dimensions()
	arr, err := zarr.Allocate(v.DType(), domain.Shape())
	if err != nil {
		return nil, fmt.Errorf("mdio: %w", err)
	}
	return &VariableData{
		Name:     v.Name(),
		LongName: v.LongName(),
		Metadata: v.ReducedMetadata(),
		Data:     LabeledArray{Domain: domain, Data: arr},
	}, nil
}

// Dimensions returns the labeled index domain.
func (d *VariableData) Dimensions() zarr.IndexDomain { return d.Data.Domain }

// NumSamples returns the number of elements.
func (d *VariableData) NumSamples() int64 { return d.Data.Domain.NumElements() }

// DType returns the element type.
func (d *VariableData) DType() zarr.DataType { return d.Data.Data.DType() }

// Array returns the backing array.
func (d *VariableData) Array() *zarr.Array { return d.Data.Data }

// FlattenedOffset returns the position, in elements, of the first addressed
// element within the backing buffer.
func (d *VariableData) FlattenedOffset() int64 { return d.Data.Data.ElementOffset() }

// Slice returns a copy of the region selected by descs. Name and metadata
// carry over.
func (d *VariableData) Slice(descs ...SliceDescriptor) (*VariableData, error) {
	sliced, err := d.Data.Slice(descs...)
	if err != nil {
		return nil, err
	}
	return &VariableData{
		Name:     d.Name,
		LongName: d.LongName,
		Metadata: jsondoc.Clone(d.Metadata),
		Data:     sliced,
	}, nil
}

func (d *VariableData) String() string {
	return fmt.Sprintf("VariableData %q %s", d.Name, d.Data)
}
