// Package mdio binds chunked zarr v2 arrays to their self-describing
// companion metadata.
//
// A Variable couples an array store with the variable's metadata: its
// dimension names, long name and user attributes. The metadata is persisted
// next to the array as a ".zattrs" document so that other zarr tooling can
// read the dimension names (under "_ARRAY_DIMENSIONS") and attributes.
//
// Variables are sliced lazily by dimension label; Read materializes the
// addressed region as VariableData, and Write stores it back.
package mdio

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/pithecene-io/mdio/internal/jsondoc"
	"github.com/pithecene-io/mdio/zarr"
)

// -----------------------------------------------------------------------------
// Spec keys
// -----------------------------------------------------------------------------

// Keys of a variable spec and of its companion document.
const (
	KeyAttributes      = "attributes"
	KeyDimensionNames  = "dimension_names"
	KeyVariableName    = "variable_name"
	KeyLongName        = "long_name"
	KeyMetadata        = "metadata"
	KeyCoordinates     = "coordinates"
	KeyChunkGrid       = "chunkGrid"
	KeyArrayDimensions = "_ARRAY_DIMENSIONS"
	KeyKvstore         = "kvstore"
	KeyField           = "field"
	KeyDType           = "dtype"
	KeyShape           = "shape"
)

// -----------------------------------------------------------------------------
// Open modes
// -----------------------------------------------------------------------------

// OpenMode selects between opening an existing variable and creating one.
type OpenMode = zarr.OpenMode

const (
	// ModeOpen reads an existing array and its companion document.
	ModeOpen = zarr.ModeOpen
	// ModeCreate creates the array and writes the companion document.
	ModeCreate = zarr.ModeCreate
	// ModeCreateClean deletes anything stored under the path, then creates.
	ModeCreateClean = zarr.ModeCreateClean
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrMissingField indicates a required key absent from a spec.
	ErrMissingField = errors.New("missing field")

	// ErrInvalidArgument indicates a malformed value, an unsupported slice,
	// a dtype mismatch or stored metadata that conflicts with the supplied metadata.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates an expected key absent from stored metadata.
	ErrNotFound = errors.New("not found")
)

// MismatchError reports a stored metadata value that differs from the value
// supplied by the caller.
type MismatchError struct {
	Path     []string
	Expected any
	Actual   any
}

func (e *MismatchError) Error() string {
	key := ""
	if len(e.Path) > 0 {
		key = e.Path[len(e.Path)-1]
	}
	return fmt.Sprintf("conflicting values for field: %s. expected: %s, but got: %s",
		key, jsondoc.Dump(e.Expected), jsondoc.Dump(e.Actual))
}

// Unwrap makes MismatchError match ErrInvalidArgument.
func (e *MismatchError) Unwrap() error { return ErrInvalidArgument }

// -----------------------------------------------------------------------------
// Dimensions and slices
// -----------------------------------------------------------------------------

// DimensionIdentifier names a dimension by label or by position.
type DimensionIdentifier struct {
	label   string
	index   int
	byIndex bool
}

// Label identifies a dimension by its label.
func Label(name string) DimensionIdentifier { return DimensionIdentifier{label: name} }

// Index identifies a dimension by its position.
func Index(i int) DimensionIdentifier { return DimensionIdentifier{index: i, byIndex: true} }

// IsIndex reports whether the identifier is positional.
func (d DimensionIdentifier) IsIndex() bool { return d.byIndex }

func (d DimensionIdentifier) String() string {
	if d.byIndex {
		return strconv.Itoa(d.index)
	}
	return d.label
}

// resolve returns the dimension of domain that d identifies.
func (d DimensionIdentifier) resolve(domain zarr.IndexDomain) (int, bool) {
	if d.byIndex {
		return d.index, d.index >= 0 && d.index < domain.Rank()
	}
	return domain.IndexOf(d.label)
}

// SliceDescriptor selects the half-open interval [Start, Stop) of one
// dimension. Only a Step of 1 is supported.
type SliceDescriptor struct {
	Label DimensionIdentifier
	Start int64
	Stop  int64
	Step  int64
}

// Range returns a unit-step descriptor for the labeled dimension.
func Range(label string, start, stop int64) SliceDescriptor {
	return SliceDescriptor{Label: Label(label), Start: start, Stop: stop, Step: 1}
}

func (s SliceDescriptor) String() string {
	return fmt.Sprintf("{%s, %d, %d, %d}", s.Label, s.Start, s.Stop, s.Step)
}
