// Package zarr is a minimal zarr v2 array engine over kvstore.
//
// A Store couples the array's .zarray metadata with an index domain: the
// per-dimension origin, shape and optional label through which the array is
// addressed. Narrowing the domain (HalfOpenInterval) is lazy; Read and Write
// move bytes between the chunk objects and an in-memory Array.
//
// Supported: C order, "." and "/" dimension separators, numpy typestr and
// structured dtypes, null/zstd/gzip/zlib compressors.
package zarr

import "errors"

// Metadata keys.
const (
	ArrayKey = ".zarray"
	AttrsKey = ".zattrs"
)

// OpenMode selects whether Open reads an existing array or creates one.
type OpenMode int

const (
	// ModeOpen opens an existing array.
	ModeOpen OpenMode = iota
	// ModeCreate creates a new array. Fails with ErrAlreadyExists if one exists.
	ModeCreate
	// ModeCreateClean deletes every key under the path, then creates.
	ModeCreateClean
)

func (m OpenMode) String() string {
	switch m {
	case ModeOpen:
		return "open"
	case ModeCreate:
		return "create"
	case ModeCreateClean:
		return "create_clean"
	default:
		return "unknown"
	}
}

// IsCreate reports whether the mode writes new metadata.
func (m OpenMode) IsCreate() bool { return m == ModeCreate || m == ModeCreateClean }

var (
	// ErrInvalidMetadata indicates a malformed spec or .zarray document.
	ErrInvalidMetadata = errors.New("invalid zarr metadata")

	// ErrUnsupported indicates a valid zarr feature this engine does not implement.
	ErrUnsupported = errors.New("unsupported zarr feature")

	// ErrAlreadyExists indicates a create against an existing array.
	ErrAlreadyExists = errors.New("array already exists")

	// ErrIncompatible indicates metadata or data that does not match the array.
	ErrIncompatible = errors.New("incompatible with array")

	// ErrOutOfBounds indicates an index interval outside the domain.
	ErrOutOfBounds = errors.New("index out of bounds")
)
