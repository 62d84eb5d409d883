// Package kvstore provides the byte-level key-value storage that zarr arrays
// and their companion attribute documents live in.
//
// Backends target the local filesystem, process memory, S3 (kvstore/s3) and
// Google Cloud Storage (kvstore/gcs). The Store interface is intentionally
// minimal to avoid backend-specific leakage; KvStore scopes a Store to the
// path prefix named by a JSON kvstore spec.
package kvstore

import (
	"context"
	"errors"
	"io"
)

// -----------------------------------------------------------------------------
// Store interface
// -----------------------------------------------------------------------------

// Store abstracts the underlying object storage system.
type Store interface {
	// Put writes data to the given path, replacing any existing object.
	Put(ctx context.Context, path string, r io.Reader) error

	// Create writes data to the given path.
	// Returns ErrPathExists if the path already exists.
	Create(ctx context.Context, path string, r io.Reader) error

	// Get retrieves data from the given path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks whether a path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the path if it exists.
	Delete(ctx context.Context, path string) error
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound indicates a requested object does not exist.
	ErrNotFound = errNotFound{}

	// ErrPathExists indicates an attempt to create an existing path.
	ErrPathExists = errPathExists{}

	// ErrInvalidPath indicates a path that would escape the storage root.
	ErrInvalidPath = errors.New("invalid path: escapes storage root")

	// ErrUnknownDriver indicates a kvstore spec naming an unregistered driver.
	ErrUnknownDriver = errors.New("unknown kvstore driver")
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errPathExists struct{}

func (errPathExists) Error() string { return "path exists" }
