// Package gcs provides a Google Cloud Storage kvstore backend.
//
// Credentials come from GOOGLE_APPLICATION_CREDENTIALS when set. A spec
// endpoint (or STORAGE_EMULATOR_HOST) selects an unauthenticated emulator,
// such as fake-gcs-server.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/pithecene-io/mdio/kvstore"
)

const (
	envCredentials  = "GOOGLE_APPLICATION_CREDENTIALS"
	envEmulatorHost = "STORAGE_EMULATOR_HOST"
)

// Store implements kvstore.Store on a single GCS bucket.
type Store struct {
	bucket *storage.BucketHandle
	name   string
}

// New returns a Store for bucket using client.
func New(client *storage.Client, bucket string) (*Store, error) {
	if client == nil {
		return nil, errors.New("gcs: client is required")
	}
	if bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	return &Store{bucket: client.Bucket(bucket), name: bucket}, nil
}

// NewClient creates a storage client for spec.
func NewClient(ctx context.Context, spec kvstore.Spec) (*storage.Client, error) {
	var opts []option.ClientOption
	switch {
	case spec.Endpoint != "":
		opts = append(opts, option.WithEndpoint(spec.Endpoint), option.WithoutAuthentication())
	case os.Getenv(envEmulatorHost) != "":
		opts = append(opts, option.WithoutAuthentication())
	case os.Getenv(envCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(os.Getenv(envCredentials)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}
	return client, nil
}

// Driver returns a kvstore driver serving every bucket through client.
func Driver(client *storage.Client) kvstore.DriverFunc {
	return func(_ context.Context, spec kvstore.Spec) (kvstore.Store, error) {
		return New(client, spec.Bucket)
	}
}

// DefaultDriver returns a kvstore driver that creates a client per bucket.
func DefaultDriver() kvstore.DriverFunc {
	return func(ctx context.Context, spec kvstore.Spec) (kvstore.Store, error) {
		client, err := NewClient(ctx, spec)
		if err != nil {
			return nil, err
		}
		return New(client, spec.Bucket)
	}
}

// Put writes data to the given path, replacing any existing object.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	name, err := objectName(key)
	if err != nil {
		return err
	}
	return s.write(ctx, s.bucket.Object(name), name, r)
}

// Create writes data to the given path only if no object exists there.
// Returns ErrPathExists otherwise.
func (s *Store) Create(ctx context.Context, key string, r io.Reader) error {
	name, err := objectName(key)
	if err != nil {
		return err
	}
	obj := s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
	err = s.write(ctx, obj, name, r)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return kvstore.ErrPathExists
	}
	return err
}

func (s *Store) write(ctx context.Context, obj *storage.ObjectHandle, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("gcs: read body: %w", err)
	}
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("gcs: write %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("gcs: close writer for %s: %w", name, err)
	}
	return nil
}

// Get retrieves data from the given path.
// Returns ErrNotFound if the object does not exist.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := objectName(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, kvstore.ErrNotFound
		}
		return nil, fmt.Errorf("gcs: new reader %s: %w", name, err)
	}
	return reader, nil
}

// Exists checks whether a path exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	name, err := objectName(key)
	if err != nil {
		return false, err
	}
	_, err = s.bucket.Object(name).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs: attrs %s: %w", name, err)
	}
	return true, nil
}

// List returns all object names under the given prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	query, err := listPrefix(prefix)
	if err != nil {
		return nil, err
	}
	var names []string
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: query})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs: list %s: %w", query, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// Delete removes the path if it exists.
func (s *Store) Delete(ctx context.Context, key string) error {
	name, err := objectName(key)
	if err != nil {
		return err
	}
	err = s.bucket.Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: delete %s: %w", name, err)
	}
	return nil
}

// objectName cleans a key into a GCS object name. GCS names never start
// with a slash.
func objectName(key string) (string, error) {
	if key == "" {
		return "", kvstore.ErrInvalidPath
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", kvstore.ErrInvalidPath
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "", kvstore.ErrInvalidPath
	}
	return cleaned, nil
}

func listPrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", nil
	}
	cleaned := path.Clean(prefix)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", kvstore.ErrInvalidPath
	}
	if cleaned == "." || cleaned == "/" {
		return "", nil
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if strings.HasSuffix(prefix, "/") {
		cleaned += "/"
	}
	return cleaned, nil
}
