package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KvStore is a Store scoped to the path named by a Spec. Keys passed to its
// methods are appended verbatim to the slash-terminated path, so "/.zattrs"
// and ".zattrs" address the same object on every backend.
type KvStore struct {
	spec   Spec
	prefix string
	store  Store
}

// New scopes store to prefix. The prefix is relative to the store root.
func New(spec Spec, prefix string, store Store) *KvStore {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &KvStore{spec: spec, prefix: prefix, store: store}
}

// Spec returns the spec the handle was opened from.
func (k *KvStore) Spec() Spec { return k.spec }

// Driver returns the driver name.
func (k *KvStore) Driver() string { return k.spec.Driver }

// Path returns the path as named in the spec.
func (k *KvStore) Path() string { return k.spec.Path }

// Store returns the underlying Store.
func (k *KvStore) Store() Store { return k.store }

// IsCloud reports whether the backend is addressed by bucket.
func (k *KvStore) IsCloud() bool { return k.spec.IsCloud() }

// Key returns the store-relative key for key.
func (k *KvStore) Key(key string) string { return k.prefix + key }

// Read returns the object stored under key.
func (k *KvStore) Read(ctx context.Context, key string) ([]byte, error) {
	rc, err := k.store.Get(ctx, k.Key(key))
	if err != nil {
		return nil, fmt.Errorf("kvstore: read %s: %w", k.describe(key), err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("kvstore: read %s: %w", k.describe(key), err)
	}
	return data, nil
}

// Write stores data under key, replacing any existing object.
func (k *KvStore) Write(ctx context.Context, key string, data []byte) error {
	if err := k.store.Put(ctx, k.Key(key), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("kvstore: write %s: %w", k.describe(key), err)
	}
	return nil
}

// Create stores data under key. Returns ErrPathExists if the key exists.
func (k *KvStore) Create(ctx context.Context, key string, data []byte) error {
	if err := k.store.Create(ctx, k.Key(key), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("kvstore: create %s: %w", k.describe(key), err)
	}
	return nil
}

// Exists reports whether key exists.
func (k *KvStore) Exists(ctx context.Context, key string) (bool, error) {
	return k.store.Exists(ctx, k.Key(key))
}

// List returns every key under the handle's path, relative to it.
func (k *KvStore) List(ctx context.Context) ([]string, error) {
	paths, err := k.store.List(ctx, k.prefix)
	if err != nil {
		return nil, fmt.Errorf("kvstore: list %s: %w", k.spec, err)
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, ok := strings.CutPrefix(p, k.prefix)
		if !ok {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

// Delete removes key if it exists.
func (k *KvStore) Delete(ctx context.Context, key string) error {
	if err := k.store.Delete(ctx, k.Key(key)); err != nil {
		return fmt.Errorf("kvstore: delete %s: %w", k.describe(key), err)
	}
	return nil
}

// DeleteAll removes every key under the handle's path.
func (k *KvStore) DeleteAll(ctx context.Context) error {
	keys, err := k.List(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, key := range keys {
		if err := k.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (k *KvStore) describe(key string) string {
	return fmt.Sprintf("%q in %s", key, k.spec)
}
