package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DriverFunc builds the Store for a spec. The returned Store is rooted at the
// spec's bucket; the opener scopes it to the spec's path.
type DriverFunc func(ctx context.Context, spec Spec) (Store, error)

// Opener resolves specs into KvStore handles.
//
// Stores are cached per backend so that handles opened from equal specs
// observe each other's writes. The memory driver in particular shares one
// Store per bucket for the lifetime of the Opener.
//
// Opener is safe for concurrent use.
type Opener struct {
	mu      sync.Mutex
	drivers map[string]DriverFunc
	stores  map[string]Store
}

// NewOpener returns an Opener with the file and memory drivers registered.
func NewOpener() *Opener {
	o := &Opener{
		drivers: make(map[string]DriverFunc),
		stores:  make(map[string]Store),
	}
	o.Register(DriverFile, openFile)
	o.Register(DriverMemory, func(context.Context, Spec) (Store, error) {
		return NewMemory(), nil
	})
	return o
}

// Register installs fn as the driver for name, replacing any previous one.
func (o *Opener) Register(name string, fn DriverFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drivers[name] = fn
}

// Open returns a handle for spec.
func (o *Opener) Open(ctx context.Context, spec Spec) (*KvStore, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	rootSpec, prefix, err := splitRoot(spec)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	fn, ok := o.drivers[spec.Driver]
	if !ok {
		return nil, fmt.Errorf("kvstore: %w: %q", ErrUnknownDriver, spec.Driver)
	}

	key := cacheKey(rootSpec)
	store, ok := o.stores[key]
	if !ok {
		store, err = fn(ctx, rootSpec)
		if err != nil {
			return nil, fmt.Errorf("kvstore: open %s: %w", spec, err)
		}
		o.stores[key] = store
	}
	return New(spec, prefix, store), nil
}

// splitRoot separates the part of the spec that selects a Store from the
// key prefix within it. File specs are rooted at the parent directory of
// their path.
func splitRoot(spec Spec) (Spec, string, error) {
	if spec.Driver != DriverFile {
		root := spec
		root.Path = ""
		return root, spec.Path, nil
	}

	trimmed := strings.TrimRight(spec.Path, "/")
	if trimmed == "" {
		return Spec{}, "", fmt.Errorf("kvstore: %w: file driver requires a path", ErrInvalidPath)
	}
	root := spec
	root.Path = filepath.Dir(filepath.FromSlash(trimmed))
	return root, filepath.Base(filepath.FromSlash(trimmed)), nil
}

func cacheKey(root Spec) string {
	if root.Driver == DriverFile {
		if abs, err := filepath.Abs(root.Path); err == nil {
			return DriverFile + "|" + abs
		}
	}
	return strings.Join([]string{root.Driver, root.Bucket, root.Endpoint, root.Region, root.Path}, "|")
}

func openFile(_ context.Context, root Spec) (Store, error) {
	if err := os.MkdirAll(root.Path, 0o755); err != nil {
		return nil, err
	}
	return NewFS(root.Path)
}
