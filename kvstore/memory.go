package kvstore

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Memory Store
// -----------------------------------------------------------------------------

// memoryStore implements Store using an in-memory map.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an in-memory Store.
//
// Consistency: Immediate.
// Memory is safe for concurrent use.
func NewMemory() Store {
	return &memoryStore{
		data: make(map[string][]byte),
	}
}

func (m *memoryStore) Put(_ context.Context, p string, r io.Reader) error {
	normalized, valid := normalizePathForFile(p)
	if !valid {
		return ErrInvalidPath
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.data[normalized] = data
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Create(_ context.Context, p string, r io.Reader) error {
	normalized, valid := normalizePathForFile(p)
	if !valid {
		return ErrInvalidPath
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[normalized]; exists {
		return ErrPathExists
	}

	m.data[normalized] = data
	return nil
}

func (m *memoryStore) Get(_ context.Context, p string) (io.ReadCloser, error) {
	normalized, valid := normalizePathForFile(p)
	if !valid {
		return nil, ErrInvalidPath
	}

	m.mu.RLock()
	data, exists := m.data[normalized]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (m *memoryStore) Exists(_ context.Context, p string) (bool, error) {
	normalized, valid := normalizePathForFile(p)
	if !valid {
		return false, ErrInvalidPath
	}

	m.mu.RLock()
	_, exists := m.data[normalized]
	m.mu.RUnlock()

	return exists, nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]string, error) {
	normalized, valid := normalizePathForPrefix(prefix)
	if !valid {
		return nil, ErrInvalidPath
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var paths []string
	for p := range m.data {
		if strings.HasPrefix(p, normalized) {
			paths = append(paths, p)
		}
	}

	return paths, nil
}

func (m *memoryStore) Delete(_ context.Context, p string) error {
	normalized, valid := normalizePathForFile(p)
	if !valid {
		return ErrInvalidPath
	}

	m.mu.Lock()
	delete(m.data, normalized)
	m.mu.Unlock()

	return nil
}

// normalizePathForFile cleans a slash-separated key. Leading slashes are
// relative to the store root.
func normalizePathForFile(p string) (string, bool) {
	if p == "" {
		return "", false
	}

	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" || cleaned == "." {
		return "", false
	}
	if strings.HasPrefix(p, "..") || strings.Contains(p, "/../") || strings.HasSuffix(p, "/..") {
		return "", false
	}

	return cleaned, true
}

func normalizePathForPrefix(p string) (string, bool) {
	if p == "" {
		return "", true
	}
	if strings.HasPrefix(p, "..") || strings.Contains(p, "/../") {
		return "", false
	}

	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if strings.HasSuffix(p, "/") && cleaned != "" {
		cleaned += "/"
	}
	return cleaned, true
}
