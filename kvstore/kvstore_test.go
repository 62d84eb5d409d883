package kvstore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"testing"

	"github.com/pithecene-io/mdio/internal/testutil"
	"github.com/pithecene-io/mdio/kvstore"
)

// -----------------------------------------------------------------------------
// Store semantics, shared by fs and memory
// -----------------------------------------------------------------------------

func stores(t *testing.T) map[string]kvstore.Store {
	t.Helper()
	fs, err := kvstore.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	return map[string]kvstore.Store{
		"fs":     fs,
		"memory": kvstore.NewMemory(),
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			if err := store.Put(ctx, "a/b", bytes.NewReader([]byte("one"))); err != nil {
				t.Fatalf("first Put failed: %v", err)
			}
			if err := store.Put(ctx, "a/b", bytes.NewReader([]byte("two"))); err != nil {
				t.Fatalf("second Put failed: %v", err)
			}

			rc, err := store.Get(ctx, "a/b")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			defer func() { _ = rc.Close() }()
			content, _ := io.ReadAll(rc)
			if string(content) != "two" {
				t.Errorf("content mismatch: got %q, want %q", content, "two")
			}
		})
	}
}

func TestStore_CreateErrPathExists(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			if err := store.Create(ctx, "x/.zarray", bytes.NewReader([]byte("{}"))); err != nil {
				t.Fatalf("first Create failed: %v", err)
			}
			err := store.Create(ctx, "x/.zarray", bytes.NewReader([]byte("{}")))
			if !errors.Is(err, kvstore.ErrPathExists) {
				t.Errorf("expected ErrPathExists, got %v", err)
			}
		})
	}
}

func TestStore_GetErrNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(t.Context(), "missing")
			if !errors.Is(err, kvstore.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_LeadingSlashIsRootRelative(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			if err := store.Put(ctx, "v//.zattrs", bytes.NewReader([]byte("{}"))); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			exists, err := store.Exists(ctx, "v/.zattrs")
			if err != nil {
				t.Fatalf("Exists failed: %v", err)
			}
			if !exists {
				t.Error("expected v//.zattrs and v/.zattrs to address the same object")
			}
		})
	}
}

func TestStore_RejectsEscape(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Put(t.Context(), "../escape", bytes.NewReader(nil))
			if !errors.Is(err, kvstore.ErrInvalidPath) {
				t.Errorf("expected ErrInvalidPath, got %v", err)
			}
		})
	}
}

func TestStore_ListAndDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			for _, p := range []string{"v/.zarray", "v/0.0", "w/.zarray"} {
				if err := store.Put(ctx, p, bytes.NewReader([]byte("d"))); err != nil {
					t.Fatalf("Put %s failed: %v", p, err)
				}
			}

			got, err := store.List(ctx, "v/")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			sort.Strings(got)
			if len(got) != 2 || got[0] != "v/.zarray" || got[1] != "v/0.0" {
				t.Errorf("unexpected listing: %v", got)
			}

			if err := store.Delete(ctx, "v/0.0"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if err := store.Delete(ctx, "v/0.0"); err != nil {
				t.Errorf("Delete of missing path should succeed, got %v", err)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Spec
// -----------------------------------------------------------------------------

func TestParseSpec_Object(t *testing.T) {
	spec, err := kvstore.ParseSpec(map[string]any{
		"driver": "gcs",
		"bucket": "survey",
		"path":   "stack/velocity",
	})
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}
	if spec.Driver != kvstore.DriverGCS || spec.Bucket != "survey" || spec.Path != "stack/velocity" {
		t.Errorf("unexpected spec: %+v", spec)
	}
	if spec.Name() != "velocity" {
		t.Errorf("Name() = %q, want %q", spec.Name(), "velocity")
	}
	if !spec.IsCloud() {
		t.Error("expected gcs spec to be cloud")
	}
}

func TestParseSpec_URL(t *testing.T) {
	tests := []struct {
		url    string
		driver string
		bucket string
		path   string
	}{
		{"file:///data/velocity", kvstore.DriverFile, "", "/data/velocity"},
		{"gs://survey/velocity", kvstore.DriverGCS, "survey", "velocity"},
		{"s3://survey/a/b", kvstore.DriverS3, "survey", "a/b"},
		{"memory://scratch", kvstore.DriverMemory, "", "scratch"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			spec, err := kvstore.ParseSpec(tt.url)
			if err != nil {
				t.Fatalf("ParseSpec failed: %v", err)
			}
			if spec.Driver != tt.driver || spec.Bucket != tt.bucket || spec.Path != tt.path {
				t.Errorf("got %+v", spec)
			}
		})
	}
}

func TestParseSpec_Invalid(t *testing.T) {
	cases := map[string]any{
		"no driver":       map[string]any{"path": "x"},
		"non-string path": map[string]any{"driver": "file", "path": 3.0},
		"cloud no bucket": map[string]any{"driver": "s3", "path": "x"},
		"bad scheme":      "ftp://host/x",
		"wrong type":      42.0,
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := kvstore.ParseSpec(v); !errors.Is(err, kvstore.ErrInvalidSpec) {
				t.Errorf("expected ErrInvalidSpec, got %v", err)
			}
		})
	}
}

func TestSpec_Name_TrailingSlash(t *testing.T) {
	spec := kvstore.Spec{Driver: kvstore.DriverFile, Path: "/data/velocity/"}
	if spec.Name() != "velocity" {
		t.Errorf("Name() = %q, want %q", spec.Name(), "velocity")
	}
}

// -----------------------------------------------------------------------------
// Opener and KvStore
// -----------------------------------------------------------------------------

func TestOpener_MemorySharedAcrossHandles(t *testing.T) {
	ctx := t.Context()
	opener := kvstore.NewOpener()

	a, err := opener.Open(ctx, kvstore.Spec{Driver: kvstore.DriverMemory, Path: "velocity"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	b, err := opener.Open(ctx, kvstore.Spec{Driver: kvstore.DriverMemory, Path: "velocity"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := a.Write(ctx, "/.zattrs", []byte(`{"k":1}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := b.Read(ctx, ".zattrs")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != `{"k":1}` {
		t.Errorf("Read = %q", got)
	}
}

func TestOpener_FileRootedAtParent(t *testing.T) {
	ctx := t.Context()
	dir := filepath.Join(t.TempDir(), "survey")
	defer testutil.RemoveAll(dir)

	handle, err := kvstore.NewOpener().Open(ctx, kvstore.Spec{
		Driver: kvstore.DriverFile,
		Path:   filepath.Join(dir, "velocity"),
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := handle.Write(ctx, "0.0", []byte("chunk")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	keys, err := handle.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "0.0" {
		t.Errorf("List = %v, want [0.0]", keys)
	}

	if err := handle.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if _, err := handle.Read(ctx, "0.0"); !errors.Is(err, kvstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound after DeleteAll, got %v", err)
	}
}

func TestOpener_UnknownDriver(t *testing.T) {
	_, err := kvstore.NewOpener().Open(t.Context(), kvstore.Spec{Driver: "tape", Path: "x"})
	if !errors.Is(err, kvstore.ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestOpener_RegisteredDriver(t *testing.T) {
	ctx := t.Context()
	backing := kvstore.NewMemory()
	opener := kvstore.NewOpener()

	var calls int
	opener.Register(kvstore.DriverS3, func(_ context.Context, spec kvstore.Spec) (kvstore.Store, error) {
		calls++
		if spec.Path != "" {
			t.Errorf("driver should receive the bucket root, got path %q", spec.Path)
		}
		return backing, nil
	})

	for range 2 {
		if _, err := opener.Open(ctx, kvstore.Spec{Driver: kvstore.DriverS3, Bucket: "b", Path: "v"}); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("driver called %d times, want 1", calls)
	}
}

func TestKvStore_CreateRefusesOverwrite(t *testing.T) {
	ctx := t.Context()
	handle := kvstore.New(kvstore.Spec{Driver: kvstore.DriverMemory, Path: "v"}, "v", kvstore.NewMemory())

	if err := handle.Create(ctx, ".zarray", []byte("{}")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := handle.Create(ctx, ".zarray", []byte("{}")); !errors.Is(err, kvstore.ErrPathExists) {
		t.Errorf("expected ErrPathExists, got %v", err)
	}
	if handle.Key(".zarray") != "v/.zarray" {
		t.Errorf("Key = %q", handle.Key(".zarray"))
	}
}
