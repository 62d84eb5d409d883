package zarr

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/mdio/internal/jsondoc"
	"github.com/pithecene-io/mdio/kvstore"
)

// chunkConcurrency bounds the chunk reads or writes in flight per call.
const chunkConcurrency = 8

// view describes which bytes of each record the store addresses.
type view struct {
	field     string
	offset    int
	size      int
	byteDim   bool // a trailing dimension indexes the bytes of the selection
	bigEndian bool
}

// Store is an open zarr array addressed through an index domain.
// Stores are immutable; WithLabel and HalfOpenInterval return new handles
// sharing the same kvstore.
type Store struct {
	kv     *kvstore.KvStore
	meta   ArrayMetadata
	dtype  DataType
	view   view
	domain IndexDomain
}

// Open opens or creates the array described by spec:
//
//	{
//	  "driver": "zarr",
//	  "kvstore": {"driver": "file", "path": "/data/velocity"},
//	  "field": "a",
//	  "metadata": {"dtype": "<f4", "shape": [100, 200], "chunks": [50, 50]},
//	  "transform": {"input_labels": ["inline", "crossline"]}
//	}
//
// Creating requires metadata with at least dtype and shape. When opening,
// any metadata given must match what is stored.
func Open(ctx context.Context, spec map[string]any, opener *kvstore.Opener, mode OpenMode) (*Store, error) {
	if driver, ok := spec["driver"]; ok && driver != "zarr" {
		return nil, fmt.Errorf("zarr: %w: driver %v", ErrInvalidMetadata, driver)
	}
	kvSpec, err := kvstore.ParseSpec(spec["kvstore"])
	if err != nil {
		return nil, fmt.Errorf("zarr: %w", err)
	}
	kv, err := opener.Open(ctx, kvSpec)
	if err != nil {
		return nil, err
	}

	requested, hasMeta := spec["metadata"].(map[string]any)
	var meta ArrayMetadata
	if mode.IsCreate() {
		if !hasMeta {
			return nil, fmt.Errorf("zarr: %w: create requires metadata", ErrInvalidMetadata)
		}
		meta, err = create(ctx, kv, requested, mode)
	} else {
		meta, err = load(ctx, kv)
		if err == nil && hasMeta {
			err = meta.checkCompatible(requested)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("zarr: %s %s: %w", mode, kvSpec, err)
	}

	field, _ := jsondoc.String(spec["field"])
	s, err := newStore(kv, meta, field)
	if err != nil {
		return nil, err
	}
	if transform, ok := spec["transform"].(map[string]any); ok {
		return s.applyTransform(transform)
	}
	return s, nil
}

func create(ctx context.Context, kv *kvstore.KvStore, requested map[string]any, mode OpenMode) (ArrayMetadata, error) {
	meta, err := parseMetadata(requested, false)
	if err != nil {
		return ArrayMetadata{}, err
	}
	if mode == ModeCreateClean {
		if err := kv.DeleteAll(ctx); err != nil {
			return ArrayMetadata{}, err
		}
	}
	data, err := jsondoc.Marshal(meta.JSON())
	if err != nil {
		return ArrayMetadata{}, err
	}
	if err := kv.Create(ctx, ArrayKey, data); err != nil {
		if errors.Is(err, kvstore.ErrPathExists) {
			return ArrayMetadata{}, ErrAlreadyExists
		}
		return ArrayMetadata{}, err
	}
	return meta, nil
}

func load(ctx context.Context, kv *kvstore.KvStore) (ArrayMetadata, error) {
	data, err := kv.Read(ctx, ArrayKey)
	if err != nil {
		return ArrayMetadata{}, err
	}
	obj, err := jsondoc.Parse(data)
	if err != nil {
		return ArrayMetadata{}, fmt.Errorf("%w: %s: %v", ErrInvalidMetadata, ArrayKey, err)
	}
	return ParseMetadata(obj)
}

func newStore(kv *kvstore.KvStore, meta ArrayMetadata, field string) (*Store, error) {
	s := &Store{kv: kv, meta: meta}
	dt := meta.DType

	switch {
	case field != "" && !dt.Structured:
		return nil, fmt.Errorf("zarr: %w: field %q on non-structured dtype %s", ErrInvalidMetadata, field, dt)
	case field != "":
		f, ok := dt.Field(field)
		if !ok {
			return nil, fmt.Errorf("zarr: %w: no field %q in %s", ErrInvalidMetadata, field, dt)
		}
		s.view = view{field: field, offset: f.Offset, size: f.Size, bigEndian: f.BigEndian}
		s.dtype = f.Type
		s.view.byteDim = f.Type == Byte
	case dt.Structured:
		s.view = view{size: dt.ItemSize, byteDim: true}
		s.dtype = Byte
	default:
		f := dt.Fields[0]
		s.view = view{size: f.Size, bigEndian: f.BigEndian}
		s.dtype = f.Type
	}

	shape := slices.Clone(meta.Shape)
	if s.view.byteDim {
		shape = append(shape, int64(s.view.size))
	}
	domain, err := NewIndexDomain(nil, shape, nil)
	if err != nil {
		return nil, err
	}
	s.domain = domain
	return s, nil
}

func (s *Store) applyTransform(t map[string]any) (*Store, error) {
	out := s
	if raw, ok := t["input_labels"]; ok {
		labels, ok := jsondoc.Strings(raw)
		if !ok || len(labels) != s.domain.Rank() {
			return nil, fmt.Errorf("zarr: %w: input_labels must list %d names", ErrInvalidMetadata, s.domain.Rank())
		}
		for i, l := range labels {
			var err error
			if out, err = out.WithLabel(i, l); err != nil {
				return nil, err
			}
		}
	}

	lo, hasLo := jsondoc.Ints(t["input_inclusive_min"])
	hi, hasHi := jsondoc.Ints(t["input_exclusive_max"])
	if shape, ok := jsondoc.Ints(t["input_shape"]); ok && hasLo && !hasHi && len(shape) == len(lo) {
		hi = make([]int64, len(lo))
		for i := range lo {
			hi[i] = lo[i] + shape[i]
		}
		hasHi = true
	}
	if !hasLo && !hasHi {
		return out, nil
	}
	if !hasLo {
		lo = s.domain.Origin()
	}
	if !hasHi {
		hi = make([]int64, s.domain.Rank())
		for i := range hi {
			hi[i] = s.domain.ExclusiveMax(i)
		}
	}
	if len(lo) != s.domain.Rank() || len(hi) != s.domain.Rank() {
		return nil, fmt.Errorf("zarr: %w: transform bounds must have rank %d", ErrInvalidMetadata, s.domain.Rank())
	}
	dims := make([]int, s.domain.Rank())
	for i := range dims {
		dims[i] = i
	}
	return out.HalfOpenInterval(dims, lo, hi)
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// Domain returns the addressed index domain.
func (s *Store) Domain() IndexDomain { return s.domain }

// DType returns the element type of the addressed view.
func (s *Store) DType() DataType { return s.dtype }

// Metadata returns the stored .zarray metadata.
func (s *Store) Metadata() ArrayMetadata { return s.meta }

// Field returns the selected structured field, or "".
func (s *Store) Field() string { return s.view.field }

// KV returns the kvstore handle holding the array.
func (s *Store) KV() *kvstore.KvStore { return s.kv }

// Spec returns a spec that reopens this exact view.
func (s *Store) Spec() map[string]any {
	out := map[string]any{
		"driver":   "zarr",
		"kvstore":  s.kv.Spec().ToJSON(),
		"metadata": s.meta.JSON(),
	}
	if s.view.field != "" {
		out["field"] = s.view.field
	}
	hi := make([]int64, s.domain.Rank())
	for i := range hi {
		hi[i] = s.domain.ExclusiveMax(i)
	}
	out["transform"] = map[string]any{
		"input_inclusive_min": s.domain.Origin(),
		"input_exclusive_max": hi,
		"input_labels":        s.domain.Labels(),
	}
	return out
}

// WithLabel returns a handle whose dimension i is labeled name.
func (s *Store) WithLabel(i int, name string) (*Store, error) {
	d, err := s.domain.WithLabel(i, name)
	if err != nil {
		return nil, err
	}
	return s.withDomain(d), nil
}

// HalfOpenInterval returns a handle restricted to [start, stop) along dims.
func (s *Store) HalfOpenInterval(dims []int, start, stop []int64) (*Store, error) {
	d, err := s.domain.HalfOpenInterval(dims, start, stop)
	if err != nil {
		return nil, err
	}
	return s.withDomain(d), nil
}

func (s *Store) withDomain(d IndexDomain) *Store {
	out := *s
	out.domain = d
	return &out
}

func (s *Store) String() string {
	return fmt.Sprintf("zarr %s %s %s", s.kv.Spec(), s.dtype, s.domain)
}

// -----------------------------------------------------------------------------
// Read / Write
// -----------------------------------------------------------------------------

// region splits the domain into chunked array bounds and the byte-dimension
// bounds of the selection.
func (s *Store) region() (lo, hi []int64, byteLo, byteHi int64) {
	rank := s.meta.Rank()
	lo = s.domain.Origin()[:rank]
	hi = make([]int64, rank)
	for i := range hi {
		hi[i] = s.domain.ExclusiveMax(i)
	}
	if s.view.byteDim {
		byteLo, byteHi = s.domain.InclusiveMin(rank), s.domain.ExclusiveMax(rank)
	}
	return lo, hi, byteLo, byteHi
}

// boxes returns, for chunk idx, the start within the chunk view, the start
// within the domain-shaped array, and the shared extent.
func (s *Store) boxes(idx, lo, hi []int64, byteLo, byteHi int64) (chunkStart, arrayStart, extent []int64) {
	rank := len(idx)
	chunkStart = make([]int64, rank, rank+1)
	arrayStart = make([]int64, rank, rank+1)
	extent = make([]int64, rank, rank+1)
	for i, c := range s.meta.Chunks {
		first := max(lo[i], idx[i]*c)
		last := min(hi[i], (idx[i]+1)*c)
		chunkStart[i] = first - idx[i]*c
		arrayStart[i] = first - lo[i]
		extent[i] = last - first
	}
	if s.view.byteDim {
		chunkStart = append(chunkStart, byteLo)
		arrayStart = append(arrayStart, 0)
		extent = append(extent, byteHi-byteLo)
	}
	return chunkStart, arrayStart, extent
}

// covers reports whether the region fully overwrites chunk idx, so the
// chunk need not be read first.
func (s *Store) covers(idx, lo, hi []int64, byteLo, byteHi int64) bool {
	if s.view.field != "" && s.view.size != s.meta.DType.ItemSize {
		return false
	}
	if s.view.byteDim && (byteLo != 0 || byteHi != int64(s.view.size)) {
		return false
	}
	for i, c := range s.meta.Chunks {
		first, last := idx[i]*c, min((idx[i]+1)*c, s.meta.Shape[i])
		if lo[i] > first || hi[i] < last {
			return false
		}
	}
	return true
}

// Read loads the addressed region into a new contiguous array.
func (s *Store) Read(ctx context.Context) (*Array, error) {
	out, err := Allocate(s.dtype, s.domain.Shape())
	if err != nil {
		return nil, err
	}
	if s.domain.NumElements() == 0 {
		return out, nil
	}

	lo, hi, byteLo, byteHi := s.region()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkConcurrency)
	err = gridFor(s.meta.Chunks, lo, hi).each(func(idx []int64) error {
		g.Go(func() error {
			raw, err := s.readChunk(gctx, idx)
			if err != nil {
				return err
			}
			chunkStart, arrayStart, extent := s.boxes(idx, lo, hi, byteLo, byteHi)
			src, err := s.chunkView(raw).Sub(chunkStart, extent)
			if err != nil {
				return err
			}
			dst, err := out.Sub(arrayStart, extent)
			if err != nil {
				return err
			}
			return dst.CopyFrom(src)
		})
		return gctx.Err()
	})
	if werr := g.Wait(); werr != nil {
		err = werr
	}
	if err != nil {
		return nil, fmt.Errorf("zarr: read %s: %w", s.kv.Spec(), err)
	}
	return out, nil
}

// Write stores src, which must match the domain's shape and the dtype,
// into the addressed region. Partially covered chunks are read, updated
// and rewritten.
func (s *Store) Write(ctx context.Context, src *Array) error {
	if src.DType() != s.dtype {
		return fmt.Errorf("zarr: %w: write %s into %s array", ErrIncompatible, src.DType(), s.dtype)
	}
	if !slices.Equal(src.Shape(), s.domain.Shape()) {
		return fmt.Errorf("zarr: %w: write shape %v into domain %s", ErrIncompatible, src.Shape(), s.domain)
	}
	if s.domain.NumElements() == 0 {
		return nil
	}

	lo, hi, byteLo, byteHi := s.region()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkConcurrency)
	err := gridFor(s.meta.Chunks, lo, hi).each(func(idx []int64) error {
		g.Go(func() error {
			var raw []byte
			if s.covers(idx, lo, hi, byteLo, byteHi) {
				raw = s.fillChunk()
			} else {
				var err error
				if raw, err = s.readChunk(gctx, idx); err != nil {
					return err
				}
			}
			v := s.chunkView(raw)
			chunkStart, arrayStart, extent := s.boxes(idx, lo, hi, byteLo, byteHi)
			dst, err := v.Sub(chunkStart, extent)
			if err != nil {
				return err
			}
			part, err := src.Sub(arrayStart, extent)
			if err != nil {
				return err
			}
			if err := dst.CopyFrom(part); err != nil {
				return err
			}
			s.releaseView(v)
			return s.writeChunk(gctx, idx, raw)
		})
		return gctx.Err()
	})
	if werr := g.Wait(); werr != nil {
		err = werr
	}
	if err != nil {
		return fmt.Errorf("zarr: write %s: %w", s.kv.Spec(), err)
	}
	return nil
}
