package zarr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pithecene-io/mdio/kvstore"
)

// ChunkKey returns the key of the chunk at grid position idx.
func ChunkKey(idx []int64, separator string) string {
	if len(idx) == 0 {
		return "0"
	}
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, separator)
}

// chunkGrid is the range of chunk positions covering a region.
type chunkGrid struct {
	lo, hi []int64 // inclusive lo, exclusive hi, in chunk units
}

func gridFor(chunks, lo, hi []int64) chunkGrid {
	g := chunkGrid{lo: make([]int64, len(chunks)), hi: make([]int64, len(chunks))}
	for i, c := range chunks {
		g.lo[i] = lo[i] / c
		g.hi[i] = (hi[i]-1)/c + 1
	}
	return g
}

// each calls fn with every chunk position of the grid in C order.
func (g chunkGrid) each(fn func(idx []int64) error) error {
	for i := range g.lo {
		if g.hi[i] <= g.lo[i] {
			return nil
		}
	}
	idx := slices.Clone(g.lo)
	for {
		if err := fn(slices.Clone(idx)); err != nil {
			return err
		}
		k := len(idx) - 1
		for ; k >= 0; k-- {
			idx[k]++
			if idx[k] < g.hi[k] {
				break
			}
			idx[k] = g.lo[k]
		}
		if k < 0 {
			return nil
		}
	}
}

// readChunk returns the decoded record bytes of a chunk, or a chunk of fill
// records when the key is absent.
func (s *Store) readChunk(ctx context.Context, idx []int64) ([]byte, error) {
	encoded, err := s.kv.Read(ctx, ChunkKey(idx, s.meta.DimensionSeparator))
	if errors.Is(err, kvstore.ErrNotFound) {
		return s.fillChunk(), nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := s.meta.Compressor.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) != s.meta.chunkBytes() {
		return nil, fmt.Errorf("zarr: %w: chunk %v decodes to %d bytes, want %d",
			ErrIncompatible, idx, len(raw), s.meta.chunkBytes())
	}
	return raw, nil
}

func (s *Store) writeChunk(ctx context.Context, idx []int64, raw []byte) error {
	encoded, err := s.meta.Compressor.Encode(raw)
	if err != nil {
		return err
	}
	return s.kv.Write(ctx, ChunkKey(idx, s.meta.DimensionSeparator), encoded)
}

func (s *Store) fillChunk() []byte {
	rec, _ := s.meta.fillRecord()
	n := numElements(s.meta.Chunks)
	if !slices.ContainsFunc(rec, func(b byte) bool { return b != 0 }) {
		return make([]byte, n*int64(len(rec)))
	}
	return bytes.Repeat(rec, int(n))
}

// chunkView returns the native-endian view of raw selected by the store's
// field. The view aliases raw; big-endian fields are swapped in place.
func (s *Store) chunkView(raw []byte) *Array {
	chunks := s.meta.Chunks
	recordStrides := contiguousStrides(chunks, s.meta.DType.ItemSize)
	v := &Array{
		dtype:   s.dtype,
		shape:   slices.Clone(chunks),
		strides: recordStrides,
		offset:  int64(s.view.offset),
		data:    raw,
	}
	if s.view.byteDim {
		v.shape = append(v.shape, int64(s.view.size))
		v.strides = append(v.strides, 1)
	}
	if s.view.bigEndian {
		swapView(v)
	}
	return v
}

// releaseView undoes the native-endian conversion of chunkView so raw holds
// stored bytes again.
func (s *Store) releaseView(v *Array) {
	if s.view.bigEndian {
		swapView(v)
	}
}

// swapView byte-swaps every element of a in place.
func swapView(a *Array) {
	size := int64(a.dtype.Size())
	unit := a.dtype.swapUnit()
	inner := a.innerExtent()
	step := a.innerStride()
	forEachRow(a.shape, func(idx []int64) {
		off := a.rowOffset(idx)
		for j := int64(0); j < inner; j++ {
			p := off + j*step
			swapBytes(a.data[p:p+size], unit)
		}
	})
}
