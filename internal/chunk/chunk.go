// Package chunk holds the geometry shared by every chunk index: chunk
// records, and the mapping between element offsets and linear chunk numbers.
package chunk

import "slices"

// Chunk is one stored chunk. Offset is in elements and has one entry per
// dataset dimension.
type Chunk struct {
	Offset     []uint64
	Addr       uint64
	Size       uint64
	FilterMask uint32
}

// Compare orders chunks row-major by offset.
func Compare(a, b Chunk) int {
	return slices.Compare(a.Offset, b.Offset)
}

// Sort orders chunks row-major by offset, the order libhdf5 iterates them in.
func Sort(chunks []Chunk) {
	slices.SortFunc(chunks, Compare)
}

// Grid maps a dataset extent onto its chunk grid.
type Grid struct {
	Dims      []uint64
	ChunkDims []uint64
}

// Rank returns the dataset rank.
func (g Grid) Rank() int { return len(g.Dims) }

// Counts returns the number of chunks along each dimension, counting
// partial edge chunks.
func (g Grid) Counts() []uint64 {
	out := make([]uint64, len(g.Dims))
	for i, d := range g.Dims {
		c := g.ChunkDims[i]
		if c == 0 {
			continue
		}
		out[i] = (d + c - 1) / c
	}
	return out
}

// Len returns the total number of chunk slots.
func (g Grid) Len() uint64 {
	n := uint64(1)
	for _, c := range g.Counts() {
		n *= c
	}
	return n
}

// Offset returns the element offset of the chunk with linear number i.
func (g Grid) Offset(i uint64) []uint64 {
	counts := g.Counts()
	out := make([]uint64, len(counts))
	for d := len(counts) - 1; d >= 0; d-- {
		if counts[d] == 0 {
			continue
		}
		out[d] = (i % counts[d]) * g.ChunkDims[d]
		i /= counts[d]
	}
	return out
}

// Index returns the linear number of the chunk containing the element at
// coord. It reports false when coord lies outside the dataset.
func (g Grid) Index(coord []uint64) (uint64, bool) {
	if len(coord) != len(g.Dims) {
		return 0, false
	}
	counts := g.Counts()
	var idx uint64
	for d, c := range coord {
		if c >= g.Dims[d] {
			return 0, false
		}
		idx = idx*counts[d] + c/g.ChunkDims[d]
	}
	return idx, true
}

// Scaled converts an element offset into chunk coordinates.
func (g Grid) Scaled(off []uint64) []uint64 {
	out := make([]uint64, len(off))
	for d, v := range off {
		out[d] = v / g.ChunkDims[d]
	}
	return out
}

// Unscale converts chunk coordinates into an element offset.
func (g Grid) Unscale(scaled []uint64) []uint64 {
	out := make([]uint64, len(scaled))
	for d, v := range scaled {
		out[d] = v * g.ChunkDims[d]
	}
	return out
}

// Aligned reports whether off is the first element of some chunk inside the
// dataset.
func (g Grid) Aligned(off []uint64) bool {
	if len(off) != len(g.Dims) {
		return false
	}
	for d, v := range off {
		if v%g.ChunkDims[d] != 0 || v >= g.Dims[d] {
			return false
		}
	}
	return true
}

// Swizzle returns a grid with dimension dim moved to the front. Extensible
// array indexes number chunks in this order so the unlimited dimension varies
// slowest.
func (g Grid) Swizzle(dim int) Grid {
	return Grid{Dims: moveFront(g.Dims, dim), ChunkDims: moveFront(g.ChunkDims, dim)}
}

// Unswizzle undoes Swizzle on a coordinate.
func Unswizzle(coord []uint64, dim int) []uint64 {
	out := make([]uint64, len(coord))
	copy(out[:dim], coord[1:dim+1])
	out[dim] = coord[0]
	copy(out[dim+1:], coord[dim+1:])
	return out
}

func moveFront(v []uint64, dim int) []uint64 {
	out := make([]uint64, 0, len(v))
	out = append(out, v[dim])
	out = append(out, v[:dim]...)
	return append(out, v[dim+1:]...)
}

// Bytes returns the uncompressed size of a full chunk.
func Bytes(chunkDims []uint64, elemSize uint64) uint64 {
	n := elemSize
	for _, c := range chunkDims {
		n *= c
	}
	return n
}
