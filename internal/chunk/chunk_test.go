package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGridCounts(t *testing.T) {
	g := Grid{Dims: []uint64{10, 7}, ChunkDims: []uint64{5, 3}}
	assert.Equal(t, []uint64{2, 3}, g.Counts())
	assert.Equal(t, uint64(6), g.Len())
	assert.Equal(t, 2, g.Rank())

	empty := Grid{Dims: []uint64{0, 4}, ChunkDims: []uint64{2, 2}}
	assert.Equal(t, uint64(0), empty.Len())
}

func TestGridOffsetIndexInverse(t *testing.T) {
	g := Grid{Dims: []uint64{10, 7, 4}, ChunkDims: []uint64{5, 3, 4}}
	for i := range g.Len() {
		off := g.Offset(i)
		assert.True(t, g.Aligned(off), "offset %v", off)
		idx, ok := g.Index(off)
		assert.True(t, ok)
		assert.Equal(t, i, idx)
	}
}

func TestGridIndex(t *testing.T) {
	g := Grid{Dims: []uint64{10, 7}, ChunkDims: []uint64{5, 3}}
	tests := []struct {
		coord []uint64
		want  uint64
		ok    bool
	}{
		{[]uint64{0, 0}, 0, true},
		{[]uint64{4, 2}, 0, true},
		{[]uint64{0, 3}, 1, true},
		{[]uint64{9, 6}, 5, true},
		{[]uint64{10, 0}, 0, false},
		{[]uint64{0}, 0, false},
	}
	for _, tt := range tests {
		got, ok := g.Index(tt.coord)
		assert.Equal(t, tt.ok, ok, "coord %v", tt.coord)
		if tt.ok {
			assert.Equal(t, tt.want, got, "coord %v", tt.coord)
		}
	}
}

func TestScaleRoundTrip(t *testing.T) {
	g := Grid{Dims: []uint64{100, 100}, ChunkDims: []uint64{10, 25}}
	off := []uint64{30, 50}
	assert.Equal(t, []uint64{3, 2}, g.Scaled(off))
	assert.Equal(t, off, g.Unscale(g.Scaled(off)))
	assert.False(t, g.Aligned([]uint64{31, 50}))
}

func TestSwizzle(t *testing.T) {
	g := Grid{Dims: []uint64{4, 6, 8}, ChunkDims: []uint64{2, 3, 4}}
	s := g.Swizzle(1)
	assert.Equal(t, []uint64{6, 4, 8}, s.Dims)
	assert.Equal(t, []uint64{3, 2, 4}, s.ChunkDims)
	assert.Equal(t, []uint64{0, 3, 4}, Unswizzle([]uint64{3, 0, 4}, 1))
	assert.Equal(t, []uint64{1, 2, 3}, Unswizzle([]uint64{1, 2, 3}, 0))
	assert.Equal(t, []uint64{2, 3, 1}, Unswizzle([]uint64{1, 2, 3}, 2))
}

func TestSort(t *testing.T) {
	chunks := []Chunk{
		{Offset: []uint64{5, 0}},
		{Offset: []uint64{0, 5}},
		{Offset: []uint64{0, 0}},
		{Offset: []uint64{5, 5}},
	}
	Sort(chunks)
	var got [][]uint64
	for _, c := range chunks {
		got = append(got, c.Offset)
	}
	assert.Equal(t, [][]uint64{{0, 0}, {0, 5}, {5, 0}, {5, 5}}, got)
}

func TestBytes(t *testing.T) {
	assert.Equal(t, uint64(4*5*8), Bytes([]uint64{4, 5}, 8))
}
