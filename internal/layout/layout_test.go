package layout

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/chunk"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

var sz = binary.DefaultSizes

type bump struct{ next uint64 }

func (b *bump) Alloc(n uint64) uint64 {
	a := b.next
	b.next += n
	return a
}

func memFile(t *testing.T) afero.File {
	t.Helper()
	f, err := afero.NewMemMapFs().Create("layout.h5")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func chunked(idx message.IndexType, chunkDims ...uint64) *message.Layout {
	return &message.Layout{
		Class:     message.LayoutChunked,
		Addr:      sz.Undefined(),
		ChunkDims: chunkDims,
		ElemSize:  4,
		Index:     idx,
		PageBits:  DefaultPageBits,
	}
}

func TestGatherScatter(t *testing.T) {
	dims := []uint64{5, 7}
	chunkDims := []uint64{2, 3}
	const es = 2
	src := make([]byte, 5*7*es)
	for i := range src {
		src[i] = byte(i + 1)
	}

	dst := make([]byte, len(src))
	g := chunk.Grid{Dims: dims, ChunkDims: chunkDims}
	for i := range g.Len() {
		off := g.Offset(i)
		buf := Gather(src, dims, off, chunkDims, es)
		assert.Len(t, buf, 2*3*es)
		require.NoError(t, Scatter(dst, dims, buf, off, chunkDims, es))
	}
	assert.Equal(t, src, dst)
}

func TestGatherEdgeIsZeroFilled(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5}
	got := Gather(src, []uint64{5}, []uint64{4}, []uint64{3}, 1)
	assert.Equal(t, []byte{5, 0, 0}, got)

	err := Scatter(make([]byte, 5), []uint64{5}, []byte{1}, []uint64{4}, []uint64{3}, 1)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReadContiguous(t *testing.T) {
	f := memFile(t)
	_, err := f.WriteAt([]byte{9, 8, 7, 6}, 100)
	require.NoError(t, err)

	got, err := ReadContiguous(f, &message.Layout{Class: message.LayoutContiguous, Addr: 100, Size: 4}, 4, sz)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7, 6}, got)

	got, err = ReadContiguous(f, &message.Layout{Class: message.LayoutContiguous, Addr: sz.Undefined()}, 3, sz)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0}, got)

	got, err = ReadContiguous(f, &message.Layout{Class: message.LayoutCompact, Compact: []byte{1, 2}}, 2, sz)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, got)

	_, err = ReadContiguous(f, chunked(message.IndexSingle, 1), 4, sz)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFilteredSizeLen(t *testing.T) {
	// One byte more than log2(chunk bytes) needs, capped at 8.
	tests := []struct {
		chunkBytes uint64
		want       int
	}{
		{1, 2},
		{64, 2},
		{255, 2},
		{256, 3},
		{4000, 3},
		{1 << 16, 4},
		{1 << 63, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, filteredSizeLen(tt.chunkBytes), "chunk bytes %d", tt.chunkBytes)
	}
}

func TestWriteReadIndexes(t *testing.T) {
	tests := []struct {
		name     string
		layout   *message.Layout
		ext      Extent
		filtered bool
		pick     func(i int) bool
	}{
		{"btree v1", chunked(message.IndexBTreeV1, 2, 2), Extent{Dims: []uint64{6, 5}}, true, func(i int) bool { return i != 4 }},
		{"fixed array", chunked(message.IndexFixedArray, 2, 2), Extent{Dims: []uint64{6, 5}}, false, func(i int) bool { return i%2 == 0 }},
		{"fixed array filtered", chunked(message.IndexFixedArray, 3), Extent{Dims: []uint64{10}, MaxDims: []uint64{20}}, true, func(int) bool { return true }},
		{"fixed array paged", func() *message.Layout {
			l := chunked(message.IndexFixedArray, 1)
			l.PageBits = 2
			return l
		}(), Extent{Dims: []uint64{13}}, true, func(i int) bool { return i != 5 && i != 6 && i != 7 && i != 8 }},
		{"single", chunked(message.IndexSingle, 4, 4), Extent{Dims: []uint64{4, 4}}, true, func(int) bool { return true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := memFile(t)
			a := &bump{next: 64}
			g := chunk.Grid{Dims: tt.ext.Dims, ChunkDims: tt.layout.ChunkDims}
			var want []chunk.Chunk
			for i := range g.Len() {
				if !tt.pick(int(i)) {
					continue
				}
				c := chunk.Chunk{Offset: g.Offset(i), Addr: 50000 + 100*i, Size: tt.layout.ChunkBytes()}
				if tt.filtered {
					c.Size = 10 + i
					c.FilterMask = uint32(i % 2)
				}
				want = append(want, c)
			}

			require.NoError(t, WriteIndex(f, a, tt.layout, tt.ext, want, tt.filtered, sz))
			got, err := ReadChunks(f, tt.layout, tt.ext, sz)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("chunks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFixedArrayRewriteInPlace(t *testing.T) {
	f := memFile(t)
	a := &bump{next: 64}
	l := chunked(message.IndexFixedArray, 2)
	ext := Extent{Dims: []uint64{8}}

	first := []chunk.Chunk{{Offset: []uint64{0}, Addr: 9000, Size: 8}}
	require.NoError(t, WriteIndex(f, a, l, ext, first, false, sz))
	addr, used := l.Addr, a.next

	both := append(first, chunk.Chunk{Offset: []uint64{4}, Addr: 9100, Size: 8})
	require.NoError(t, WriteIndex(f, a, l, ext, both, false, sz))
	assert.Equal(t, addr, l.Addr)
	assert.Equal(t, used, a.next)

	got, err := ReadChunks(f, l, ext, sz)
	require.NoError(t, err)
	assert.Equal(t, both, got)
}

func TestImplicitIndex(t *testing.T) {
	l := chunked(message.IndexImplicit, 2, 2)
	l.Addr = 4096
	ext := Extent{Dims: []uint64{3, 4}, MaxDims: []uint64{4, 4}}

	got, err := ReadChunks(nil, l, ext, sz)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, chunk.Chunk{Offset: []uint64{2, 2}, Addr: 4096 + 3*16, Size: 16}, got[3])
	assert.Equal(t, uint64(4*16), ImplicitSize(l, ext))

	addr, ok := ImplicitAddr(l, ext, []uint64{2, 0})
	assert.True(t, ok)
	assert.Equal(t, uint64(4096+2*16), addr)

	f := memFile(t)
	assert.NoError(t, WriteIndex(f, &bump{}, l, ext, got, false, sz))
	bad := []chunk.Chunk{{Offset: []uint64{0, 0}, Addr: 1}}
	assert.ErrorIs(t, WriteIndex(f, &bump{}, l, ext, bad, false, sz), ErrCorrupt)
	assert.ErrorIs(t, WriteIndex(f, &bump{}, l, ext, got, true, sz), ErrUnsupported)
}

func TestUndefinedIndexHasNoChunks(t *testing.T) {
	for _, idx := range []message.IndexType{
		message.IndexBTreeV1, message.IndexSingle, message.IndexFixedArray,
		message.IndexExtArray, message.IndexBTreeV2,
	} {
		got, err := ReadChunks(nil, chunked(idx, 2), Extent{Dims: []uint64{4}}, sz)
		assert.NoError(t, err, idx)
		assert.Empty(t, got, idx)
	}
}

func TestReadChunksRejectsBadLayouts(t *testing.T) {
	_, err := ReadChunks(nil, &message.Layout{Class: message.LayoutContiguous}, Extent{}, sz)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = ReadChunks(nil, chunked(message.IndexBTreeV1, 2, 2), Extent{Dims: []uint64{4}}, sz)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = ReadChunks(nil, chunked(message.IndexBTreeV1, 0), Extent{Dims: []uint64{4}}, sz)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestWriteIndexErrors(t *testing.T) {
	f := memFile(t)
	l := chunked(message.IndexSingle, 2)
	err := WriteIndex(f, &bump{}, l, Extent{Dims: []uint64{4}}, nil, false, sz)
	assert.ErrorIs(t, err, ErrUnsupported)

	l = chunked(message.IndexExtArray, 2)
	err = WriteIndex(f, &bump{}, l, Extent{Dims: []uint64{4}}, nil, false, sz)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, Writable(message.IndexExtArray))
	assert.True(t, Writable(message.IndexFixedArray))
}

// writeExtArray lays out an extensible array holding entries in its index
// block and first data block.
func writeExtArray(t *testing.T, f afero.File, entries []uint64) {
	t.Helper()
	const (
		hdr    = 0
		iblock = 200
		dblock = 800
	)
	h := binary.NewEncoder(sz)
	h.Raw([]byte("EAHD"))
	h.U8(0)
	h.U8(0)
	h.U8(uint8(sz.Offset))
	h.U8(32) // max bits
	h.U8(4)  // index block elements
	h.U8(16) // data block minimum elements
	h.U8(4)  // super block minimum pointers
	h.U8(10) // page bits
	for range 4 {
		h.Length(0)
	}
	h.Length(uint64(len(entries)))
	h.Length(uint64(len(entries)))
	h.Addr(iblock)
	h.Checksum(0)
	_, err := f.WriteAt(h.Bytes(), hdr)
	require.NoError(t, err)

	ib := binary.NewEncoder(sz)
	ib.Raw([]byte("EAIB"))
	ib.U8(0)
	ib.U8(0)
	ib.Addr(hdr)
	for i := range 4 {
		ib.Addr(entries[i])
	}
	ib.Addr(dblock)
	for range 5 {
		ib.Addr(sz.Undefined())
	}
	for range 29 - 4 {
		ib.Addr(sz.Undefined())
	}
	ib.Checksum(0)
	_, err = f.WriteAt(ib.Bytes(), iblock)
	require.NoError(t, err)

	db := binary.NewEncoder(sz)
	db.Raw([]byte("EADB"))
	db.U8(0)
	db.U8(0)
	db.Addr(hdr)
	db.Uint(0, 4)
	for i := range 16 {
		if 4+i < len(entries) {
			db.Addr(entries[4+i])
		} else {
			db.Addr(sz.Undefined())
		}
	}
	db.Checksum(0)
	_, err = f.WriteAt(db.Bytes(), dblock)
	require.NoError(t, err)
}

func TestReadExtArray(t *testing.T) {
	f := memFile(t)
	addrs := make([]uint64, 7)
	for i := range addrs {
		addrs[i] = uint64(10000 + 100*i)
	}
	addrs[2] = sz.Undefined()
	writeExtArray(t, f, addrs)

	l := chunked(message.IndexExtArray, 1, 4)
	l.Addr = 0
	ext := Extent{Dims: []uint64{7, 4}, MaxDims: []uint64{message.Unlimited, 4}}
	got, err := ReadChunks(f, l, ext, sz)
	require.NoError(t, err)
	require.Len(t, got, 6)
	assert.Equal(t, chunk.Chunk{Offset: []uint64{3, 0}, Addr: 10300, Size: 16}, got[2])
	assert.Equal(t, []uint64{6, 0}, got[5].Offset)
}

func TestReadExtArraySwizzled(t *testing.T) {
	f := memFile(t)
	writeExtArray(t, f, []uint64{10000, 10100, 10200, 10300, 10400})

	// Element order varies the unlimited dimension slowest.
	l := chunked(message.IndexExtArray, 2, 1)
	l.Addr = 0
	ext := Extent{Dims: []uint64{4, 3}, MaxDims: []uint64{4, message.Unlimited}}
	got, err := ReadChunks(f, l, ext, sz)
	require.NoError(t, err)
	offsets := make([][]uint64, len(got))
	for i, c := range got {
		offsets[i] = c.Offset
	}
	assert.Equal(t, [][]uint64{{0, 0}, {0, 1}, {0, 2}, {2, 0}, {2, 1}}, offsets)
	assert.Equal(t, uint64(10400), got[2].Addr)
}
