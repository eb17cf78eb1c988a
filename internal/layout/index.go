// Package layout reads and writes dataset storage: contiguous and compact
// data, and every chunk index libhdf5 produces.
package layout

import (
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/btree"
	"github.com/tensorleaf/go-hdf5/internal/chunk"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

var (
	ErrCorrupt     = errors.New("layout: corrupt storage")
	ErrUnsupported = errors.New("layout: unsupported")
)

// Extent describes the dataset a chunk index belongs to.
type Extent struct {
	Dims    []uint64
	MaxDims []uint64 // nil means equal to Dims
}

// Bound returns the extent the fixed-size indexes are numbered over:
// maximum dimensions, with unlimited ones replaced by the current size.
func (e Extent) Bound() []uint64 {
	out := append([]uint64(nil), e.Dims...)
	for i := range out {
		if i < len(e.MaxDims) && e.MaxDims[i] != message.Unlimited {
			out[i] = max(out[i], e.MaxDims[i])
		}
	}
	return out
}

func (e Extent) unlimited() []int {
	var out []int
	for i, m := range e.MaxDims {
		if m == message.Unlimited {
			out = append(out, i)
		}
	}
	return out
}

// ReadChunks returns the allocated chunks of a chunked dataset in row-major
// order of their offsets. An index whose address is undefined holds no
// chunks.
func ReadChunks(r io.ReaderAt, l *message.Layout, ext Extent, sz binary.Sizes) ([]chunk.Chunk, error) {
	if l.Class != message.LayoutChunked {
		return nil, fmt.Errorf("%w: %s layout has no chunks", ErrUnsupported, l.Class)
	}
	if len(l.ChunkDims) != len(ext.Dims) {
		return nil, fmt.Errorf("%w: chunk rank %d, dataset rank %d", ErrCorrupt, len(l.ChunkDims), len(ext.Dims))
	}
	for _, c := range l.ChunkDims {
		if c == 0 {
			return nil, fmt.Errorf("%w: zero chunk dimension", ErrCorrupt)
		}
	}
	if sz.IsUndefined(l.Addr) {
		return nil, nil
	}

	var (
		out []chunk.Chunk
		err error
	)
	switch l.Index {
	case message.IndexBTreeV1:
		out, err = btree.ReadChunks(r, l.Addr, len(l.ChunkDims), sz)
	case message.IndexSingle:
		out = []chunk.Chunk{single(l)}
	case message.IndexImplicit:
		out = implicit(l, ext)
	case message.IndexFixedArray:
		out, err = readFixedArray(r, l, ext, sz)
	case message.IndexExtArray:
		out, err = readExtArray(r, l, ext, sz)
	case message.IndexBTreeV2:
		out, err = btree.ReadChunksV2(r, l.Addr, l.ChunkDims, sz)
	default:
		return nil, fmt.Errorf("%w: chunk index %s", ErrUnsupported, l.Index)
	}
	if err != nil {
		return nil, err
	}
	chunk.Sort(out)
	return out, nil
}

func single(l *message.Layout) chunk.Chunk {
	c := chunk.Chunk{
		Offset: make([]uint64, len(l.ChunkDims)),
		Addr:   l.Addr,
		Size:   l.ChunkBytes(),
	}
	if l.Flags&message.LayoutSingleFiltered != 0 {
		c.Size = l.SingleSize
		c.FilterMask = l.SingleMask
	}
	return c
}

// implicit lists every chunk of the dataset. Storage is allocated up front
// for the full bounded extent, in row-major chunk order.
func implicit(l *message.Layout, ext Extent) []chunk.Chunk {
	g := chunk.Grid{Dims: ext.Bound(), ChunkDims: l.ChunkDims}
	cur := chunk.Grid{Dims: ext.Dims, ChunkDims: l.ChunkDims}
	size := l.ChunkBytes()
	out := make([]chunk.Chunk, 0, cur.Len())
	for i := range cur.Len() {
		off := cur.Offset(i)
		idx, _ := g.Index(off)
		out = append(out, chunk.Chunk{Offset: off, Addr: l.Addr + idx*size, Size: size})
	}
	return out
}

// ImplicitAddr returns where the chunk at off lives in an implicit index.
func ImplicitAddr(l *message.Layout, ext Extent, off []uint64) (uint64, bool) {
	g := chunk.Grid{Dims: ext.Bound(), ChunkDims: l.ChunkDims}
	idx, ok := g.Index(off)
	if !ok {
		return 0, false
	}
	return l.Addr + idx*l.ChunkBytes(), true
}

// ImplicitSize returns the storage an implicit index reserves.
func ImplicitSize(l *message.Layout, ext Extent) uint64 {
	g := chunk.Grid{Dims: ext.Bound(), ChunkDims: l.ChunkDims}
	return g.Len() * l.ChunkBytes()
}

// filteredSizeLen is the width libhdf5 gives the chunk size field of
// filtered array index entries: one byte more than needed for a full chunk.
func filteredSizeLen(chunkBytes uint64) int {
	log2 := 0
	if chunkBytes > 0 {
		log2 = bits.Len64(chunkBytes) - 1
	}
	return min(8, 1+(log2+8)/8)
}

// entry is one element of a fixed or extensible array chunk index.
type entry struct {
	addr uint64
	size uint64
	mask uint32
}

type entryCodec struct {
	filtered bool
	sizeLen  int
	sz       binary.Sizes
}

func newEntryCodec(filtered bool, chunkBytes uint64, sz binary.Sizes) entryCodec {
	c := entryCodec{filtered: filtered, sz: sz}
	if filtered {
		c.sizeLen = filteredSizeLen(chunkBytes)
	}
	return c
}

func (c entryCodec) size() int {
	if c.filtered {
		return c.sz.Offset + c.sizeLen + 4
	}
	return c.sz.Offset
}

func (c entryCodec) clientID() uint8 {
	if c.filtered {
		return 1
	}
	return 0
}

func (c entryCodec) decode(d *binary.Decoder) entry {
	e := entry{addr: d.Addr()}
	if c.filtered {
		e.size = d.Uint(c.sizeLen)
		e.mask = d.U32()
	}
	return e
}

func (c entryCodec) encode(e *binary.Encoder, v entry) {
	e.Addr(v.addr)
	if c.filtered {
		e.Uint(v.size, c.sizeLen)
		e.U32(v.mask)
	}
}
