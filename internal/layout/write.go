package layout

import (
	"fmt"
	"io"
	"slices"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/btree"
	"github.com/tensorleaf/go-hdf5/internal/chunk"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

// Allocator hands out file space.
type Allocator = btree.Allocator

// ReadWriterAt is the random access a chunk index writer needs.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// Writable reports whether WriteIndex can maintain index type t.
func Writable(t message.IndexType) bool {
	switch t {
	case message.IndexBTreeV1, message.IndexSingle, message.IndexImplicit, message.IndexFixedArray:
		return true
	}
	return false
}

// WriteIndex stores the complete chunk table of a dataset and updates the
// address fields of l. The caller rewrites the layout message afterwards.
func WriteIndex(rw ReadWriterAt, a Allocator, l *message.Layout, ext Extent, chunks []chunk.Chunk, filtered bool, sz binary.Sizes) error {
	chunks = slices.Clone(chunks)
	chunk.Sort(chunks)

	switch l.Index {
	case message.IndexBTreeV1:
		if len(chunks) == 0 {
			l.Addr = sz.Undefined()
			return nil
		}
		root, err := btree.WriteChunks(rw, a, chunks, l.ChunkDims, btree.DefaultChunkK, sz)
		if err != nil {
			return err
		}
		l.Addr = root
	case message.IndexSingle:
		g := chunk.Grid{Dims: ext.Bound(), ChunkDims: l.ChunkDims}
		if g.Len() != 1 {
			return fmt.Errorf("%w: single chunk index over %d chunks", ErrUnsupported, g.Len())
		}
		if len(chunks) == 0 {
			l.Addr = sz.Undefined()
			return nil
		}
		if len(chunks) > 1 {
			return fmt.Errorf("%w: %d chunks in a single chunk index", ErrCorrupt, len(chunks))
		}
		c := chunks[0]
		l.Addr = c.Addr
		if filtered {
			l.Flags |= message.LayoutSingleFiltered
			l.SingleSize = c.Size
			l.SingleMask = c.FilterMask
		}
	case message.IndexImplicit:
		if filtered {
			return fmt.Errorf("%w: implicit index with filters", ErrUnsupported)
		}
		if sz.IsUndefined(l.Addr) {
			return fmt.Errorf("%w: implicit index storage not allocated", ErrCorrupt)
		}
		for _, c := range chunks {
			if want, ok := ImplicitAddr(l, ext, c.Offset); !ok || want != c.Addr {
				return fmt.Errorf("%w: chunk %v at %#x outside implicit storage", ErrCorrupt, c.Offset, c.Addr)
			}
		}
	case message.IndexFixedArray:
		return writeFixedArray(rw, a, l, ext, chunks, filtered, sz)
	default:
		return fmt.Errorf("%w: writing %s chunk index", ErrUnsupported, l.Index)
	}
	return nil
}
