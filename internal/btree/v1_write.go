package btree

import (
	"fmt"
	"io"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/chunk"
)

// DefaultChunkK is libhdf5's default "1/2 rank" of chunk B-tree nodes.
const DefaultChunkK = 32

// Allocator hands out file space for new structures.
type Allocator interface {
	Alloc(size uint64) uint64
}

type v1Entry struct {
	key   []byte
	right []byte
	addr  uint64
}

// WriteChunks builds a v1 chunk B-tree over chunks, which must be sorted
// row-major and non-empty, and returns the root address. Every node is
// allocated at full 2K capacity as libhdf5 does.
func WriteChunks(w io.WriterAt, a Allocator, chunks []chunk.Chunk, chunkDims []uint64, k int, sz binary.Sizes) (uint64, error) {
	if len(chunks) == 0 {
		return 0, fmt.Errorf("btree: no chunks to index")
	}
	rank := len(chunkDims)
	keySize := ChunkKeySize(rank)
	nodeSize := v1HeaderSize(sz) + (2*k+1)*keySize + 2*k*sz.Offset

	level := make([]v1Entry, len(chunks))
	for i, c := range chunks {
		if len(c.Offset) != rank {
			return 0, fmt.Errorf("btree: chunk %d has rank %d, want %d", i, len(c.Offset), rank)
		}
		right := make([]uint64, rank)
		for d := range right {
			right[d] = c.Offset[d] + chunkDims[d]
		}
		level[i] = v1Entry{
			key:   encodeChunkKey(uint32(c.Size), c.FilterMask, c.Offset, sz),
			right: encodeChunkKey(0, 0, right, sz),
			addr:  c.Addr,
		}
	}

	for depth := 0; ; depth++ {
		groups := split(len(level), 2*k)
		next := make([]v1Entry, 0, len(groups))
		addrs := make([]uint64, len(groups))
		for i := range groups {
			addrs[i] = a.Alloc(uint64(nodeSize))
		}
		start := 0
		for i, n := range groups {
			members := level[start : start+n]
			start += n
			left, right := sz.Undefined(), sz.Undefined()
			if i > 0 {
				left = addrs[i-1]
			}
			if i < len(groups)-1 {
				right = addrs[i+1]
			}
			buf := encodeV1Node(members, depth, left, right, nodeSize, sz)
			if _, err := w.WriteAt(buf, int64(addrs[i])); err != nil {
				return 0, fmt.Errorf("btree: write node: %w", err)
			}
			next = append(next, v1Entry{key: members[0].key, right: members[n-1].right, addr: addrs[i]})
		}
		if len(next) == 1 {
			return next[0].addr, nil
		}
		level = next
	}
}

// split divides n items into the fewest groups of at most limit, evenly sized.
func split(n, limit int) []int {
	groups := (n + limit - 1) / limit
	out := make([]int, groups)
	for i := range out {
		out[i] = n / groups
		if i < n%groups {
			out[i]++
		}
	}
	return out
}

func encodeChunkKey(size, mask uint32, off []uint64, sz binary.Sizes) []byte {
	e := binary.NewEncoder(sz)
	e.U32(size)
	e.U32(mask)
	for _, v := range off {
		e.U64(v)
	}
	e.U64(0) // element-size dimension
	return e.Bytes()
}

func encodeV1Node(members []v1Entry, level int, left, right uint64, nodeSize int, sz binary.Sizes) []byte {
	e := binary.NewEncoder(sz)
	e.Raw([]byte("TREE"))
	e.U8(NodeChunk)
	e.U8(uint8(level))
	e.U16(uint16(len(members)))
	e.Addr(left)
	e.Addr(right)
	for _, m := range members {
		e.Raw(m.key)
		e.Addr(m.addr)
	}
	e.Raw(members[len(members)-1].right)
	e.Zero(nodeSize - e.Len())
	return e.Bytes()
}
