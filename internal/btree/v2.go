package btree

import (
	"fmt"
	"io"
	"math/bits"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/chunk"
)

// Record types of version 2 B-trees that index chunks.
const (
	RecordChunk         = 10
	RecordFilteredChunk = 11
)

// v2Prefix is signature, version, type and checksum: the fixed cost of a node.
const v2Prefix = 10

// V2Header is a decoded BTHD block.
type V2Header struct {
	Type       uint8
	NodeSize   uint32
	RecordSize uint16
	Depth      uint16
	Root       uint64
	RootCount  uint16
	Total      uint64

	// Per-depth node geometry, computed the way libhdf5 does.
	maxRecSize int
	cumSize    []int
}

// ReadV2Header decodes the v2 B-tree header at addr.
func ReadV2Header(r io.ReaderAt, addr uint64, sz binary.Sizes) (*V2Header, error) {
	n := 4 + 1 + 1 + 4 + 2 + 2 + 1 + 1 + sz.Offset + 2 + sz.Length + 4
	buf, err := binary.ReadAt(r, addr, n)
	if err != nil {
		return nil, fmt.Errorf("btree v2 header at %#x: %w", addr, err)
	}
	d := binary.NewDecoder(buf, sz)
	if err := d.Signature("BTHD"); err != nil {
		return nil, err
	}
	if v := d.U8(); v != 0 {
		return nil, fmt.Errorf("btree v2 header at %#x: version %d", addr, v)
	}
	h := &V2Header{Type: d.U8(), NodeSize: d.U32(), RecordSize: d.U16(), Depth: d.U16()}
	d.Skip(2) // split and merge percent
	h.Root = d.Addr()
	h.RootCount = d.U16()
	h.Total = d.Length()
	if err := d.VerifyChecksum(0); err != nil {
		return nil, fmt.Errorf("btree v2 header at %#x: %w", addr, err)
	}
	if h.RecordSize == 0 || int(h.NodeSize) <= v2Prefix {
		return nil, fmt.Errorf("%w: node size %d, record size %d", ErrCorrupt, h.NodeSize, h.RecordSize)
	}
	h.geometry(sz)
	return h, nil
}

// encSize mirrors H5VM_limit_enc_size: bytes needed to hold n.
func encSize(n uint64) int {
	if n == 0 {
		return 1
	}
	return (bits.Len64(n)-1)/8 + 1
}

func (h *V2Header) geometry(sz binary.Sizes) {
	maxLeaf := (int(h.NodeSize) - v2Prefix) / int(h.RecordSize)
	h.maxRecSize = encSize(uint64(maxLeaf))
	cum := []uint64{uint64(maxLeaf)}
	h.cumSize = []int{0}
	for d := 1; d <= int(h.Depth); d++ {
		ptr := h.pointerSize(d, sz)
		maxRec := (int(h.NodeSize) - (v2Prefix + ptr)) / (int(h.RecordSize) + ptr)
		c := uint64(maxRec+1)*cum[d-1] + uint64(maxRec)
		cum = append(cum, c)
		h.cumSize = append(h.cumSize, encSize(c))
	}
}

func (h *V2Header) pointerSize(depth int, sz binary.Sizes) int {
	n := sz.Offset + h.maxRecSize
	if depth > 1 {
		n += h.cumSize[depth-1]
	}
	return n
}

// ReadChunksV2 returns every chunk indexed by the v2 B-tree at addr.
// Records store chunk coordinates, so chunkDims scales them back to
// element offsets.
func ReadChunksV2(r io.ReaderAt, addr uint64, chunkDims []uint64, sz binary.Sizes) ([]chunk.Chunk, error) {
	h, err := ReadV2Header(r, addr, sz)
	if err != nil {
		return nil, err
	}
	if h.Type != RecordChunk && h.Type != RecordFilteredChunk {
		return nil, fmt.Errorf("%w: record type %d is not a chunk record", ErrCorrupt, h.Type)
	}
	rank := len(chunkDims)
	sizeWidth := 0
	if h.Type == RecordFilteredChunk {
		sizeWidth = int(h.RecordSize) - sz.Offset - 4 - 8*rank
		if sizeWidth < 1 || sizeWidth > 8 {
			return nil, fmt.Errorf("%w: record size %d for rank %d", ErrCorrupt, h.RecordSize, rank)
		}
	} else if int(h.RecordSize) != sz.Offset+8*rank {
		return nil, fmt.Errorf("%w: record size %d for rank %d", ErrCorrupt, h.RecordSize, rank)
	}

	var out []chunk.Chunk
	decode := func(rec []byte) {
		d := binary.NewDecoder(rec, sz)
		c := chunk.Chunk{Addr: d.Addr()}
		if sizeWidth > 0 {
			c.Size = d.Uint(sizeWidth)
			c.FilterMask = d.U32()
		}
		c.Offset = make([]uint64, rank)
		for i := range c.Offset {
			c.Offset[i] = d.U64() * chunkDims[i]
		}
		out = append(out, c)
	}
	if h.Total == 0 || sz.IsUndefined(h.Root) {
		return nil, nil
	}
	if err := h.walk(r, h.Root, int(h.RootCount), int(h.Depth), sz, decode); err != nil {
		return nil, fmt.Errorf("btree v2 at %#x: %w", addr, err)
	}
	return out, nil
}

func (h *V2Header) walk(r io.ReaderAt, addr uint64, nrec, depth int, sz binary.Sizes, fn func([]byte)) error {
	rs := int(h.RecordSize)
	if depth == 0 {
		buf, err := binary.ReadAt(r, addr, 6+nrec*rs+4)
		if err != nil {
			return err
		}
		d := binary.NewDecoder(buf, sz)
		if err := d.Signature("BTLF"); err != nil {
			return err
		}
		d.Skip(2)
		recs := d.Bytes(nrec * rs)
		if err := d.VerifyChecksum(0); err != nil {
			return err
		}
		for i := range nrec {
			fn(recs[i*rs : (i+1)*rs])
		}
		return nil
	}

	ptr := h.pointerSize(depth, sz)
	buf, err := binary.ReadAt(r, addr, 6+nrec*rs+(nrec+1)*ptr+4)
	if err != nil {
		return err
	}
	d := binary.NewDecoder(buf, sz)
	if err := d.Signature("BTIN"); err != nil {
		return err
	}
	d.Skip(2)
	recs := d.Bytes(nrec * rs)
	type child struct {
		addr uint64
		nrec int
	}
	children := make([]child, nrec+1)
	for i := range children {
		children[i].addr = d.Addr()
		children[i].nrec = int(d.Uint(h.maxRecSize))
		if depth > 1 {
			d.Uint(h.cumSize[depth-1])
		}
	}
	if err := d.VerifyChecksum(0); err != nil {
		return err
	}

	// In-order: child 0, record 0, child 1, record 1, ...
	for i, c := range children {
		if err := h.walk(r, c.addr, c.nrec, depth-1, sz, fn); err != nil {
			return err
		}
		if i < nrec {
			fn(recs[i*rs : (i+1)*rs])
		}
	}
	return nil
}
