package layout

import (
	"fmt"
	"io"
	"math/bits"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/chunk"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

type eaHeader struct {
	clientID    uint8
	entrySize   int
	maxBits     uint8
	indexElems  uint64
	minElems    uint64
	minPointers uint64
	pageBits    uint8
	maxIndexSet uint64
	iblock      uint64
}

// superBlock is the geometry of one extensible array super block.
type superBlock struct {
	ndblks    uint64
	dblkElems uint64
	startIdx  uint64
	startDblk uint64
}

func readEAHeader(r io.ReaderAt, addr uint64, sz binary.Sizes) (*eaHeader, error) {
	buf, err := binary.ReadAt(r, addr, 4+2+6+6*sz.Length+sz.Offset+4)
	if err != nil {
		return nil, fmt.Errorf("extensible array header at %#x: %w", addr, err)
	}
	d := binary.NewDecoder(buf, sz)
	if err := d.Signature("EAHD"); err != nil {
		return nil, err
	}
	if v := d.U8(); v != 0 {
		return nil, fmt.Errorf("%w: extensible array version %d", ErrUnsupported, v)
	}
	h := &eaHeader{
		clientID:    d.U8(),
		entrySize:   int(d.U8()),
		maxBits:     d.U8(),
		indexElems:  uint64(d.U8()),
		minElems:    uint64(d.U8()),
		minPointers: uint64(d.U8()),
		pageBits:    d.U8(),
	}
	d.Skip(4 * sz.Length) // super and data block statistics
	h.maxIndexSet = d.Length()
	d.Length() // elements realized
	h.iblock = d.Addr()
	if err := d.VerifyChecksum(0); err != nil {
		return nil, fmt.Errorf("extensible array header at %#x: %w", addr, err)
	}
	if h.minElems == 0 || h.minElems&(h.minElems-1) != 0 || h.minPointers == 0 || h.minPointers&(h.minPointers-1) != 0 {
		return nil, fmt.Errorf("%w: extensible array block minimums %d/%d", ErrCorrupt, h.minElems, h.minPointers)
	}
	if int(h.maxBits) < bits.TrailingZeros64(h.minElems) || h.maxBits > 64 {
		return nil, fmt.Errorf("%w: extensible array max bits %d", ErrCorrupt, h.maxBits)
	}
	return h, nil
}

func (h *eaHeader) superBlocks() []superBlock {
	n := 1 + int(h.maxBits) - bits.TrailingZeros64(h.minElems)
	out := make([]superBlock, n)
	var idx, dblk uint64
	for u := range out {
		out[u] = superBlock{
			ndblks:    1 << (u / 2),
			dblkElems: (1 << ((u + 1) / 2)) * h.minElems,
			startIdx:  idx,
			startDblk: dblk,
		}
		idx += out[u].ndblks * out[u].dblkElems
		dblk += out[u].ndblks
	}
	return out
}

func (h *eaHeader) offsetSize() int { return (int(h.maxBits) + 7) / 8 }

func readExtArray(r io.ReaderAt, l *message.Layout, ext Extent, sz binary.Sizes) ([]chunk.Chunk, error) {
	unlim := ext.unlimited()
	if len(unlim) != 1 {
		return nil, fmt.Errorf("%w: extensible array index with %d unlimited dimensions", ErrCorrupt, len(unlim))
	}
	h, err := readEAHeader(r, l.Addr, sz)
	if err != nil {
		return nil, err
	}
	codec := newEntryCodec(h.clientID == 1, l.ChunkBytes(), sz)
	if h.clientID > 1 || codec.size() != h.entrySize {
		return nil, fmt.Errorf("%w: extensible array client %d with entry size %d", ErrCorrupt, h.clientID, h.entrySize)
	}
	if sz.IsUndefined(h.iblock) {
		return nil, nil
	}

	g := chunk.Grid{Dims: ext.Bound(), ChunkDims: l.ChunkDims}.Swizzle(unlim[0])
	var out []chunk.Chunk
	emit := func(idx uint64, e entry) {
		if sz.IsUndefined(e.addr) || idx >= g.Len() {
			return
		}
		c := chunk.Chunk{
			Offset:     chunk.Unswizzle(g.Offset(idx), unlim[0]),
			Addr:       e.addr,
			Size:       e.size,
			FilterMask: e.mask,
		}
		if !codec.filtered {
			c.Size = l.ChunkBytes()
		}
		out = append(out, c)
	}
	if err := h.walk(r, l.Addr, codec, emit, sz); err != nil {
		return nil, fmt.Errorf("extensible array at %#x: %w", l.Addr, err)
	}
	return out, nil
}

// walk visits every element stored in the array with its index.
func (h *eaHeader) walk(r io.ReaderAt, hdrAddr uint64, codec entryCodec, fn func(uint64, entry), sz binary.Sizes) error {
	sblks := h.superBlocks()
	iblockSblks := min(2*bits.TrailingZeros64(h.minPointers), len(sblks))
	ndblkAddrs := int(2 * (h.minPointers - 1))
	nsblkAddrs := len(sblks) - iblockSblks

	size := 4 + 2 + sz.Offset + int(h.indexElems)*h.entrySize + (ndblkAddrs+nsblkAddrs)*sz.Offset + 4
	buf, err := binary.ReadAt(r, h.iblock, size)
	if err != nil {
		return err
	}
	d := binary.NewDecoder(buf, sz)
	if err := d.Signature("EAIB"); err != nil {
		return err
	}
	d.Skip(2)
	if got := d.Addr(); got != hdrAddr {
		return fmt.Errorf("%w: index block header address %#x", ErrCorrupt, got)
	}
	for i := range h.indexElems {
		fn(i, codec.decode(d))
	}
	dblkAddrs := make([]uint64, ndblkAddrs)
	for i := range dblkAddrs {
		dblkAddrs[i] = d.Addr()
	}
	sblkAddrs := make([]uint64, nsblkAddrs)
	for i := range sblkAddrs {
		sblkAddrs[i] = d.Addr()
	}
	if err := d.VerifyChecksum(0); err != nil {
		return err
	}

	for s, info := range sblks {
		if h.indexElems+info.startIdx >= h.maxIndexSet {
			break
		}
		var addrs []uint64
		if s < iblockSblks {
			addrs = dblkAddrs[info.startDblk : info.startDblk+info.ndblks]
		} else {
			sa := sblkAddrs[s-iblockSblks]
			if sz.IsUndefined(sa) {
				continue
			}
			if addrs, err = h.readSuperBlock(r, sa, hdrAddr, info, sz); err != nil {
				return err
			}
		}
		for k, da := range addrs {
			if sz.IsUndefined(da) {
				continue
			}
			base := info.startIdx + uint64(k)*info.dblkElems
			if err := h.readDataBlock(r, da, hdrAddr, base, info.dblkElems, codec, fn, sz); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *eaHeader) paged(elems uint64) bool {
	return h.pageBits < 64 && elems > 1<<h.pageBits
}

func (h *eaHeader) readSuperBlock(r io.ReaderAt, addr, hdrAddr uint64, info superBlock, sz binary.Sizes) ([]uint64, error) {
	if h.paged(info.dblkElems) {
		return nil, fmt.Errorf("%w: paged extensible array data blocks", ErrUnsupported)
	}
	buf, err := binary.ReadAt(r, addr, 4+2+sz.Offset+h.offsetSize()+int(info.ndblks)*sz.Offset+4)
	if err != nil {
		return nil, err
	}
	d := binary.NewDecoder(buf, sz)
	if err := d.Signature("EASB"); err != nil {
		return nil, err
	}
	d.Skip(2)
	if got := d.Addr(); got != hdrAddr {
		return nil, fmt.Errorf("%w: super block header address %#x", ErrCorrupt, got)
	}
	d.Uint(h.offsetSize())
	out := make([]uint64, info.ndblks)
	for i := range out {
		out[i] = d.Addr()
	}
	return out, d.VerifyChecksum(0)
}

func (h *eaHeader) readDataBlock(r io.ReaderAt, addr, hdrAddr, base, n uint64, codec entryCodec, fn func(uint64, entry), sz binary.Sizes) error {
	if h.paged(n) {
		return fmt.Errorf("%w: paged extensible array data blocks", ErrUnsupported)
	}
	buf, err := binary.ReadAt(r, addr, 4+2+sz.Offset+h.offsetSize()+int(n)*h.entrySize+4)
	if err != nil {
		return err
	}
	d := binary.NewDecoder(buf, sz)
	if err := d.Signature("EADB"); err != nil {
		return err
	}
	d.Skip(2)
	if got := d.Addr(); got != hdrAddr {
		return fmt.Errorf("%w: data block header address %#x", ErrCorrupt, got)
	}
	d.Uint(h.offsetSize())
	entries := make([]entry, n)
	for i := range entries {
		entries[i] = codec.decode(d)
	}
	if err := d.VerifyChecksum(0); err != nil {
		return err
	}
	for i, e := range entries {
		fn(h.indexElems+base+uint64(i), e)
	}
	return nil
}
