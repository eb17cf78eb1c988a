package layout

import (
	"fmt"
	"io"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/chunk"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

// DefaultPageBits is libhdf5's default fixed array page size exponent.
const DefaultPageBits = 10

type faHeader struct {
	clientID  uint8
	entrySize int
	pageBits  uint8
	nelmts    uint64
	dblock    uint64
}

func faHeaderSize(sz binary.Sizes) int { return 4 + 4 + sz.Length + sz.Offset + 4 }

func readFAHeader(r io.ReaderAt, addr uint64, sz binary.Sizes) (*faHeader, error) {
	buf, err := binary.ReadAt(r, addr, faHeaderSize(sz))
	if err != nil {
		return nil, fmt.Errorf("fixed array header at %#x: %w", addr, err)
	}
	d := binary.NewDecoder(buf, sz)
	if err := d.Signature("FAHD"); err != nil {
		return nil, err
	}
	if v := d.U8(); v != 0 {
		return nil, fmt.Errorf("%w: fixed array version %d", ErrUnsupported, v)
	}
	h := &faHeader{clientID: d.U8(), entrySize: int(d.U8()), pageBits: d.U8()}
	h.nelmts = d.Length()
	h.dblock = d.Addr()
	if err := d.VerifyChecksum(0); err != nil {
		return nil, fmt.Errorf("fixed array header at %#x: %w", addr, err)
	}
	return h, nil
}

// faGeometry is the shape of a fixed array data block.
type faGeometry struct {
	nelmts    uint64
	pageElems uint64 // zero when not paged
	npages    uint64
	entrySize int
	sz        binary.Sizes
}

func newFAGeometry(nelmts uint64, pageBits uint8, entrySize int, sz binary.Sizes) faGeometry {
	g := faGeometry{nelmts: nelmts, entrySize: entrySize, sz: sz}
	if pageBits < 64 && nelmts > 1<<pageBits {
		g.pageElems = 1 << pageBits
		g.npages = (nelmts + g.pageElems - 1) / g.pageElems
	}
	return g
}

func (g faGeometry) bitmapLen() int { return int((g.npages + 7) / 8) }

// prefixSize covers signature through the page bitmap plus its checksum when
// paged, or the whole block when not.
func (g faGeometry) prefixSize() int {
	n := 4 + 1 + 1 + g.sz.Offset
	if g.npages > 0 {
		return n + g.bitmapLen() + 4
	}
	return n + int(g.nelmts)*g.entrySize + 4
}

func (g faGeometry) pageSize() int { return int(g.pageElems)*g.entrySize + 4 }

func (g faGeometry) blockSize() int {
	if g.npages == 0 {
		return g.prefixSize()
	}
	return g.prefixSize() + int(g.npages)*g.pageSize()
}

func (g faGeometry) pageLen(p uint64) uint64 {
	return min(g.pageElems, g.nelmts-p*g.pageElems)
}

func readFixedArray(r io.ReaderAt, l *message.Layout, ext Extent, sz binary.Sizes) ([]chunk.Chunk, error) {
	h, err := readFAHeader(r, l.Addr, sz)
	if err != nil {
		return nil, err
	}
	codec := newEntryCodec(h.clientID == 1, l.ChunkBytes(), sz)
	if h.clientID > 1 || codec.size() != h.entrySize {
		return nil, fmt.Errorf("%w: fixed array client %d with entry size %d", ErrCorrupt, h.clientID, h.entrySize)
	}
	if sz.IsUndefined(h.dblock) {
		return nil, nil
	}

	geo := newFAGeometry(h.nelmts, h.pageBits, h.entrySize, sz)
	entries, err := readFADataBlock(r, h.dblock, l.Addr, geo, codec)
	if err != nil {
		return nil, fmt.Errorf("fixed array data block at %#x: %w", h.dblock, err)
	}

	g := chunk.Grid{Dims: ext.Bound(), ChunkDims: l.ChunkDims}
	if g.Len() != h.nelmts {
		return nil, fmt.Errorf("%w: fixed array holds %d entries for %d chunks", ErrCorrupt, h.nelmts, g.Len())
	}
	var out []chunk.Chunk
	for i, e := range entries {
		if sz.IsUndefined(e.addr) {
			continue
		}
		c := chunk.Chunk{Offset: g.Offset(uint64(i)), Addr: e.addr, Size: e.size, FilterMask: e.mask}
		if !codec.filtered {
			c.Size = l.ChunkBytes()
		}
		out = append(out, c)
	}
	return out, nil
}

func readFADataBlock(r io.ReaderAt, addr, header uint64, geo faGeometry, codec entryCodec) ([]entry, error) {
	sz := geo.sz
	buf, err := binary.ReadAt(r, addr, geo.prefixSize())
	if err != nil {
		return nil, err
	}
	d := binary.NewDecoder(buf, sz)
	if err := d.Signature("FADB"); err != nil {
		return nil, err
	}
	d.Skip(2)
	if got := d.Addr(); got != header {
		return nil, fmt.Errorf("%w: header address %#x, want %#x", ErrCorrupt, got, header)
	}

	undefined := entry{addr: sz.Undefined()}
	out := make([]entry, 0, geo.nelmts)
	if geo.npages == 0 {
		for range geo.nelmts {
			out = append(out, codec.decode(d))
		}
		if err := d.VerifyChecksum(0); err != nil {
			return nil, err
		}
		return out, nil
	}

	bitmap := d.Bytes(geo.bitmapLen())
	if err := d.VerifyChecksum(0); err != nil {
		return nil, err
	}
	pageAddr := addr + uint64(geo.prefixSize())
	for p := range geo.npages {
		n := geo.pageLen(p)
		if bitmap[p/8]&(0x80>>(p%8)) == 0 {
			for range n {
				out = append(out, undefined)
			}
		} else {
			page, err := binary.ReadAt(r, pageAddr, int(n)*geo.entrySize+4)
			if err != nil {
				return nil, err
			}
			pd := binary.NewDecoder(page, sz)
			for range n {
				out = append(out, codec.decode(pd))
			}
			if err := pd.VerifyChecksum(0); err != nil {
				return nil, fmt.Errorf("page %d: %w", p, err)
			}
		}
		pageAddr += uint64(geo.pageSize())
	}
	return out, nil
}

// writeFixedArray stores chunks in a fixed array index, allocating the
// header and data block on first use and rewriting them in place after.
func writeFixedArray(rw ReadWriterAt, a Allocator, l *message.Layout, ext Extent, chunks []chunk.Chunk, filtered bool, sz binary.Sizes) error {
	g := chunk.Grid{Dims: ext.Bound(), ChunkDims: l.ChunkDims}
	codec := newEntryCodec(filtered, l.ChunkBytes(), sz)
	geo := newFAGeometry(g.Len(), l.PageBits, codec.size(), sz)

	var dblock uint64
	if sz.IsUndefined(l.Addr) {
		l.Addr = a.Alloc(uint64(faHeaderSize(sz)))
		dblock = a.Alloc(uint64(geo.blockSize()))
	} else {
		h, err := readFAHeader(rw, l.Addr, sz)
		if err != nil {
			return err
		}
		if h.nelmts != geo.nelmts || h.entrySize != geo.entrySize {
			return fmt.Errorf("%w: fixed array shape changed", ErrCorrupt)
		}
		dblock = h.dblock
	}

	entries := make([]entry, geo.nelmts)
	for i := range entries {
		entries[i].addr = sz.Undefined()
	}
	for _, c := range chunks {
		idx, ok := g.Index(c.Offset)
		if !ok || !g.Aligned(c.Offset) {
			return fmt.Errorf("%w: chunk offset %v", ErrCorrupt, c.Offset)
		}
		entries[idx] = entry{addr: c.Addr, size: c.Size, mask: c.FilterMask}
	}

	e := binary.NewEncoder(sz)
	e.Raw([]byte("FAHD"))
	e.U8(0)
	e.U8(codec.clientID())
	e.U8(uint8(geo.entrySize))
	e.U8(l.PageBits)
	e.Length(geo.nelmts)
	e.Addr(dblock)
	e.Checksum(0)
	if _, err := rw.WriteAt(e.Bytes(), int64(l.Addr)); err != nil {
		return fmt.Errorf("write fixed array header: %w", err)
	}

	e = binary.NewEncoder(sz)
	e.Raw([]byte("FADB"))
	e.U8(0)
	e.U8(codec.clientID())
	e.Addr(l.Addr)
	if geo.npages == 0 {
		for _, v := range entries {
			codec.encode(e, v)
		}
		e.Checksum(0)
	} else {
		bitmap := make([]byte, geo.bitmapLen())
		for p := range geo.npages {
			bitmap[p/8] |= 0x80 >> (p % 8)
		}
		e.Raw(bitmap)
		e.Checksum(0)
		for p := range geo.npages {
			start := e.Len()
			first := p * geo.pageElems
			for _, v := range entries[first : first+geo.pageLen(p)] {
				codec.encode(e, v)
			}
			e.Checksum(start)
			e.Zero(geo.pageSize() - (e.Len() - start))
		}
	}
	if _, err := rw.WriteAt(e.Bytes(), int64(dblock)); err != nil {
		return fmt.Errorf("write fixed array data block: %w", err)
	}
	return nil
}
