package message

import (
	"fmt"
	"math/bits"

	"github.com/tensorleaf/go-hdf5/internal/binary"
)

// LayoutClass is the storage class of a dataset.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
	LayoutVirtual    LayoutClass = 3
)

func (c LayoutClass) String() string {
	switch c {
	case LayoutCompact:
		return "compact"
	case LayoutContiguous:
		return "contiguous"
	case LayoutChunked:
		return "chunked"
	case LayoutVirtual:
		return "virtual"
	}
	return fmt.Sprintf("layout(%d)", uint8(c))
}

// IndexType identifies how chunk addresses are found. Values 1-5 are the
// numbers stored in a version 4 layout message; IndexBTreeV1 is implied by
// layout versions 1-3.
type IndexType uint8

const (
	IndexBTreeV1    IndexType = 0
	IndexSingle     IndexType = 1
	IndexImplicit   IndexType = 2
	IndexFixedArray IndexType = 3
	IndexExtArray   IndexType = 4
	IndexBTreeV2    IndexType = 5
)

func (t IndexType) String() string {
	switch t {
	case IndexBTreeV1:
		return "btree-v1"
	case IndexSingle:
		return "single"
	case IndexImplicit:
		return "implicit"
	case IndexFixedArray:
		return "fixed-array"
	case IndexExtArray:
		return "extensible-array"
	case IndexBTreeV2:
		return "btree-v2"
	}
	return fmt.Sprintf("index(%d)", uint8(t))
}

// Layout flags of version 4 chunked layouts.
const (
	LayoutDontFilterPartial uint8 = 0x01
	LayoutSingleFiltered    uint8 = 0x02
)

// ExtArrayParams are the creation parameters of an extensible array index.
type ExtArrayParams struct {
	MaxBits     uint8
	IndexElems  uint8
	MinPointers uint8
	MinElems    uint8
	PageBits    uint8
}

// BTreeV2Params are the creation parameters of a v2 B-tree index.
type BTreeV2Params struct {
	NodeSize     uint32
	SplitPercent uint8
	MergePercent uint8
}

// Layout is a data layout message.
type Layout struct {
	Version uint8
	Class   LayoutClass

	// Addr is the contiguous data address, or the chunk index address.
	Addr uint64
	// Size is the contiguous storage size.
	Size    uint64
	Compact []byte

	ChunkDims []uint64 // chunk extent per dataset dimension
	ElemSize  uint64
	Flags     uint8
	Index     IndexType
	PageBits  uint8 // fixed array
	ExtArray  ExtArrayParams
	BTreeV2   BTreeV2Params

	// Single chunk index with filters.
	SingleSize uint64
	SingleMask uint32
}

func (*Layout) Type() Type { return TypeLayout }

// ChunkBytes returns the uncompressed size of one chunk.
func (l *Layout) ChunkBytes() uint64 {
	n := l.ElemSize
	for _, d := range l.ChunkDims {
		n *= d
	}
	return n
}

func decodeLayout(data []byte, sz binary.Sizes) (*Layout, error) {
	d := binary.NewDecoder(data, sz)
	l := &Layout{Version: d.U8()}
	switch l.Version {
	case 1, 2:
		return decodeLayoutV1(d, l)
	case 3, 4:
	default:
		return nil, fmt.Errorf("%w: layout version %d", ErrUnsupported, l.Version)
	}

	l.Class = LayoutClass(d.U8())
	switch l.Class {
	case LayoutCompact:
		n := int(d.U16())
		l.Compact = d.Bytes(n)
	case LayoutContiguous:
		l.Addr = d.Addr()
		l.Size = d.Length()
	case LayoutChunked:
		if l.Version == 3 {
			ndims := int(d.U8())
			l.Addr = d.Addr()
			dims := make([]uint64, ndims)
			for i := range dims {
				dims[i] = uint64(d.U32())
			}
			if err := l.splitChunkDims(dims); err != nil {
				return nil, err
			}
			break
		}
		if err := decodeChunkedV4(d, l); err != nil {
			return nil, err
		}
	case LayoutVirtual:
		return nil, fmt.Errorf("%w: virtual layout", ErrUnsupported)
	default:
		return nil, fmt.Errorf("%w: layout class %d", ErrMalformed, l.Class)
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

func decodeLayoutV1(d *binary.Decoder, l *Layout) (*Layout, error) {
	ndims := int(d.U8())
	l.Class = LayoutClass(d.U8())
	d.Skip(5)
	if l.Class != LayoutCompact {
		l.Addr = d.Addr()
	}
	dims := make([]uint64, ndims)
	for i := range dims {
		dims[i] = uint64(d.U32())
	}
	switch l.Class {
	case LayoutChunked:
		if err := l.splitChunkDims(dims); err != nil {
			return nil, err
		}
	case LayoutContiguous:
		l.Size = 1
		for _, v := range dims {
			l.Size *= v
		}
	case LayoutCompact:
		n := int(d.U32())
		l.Compact = d.Bytes(n)
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

func decodeChunkedV4(d *binary.Decoder, l *Layout) error {
	l.Flags = d.U8()
	ndims := int(d.U8())
	width := int(d.U8())
	if d.Err() == nil && (width < 1 || width > 8) {
		return fmt.Errorf("%w: chunk dimension width %d", ErrMalformed, width)
	}
	dims := make([]uint64, ndims)
	for i := range dims {
		dims[i] = d.Uint(width)
	}
	if err := l.splitChunkDims(dims); err != nil {
		return err
	}

	l.Index = IndexType(d.U8())
	switch l.Index {
	case IndexSingle:
		if l.Flags&LayoutSingleFiltered != 0 {
			l.SingleSize = d.Length()
			l.SingleMask = d.U32()
		}
	case IndexImplicit:
	case IndexFixedArray:
		l.PageBits = d.U8()
	case IndexExtArray:
		l.ExtArray = ExtArrayParams{
			MaxBits:     d.U8(),
			IndexElems:  d.U8(),
			MinPointers: d.U8(),
			MinElems:    d.U8(),
			PageBits:    d.U8(),
		}
	case IndexBTreeV2:
		l.BTreeV2 = BTreeV2Params{
			NodeSize:     d.U32(),
			SplitPercent: d.U8(),
			MergePercent: d.U8(),
		}
	default:
		return fmt.Errorf("%w: chunk index type %d", ErrMalformed, l.Index)
	}
	l.Addr = d.Addr()
	return d.Err()
}

// splitChunkDims separates the trailing element-size dimension that every
// chunked layout stores after the chunk extents.
func (l *Layout) splitChunkDims(dims []uint64) error {
	if len(dims) < 2 {
		return fmt.Errorf("%w: chunked layout with %d dimensions", ErrMalformed, len(dims))
	}
	l.ChunkDims = dims[:len(dims)-1]
	l.ElemSize = dims[len(dims)-1]
	return nil
}

// Encode serializes the layout. Chunked layouts indexed by a v1 B-tree are
// written as version 3; every other chunked layout needs version 4.
func (l *Layout) Encode(sz binary.Sizes) ([]byte, error) {
	e := binary.NewEncoder(sz)
	version := uint8(3)
	if l.Class == LayoutChunked && l.Index != IndexBTreeV1 {
		version = 4
	}
	e.U8(version)
	e.U8(uint8(l.Class))

	switch l.Class {
	case LayoutCompact:
		if len(l.Compact) > 0xffff {
			return nil, fmt.Errorf("%w: compact data of %d bytes", ErrMalformed, len(l.Compact))
		}
		e.U16(uint16(len(l.Compact)))
		e.Raw(l.Compact)
	case LayoutContiguous:
		e.Addr(l.Addr)
		e.Length(l.Size)
	case LayoutChunked:
		dims := append(append([]uint64(nil), l.ChunkDims...), l.ElemSize)
		if version == 3 {
			e.U8(uint8(len(dims)))
			e.Addr(l.Addr)
			for _, v := range dims {
				e.U32(uint32(v))
			}
			break
		}
		e.U8(l.Flags)
		e.U8(uint8(len(dims)))
		width := DimWidth(dims)
		e.U8(uint8(width))
		for _, v := range dims {
			e.Uint(v, width)
		}
		e.U8(uint8(l.Index))
		switch l.Index {
		case IndexSingle:
			if l.Flags&LayoutSingleFiltered != 0 {
				e.Length(l.SingleSize)
				e.U32(l.SingleMask)
			}
		case IndexImplicit:
		case IndexFixedArray:
			e.U8(l.PageBits)
		case IndexExtArray:
			p := l.ExtArray
			e.Raw([]byte{p.MaxBits, p.IndexElems, p.MinPointers, p.MinElems, p.PageBits})
		case IndexBTreeV2:
			e.U32(l.BTreeV2.NodeSize)
			e.U8(l.BTreeV2.SplitPercent)
			e.U8(l.BTreeV2.MergePercent)
		default:
			return nil, fmt.Errorf("%w: chunk index type %d", ErrMalformed, l.Index)
		}
		e.Addr(l.Addr)
	default:
		return nil, fmt.Errorf("%w: cannot encode %s layout", ErrUnsupported, l.Class)
	}
	return e.Bytes(), nil
}

// DimWidth returns the smallest byte width that holds every value in dims.
func DimWidth(dims []uint64) int {
	var m uint64
	for _, v := range dims {
		m = max(m, v)
	}
	return max(1, (bits.Len64(m)+7)/8)
}
