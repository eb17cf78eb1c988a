package message

import (
	"fmt"

	"github.com/tensorleaf/go-hdf5/internal/binary"
)

// LinkKind is the type of a link message.
type LinkKind uint8

const (
	LinkHard     LinkKind = 0
	LinkSoft     LinkKind = 1
	LinkExternal LinkKind = 64
)

// Link is a link message: a named edge from a group to an object.
type Link struct {
	Kind     LinkKind
	Name     string
	Addr     uint64 // hard links
	Target   string // soft links
	External []byte // external links, raw
	Order    int64  // creation order, -1 when absent
}

func (*Link) Type() Type { return TypeLink }

const (
	linkWidthMask  = 0x03
	linkHasOrder   = 0x04
	linkHasKind    = 0x08
	linkHasCharset = 0x10
)

func decodeLink(data []byte, sz binary.Sizes) (*Link, error) {
	d := binary.NewDecoder(data, sz)
	if v := d.U8(); v != 1 {
		return nil, fmt.Errorf("%w: link version %d", ErrUnsupported, v)
	}
	flags := d.U8()
	l := &Link{Order: -1}
	if flags&linkHasKind != 0 {
		l.Kind = LinkKind(d.U8())
	}
	if flags&linkHasOrder != 0 {
		l.Order = int64(d.U64())
	}
	if flags&linkHasCharset != 0 {
		d.Skip(1)
	}
	nameLen := int(d.Uint(1 << (flags & linkWidthMask)))
	l.Name = string(d.Bytes(nameLen))

	switch l.Kind {
	case LinkHard:
		l.Addr = d.Addr()
	case LinkSoft:
		n := int(d.U16())
		l.Target = string(d.Bytes(n))
	case LinkExternal:
		n := int(d.U16())
		l.External = d.Bytes(n)
	default:
		return nil, fmt.Errorf("%w: link type %d", ErrUnsupported, l.Kind)
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

// Encode serializes a hard or soft link.
func (l *Link) Encode(sz binary.Sizes) ([]byte, error) {
	e := binary.NewEncoder(sz)
	e.U8(1)

	var flags uint8
	width := 1
	switch n := len(l.Name); {
	case n == 0:
		return nil, fmt.Errorf("%w: empty link name", ErrMalformed)
	case n > 0xffff:
		flags |= 2
		width = 4
	case n > 0xff:
		flags |= 1
		width = 2
	}
	if l.Kind != LinkHard {
		flags |= linkHasKind
	}
	if l.Order >= 0 {
		flags |= linkHasOrder
	}
	e.U8(flags)
	if l.Kind != LinkHard {
		e.U8(uint8(l.Kind))
	}
	if l.Order >= 0 {
		e.U64(uint64(l.Order))
	}
	e.Uint(uint64(len(l.Name)), width)
	e.Raw([]byte(l.Name))

	switch l.Kind {
	case LinkHard:
		e.Addr(l.Addr)
	case LinkSoft:
		e.U16(uint16(len(l.Target)))
		e.Raw([]byte(l.Target))
	default:
		return nil, fmt.Errorf("%w: cannot encode link type %d", ErrUnsupported, l.Kind)
	}
	return e.Bytes(), nil
}

// LinkInfo is a link info message. A defined FractalHeap means the group
// stores links densely.
type LinkInfo struct {
	TrackOrder  bool
	MaxOrder    int64
	FractalHeap uint64
	NameIndex   uint64
}

func (*LinkInfo) Type() Type { return TypeLinkInfo }

func decodeLinkInfo(data []byte, sz binary.Sizes) (*LinkInfo, error) {
	d := binary.NewDecoder(data, sz)
	if v := d.U8(); v != 0 {
		return nil, fmt.Errorf("%w: link info version %d", ErrUnsupported, v)
	}
	flags := d.U8()
	m := &LinkInfo{TrackOrder: flags&0x01 != 0}
	if m.TrackOrder {
		m.MaxOrder = int64(d.U64())
	}
	m.FractalHeap = d.Addr()
	m.NameIndex = d.Addr()
	if err := d.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode serializes a link info message for compact link storage.
func (m *LinkInfo) Encode(sz binary.Sizes) []byte {
	e := binary.NewEncoder(sz)
	e.U8(0)
	if m.TrackOrder {
		e.U8(0x01)
		e.U64(uint64(m.MaxOrder))
	} else {
		e.U8(0)
	}
	e.Addr(sz.Undefined())
	e.Addr(sz.Undefined())
	return e.Bytes()
}

// EncodeGroupInfo returns a version 0 group info message with default
// compact/dense thresholds.
func EncodeGroupInfo() []byte {
	return []byte{0, 0}
}
