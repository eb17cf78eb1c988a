package message

import (
	"fmt"

	"github.com/tensorleaf/go-hdf5/internal/binary"
)

// SpaceKind distinguishes scalar, simple and null dataspaces.
type SpaceKind uint8

const (
	SpaceScalar SpaceKind = 0
	SpaceSimple SpaceKind = 1
	SpaceNull   SpaceKind = 2
)

// Unlimited marks an unlimited maximum dimension.
const Unlimited = ^uint64(0)

// Dataspace describes the rank and extent of a dataset.
type Dataspace struct {
	Kind    SpaceKind
	Dims    []uint64
	MaxDims []uint64 // nil when equal to Dims
}

func (*Dataspace) Type() Type { return TypeDataspace }

// Rank returns the number of dimensions.
func (s *Dataspace) Rank() int { return len(s.Dims) }

// NumElements returns the product of the dimensions; 1 for scalars and 0 for
// null dataspaces.
func (s *Dataspace) NumElements() uint64 {
	if s.Kind == SpaceNull {
		return 0
	}
	n := uint64(1)
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

func decodeDataspace(data []byte, sz binary.Sizes) (*Dataspace, error) {
	d := binary.NewDecoder(data, sz)
	version := d.U8()
	rank := int(d.U8())
	flags := d.U8()

	s := &Dataspace{Kind: SpaceSimple}
	switch version {
	case 1:
		d.Skip(5)
		if rank == 0 {
			s.Kind = SpaceScalar
		}
	case 2:
		s.Kind = SpaceKind(d.U8())
	default:
		return nil, fmt.Errorf("%w: dataspace version %d", ErrUnsupported, version)
	}

	if rank > 0 {
		s.Dims = make([]uint64, rank)
		for i := range s.Dims {
			s.Dims[i] = d.Length()
		}
		if flags&0x01 != 0 {
			s.MaxDims = make([]uint64, rank)
			for i := range s.MaxDims {
				s.MaxDims[i] = d.Length()
			}
		}
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// Encode serializes the dataspace as a version 2 message.
func (s *Dataspace) Encode(sz binary.Sizes) []byte {
	e := binary.NewEncoder(sz)
	e.U8(2)
	e.U8(uint8(len(s.Dims)))
	var flags uint8
	if s.MaxDims != nil {
		flags |= 0x01
	}
	e.U8(flags)
	kind := s.Kind
	if kind == SpaceSimple && len(s.Dims) == 0 {
		kind = SpaceScalar
	}
	e.U8(uint8(kind))
	for _, v := range s.Dims {
		e.Length(v)
	}
	for _, v := range s.MaxDims {
		if v == Unlimited {
			e.Length(binary.Undefined(sz.Length))
			continue
		}
		e.Length(v)
	}
	return e.Bytes()
}
