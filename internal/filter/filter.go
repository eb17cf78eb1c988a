// Package filter implements the HDF5 chunk filter pipeline.
//
// Filters run in pipeline order when a chunk is written and in reverse order
// when it is read. Bit i of a chunk's filter mask marks filter i as not
// applied to that chunk.
package filter

import (
	"errors"
	"fmt"

	"github.com/tensorleaf/go-hdf5/internal/message"
)

// Filter identifiers registered with The HDF Group.
const (
	IDDeflate     uint16 = 1
	IDShuffle     uint16 = 2
	IDFletcher32  uint16 = 3
	IDSZIP        uint16 = 4
	IDNBit        uint16 = 5
	IDScaleOffset uint16 = 6
	IDLZ4         uint16 = 32004
	IDZstd        uint16 = 32015
)

var (
	ErrUnavailable = errors.New("filter: not available")
	ErrChecksum    = errors.New("filter: checksum mismatch")
	ErrCorrupt     = errors.New("filter: corrupt data")
)

// Filter transforms chunk bytes in both directions.
type Filter interface {
	ID() uint16
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// constructor builds a filter from its client data. elemSize is the dataset
// element size, used by filters whose client data may omit it.
type constructor func(cd []uint32, elemSize int) Filter

var registry = map[uint16]constructor{
	IDDeflate:    func(cd []uint32, _ int) Filter { return newDeflate(cd) },
	IDShuffle:    func(cd []uint32, es int) Filter { return newShuffle(cd, es) },
	IDFletcher32: func([]uint32, int) Filter { return fletcher32{} },
	IDLZ4:        func(cd []uint32, _ int) Filter { return newLZ4(cd) },
	IDZstd:       func(cd []uint32, _ int) Filter { return newZstd(cd) },
}

var names = map[uint16]string{
	IDDeflate:     "deflate",
	IDShuffle:     "shuffle",
	IDFletcher32:  "fletcher32",
	IDSZIP:        "szip",
	IDNBit:        "nbit",
	IDScaleOffset: "scaleoffset",
	IDLZ4:         "lz4",
	IDZstd:        "zstd",
}

// Name returns the conventional name of a filter id.
func Name(id uint16) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("filter-%d", id)
}

// Available reports whether id has an implementation.
func Available(id uint16) bool {
	_, ok := registry[id]
	return ok
}

// New builds the filter described by spec.
func New(spec message.FilterSpec, elemSize int) (Filter, error) {
	c, ok := registry[spec.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s (id %d)", ErrUnavailable, Name(spec.ID), spec.ID)
	}
	return c(spec.ClientData, elemSize), nil
}

// Spec returns a pipeline entry for id. Third-party filters carry their name
// in the message.
func Spec(id uint16, optional bool, cd ...uint32) message.FilterSpec {
	s := message.FilterSpec{ID: id, ClientData: cd}
	if optional {
		s.Flags |= message.FilterOptional
	}
	if id >= 256 {
		s.Name = Name(id)
	}
	return s
}
