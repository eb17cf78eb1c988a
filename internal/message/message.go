// Package message decodes and encodes the header messages stored in HDF5
// object headers.
package message

import (
	"errors"
	"fmt"

	"github.com/tensorleaf/go-hdf5/internal/binary"
)

// Type is a header message type number.
type Type uint16

const (
	TypeNIL          Type = 0x0000
	TypeDataspace    Type = 0x0001
	TypeLinkInfo     Type = 0x0002
	TypeDatatype     Type = 0x0003
	TypeFillValueOld Type = 0x0004
	TypeFillValue    Type = 0x0005
	TypeLink         Type = 0x0006
	TypeLayout       Type = 0x0008
	TypeGroupInfo    Type = 0x000A
	TypeFilters      Type = 0x000B
	TypeAttribute    Type = 0x000C
	TypeModTime      Type = 0x0012
	TypeContinuation Type = 0x0010
	TypeSymbolTable  Type = 0x0011
)

var (
	// ErrUnsupported is returned for message versions or variants that are
	// recognised but not implemented.
	ErrUnsupported = errors.New("message: unsupported")

	// ErrMalformed is returned when a message body is inconsistent.
	ErrMalformed = errors.New("message: malformed")
)

// Message is implemented by every decoded header message.
type Message interface {
	Type() Type
}

// Decode parses the body of a header message of the given type. Types this
// package does not model come back as *Unknown.
func Decode(typ Type, data []byte, sz binary.Sizes) (Message, error) {
	var (
		m   Message
		err error
	)
	switch typ {
	case TypeDataspace:
		m, err = decodeDataspace(data, sz)
	case TypeDatatype:
		m, err = decodeDatatype(data)
	case TypeLayout:
		m, err = decodeLayout(data, sz)
	case TypeFilters:
		m, err = decodeFilters(data)
	case TypeFillValue:
		m, err = decodeFillValue(data)
	case TypeLink:
		m, err = decodeLink(data, sz)
	case TypeLinkInfo:
		m, err = decodeLinkInfo(data, sz)
	case TypeSymbolTable:
		m, err = decodeSymbolTable(data, sz)
	case TypeContinuation:
		m, err = decodeContinuation(data, sz)
	default:
		return &Unknown{Kind: typ, Data: data}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("message %#04x: %w", uint16(typ), err)
	}
	return m, nil
}

// Unknown carries the raw body of a message type this package skips.
type Unknown struct {
	Kind Type
	Data []byte
}

func (m *Unknown) Type() Type { return m.Kind }

// Continuation points at the next chunk of an object header.
type Continuation struct {
	Addr   uint64
	Length uint64
}

func (*Continuation) Type() Type { return TypeContinuation }

func decodeContinuation(data []byte, sz binary.Sizes) (*Continuation, error) {
	d := binary.NewDecoder(data, sz)
	m := &Continuation{Addr: d.Addr(), Length: d.Length()}
	return m, d.Err()
}

// SymbolTable marks an old-style group: a v1 B-tree of symbol nodes plus the
// local heap holding link names.
type SymbolTable struct {
	BTreeAddr uint64
	HeapAddr  uint64
}

func (*SymbolTable) Type() Type { return TypeSymbolTable }

func decodeSymbolTable(data []byte, sz binary.Sizes) (*SymbolTable, error) {
	d := binary.NewDecoder(data, sz)
	m := &SymbolTable{BTreeAddr: d.Addr(), HeapAddr: d.Addr()}
	return m, d.Err()
}
