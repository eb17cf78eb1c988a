package message

import (
	"bytes"
	"fmt"

	"github.com/tensorleaf/go-hdf5/internal/binary"
)

// FilterOptional is the filter flag allowing a chunk to skip the filter when
// it fails.
const FilterOptional uint16 = 0x0001

// FilterSpec is one stage of a filter pipeline message.
type FilterSpec struct {
	ID         uint16
	Name       string
	Flags      uint16
	ClientData []uint32
}

// Optional reports whether the filter may be skipped.
func (f FilterSpec) Optional() bool { return f.Flags&FilterOptional != 0 }

// Filters is a filter pipeline message.
type Filters struct {
	Version uint8
	List    []FilterSpec
}

func (*Filters) Type() Type { return TypeFilters }

func decodeFilters(data []byte) (*Filters, error) {
	d := binary.NewDecoder(data, binary.DefaultSizes)
	m := &Filters{Version: d.U8()}
	n := int(d.U8())
	switch m.Version {
	case 1:
		d.Skip(6)
	case 2:
	default:
		return nil, fmt.Errorf("%w: filter pipeline version %d", ErrUnsupported, m.Version)
	}

	for range n {
		var f FilterSpec
		f.ID = d.U16()
		nameLen := 0
		if m.Version == 1 || f.ID >= 256 {
			nameLen = int(d.U16())
		}
		f.Flags = d.U16()
		nvals := int(d.U16())
		if nameLen > 0 {
			name := d.Bytes(nameLen)
			if i := bytes.IndexByte(name, 0); i >= 0 {
				name = name[:i]
			}
			f.Name = string(name)
			if m.Version == 1 && nameLen%8 != 0 {
				d.Skip(8 - nameLen%8)
			}
		}
		f.ClientData = make([]uint32, nvals)
		for i := range f.ClientData {
			f.ClientData[i] = d.U32()
		}
		if m.Version == 1 && nvals%2 == 1 {
			d.Skip(4)
		}
		m.List = append(m.List, f)
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode serializes the pipeline as a version 2 message.
func (m *Filters) Encode() []byte {
	e := binary.NewEncoder(binary.DefaultSizes)
	e.U8(2)
	e.U8(uint8(len(m.List)))
	for _, f := range m.List {
		e.U16(f.ID)
		var name []byte
		if f.ID >= 256 {
			name = append([]byte(f.Name), 0)
			e.U16(uint16(len(name)))
		}
		e.U16(f.Flags)
		e.U16(uint16(len(f.ClientData)))
		e.Raw(name)
		for _, v := range f.ClientData {
			e.U32(v)
		}
	}
	return e.Bytes()
}
