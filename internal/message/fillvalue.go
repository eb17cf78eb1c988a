package message

import (
	"fmt"

	"github.com/tensorleaf/go-hdf5/internal/binary"
)

// Space allocation times.
const (
	AllocEarly       uint8 = 1
	AllocLate        uint8 = 2
	AllocIncremental uint8 = 3
)

// FillValue is a fill value message.
type FillValue struct {
	AllocTime uint8
	WriteTime uint8
	Value     []byte // nil when undefined
}

func (*FillValue) Type() Type { return TypeFillValue }

func decodeFillValue(data []byte) (*FillValue, error) {
	d := binary.NewDecoder(data, binary.DefaultSizes)
	m := &FillValue{}
	switch v := d.U8(); v {
	case 1, 2:
		m.AllocTime = d.U8()
		m.WriteTime = d.U8()
		defined := d.U8() != 0
		if v == 1 || defined {
			n := int(d.U32())
			if n > 0 {
				m.Value = d.Bytes(n)
			}
		}
	case 3:
		flags := d.U8()
		m.AllocTime = flags & 0x03
		m.WriteTime = (flags >> 2) & 0x03
		if flags&0x20 != 0 {
			n := int(d.U32())
			m.Value = d.Bytes(n)
		}
	default:
		return nil, fmt.Errorf("%w: fill value version %d", ErrUnsupported, v)
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode serializes the message as version 3.
func (m *FillValue) Encode() []byte {
	e := binary.NewEncoder(binary.DefaultSizes)
	e.U8(3)
	flags := m.AllocTime&0x03 | (m.WriteTime&0x03)<<2
	if m.Value != nil {
		flags |= 0x20
	}
	e.U8(flags)
	if m.Value != nil {
		e.U32(uint32(len(m.Value)))
		e.Raw(m.Value)
	}
	return e.Bytes()
}
