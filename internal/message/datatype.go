package message

import (
	"fmt"

	"github.com/tensorleaf/go-hdf5/internal/binary"
)

// Class is a datatype class.
type Class uint8

const (
	ClassFixed     Class = 0
	ClassFloat     Class = 1
	ClassTime      Class = 2
	ClassString    Class = 3
	ClassBitfield  Class = 4
	ClassOpaque    Class = 5
	ClassCompound  Class = 6
	ClassReference Class = 7
	ClassEnum      Class = 8
	ClassVarLen    Class = 9
	ClassArray     Class = 10
)

var classNames = [...]string{
	"integer", "float", "time", "string", "bitfield", "opaque",
	"compound", "reference", "enum", "vlen", "array",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// Reference type numbers stored in the class bits of a reference datatype.
const (
	RefTypeObject1 = 0 // H5R_OBJECT1
	RefTypeRegion1 = 1 // H5R_DATASET_REGION1
	RefTypeObject2 = 2 // H5R_OBJECT2
	RefTypeRegion2 = 3 // H5R_DATASET_REGION2
	RefTypeAttr    = 4 // H5R_ATTR
)

// Datatype is a datatype message. Only the fields needed to map elements to
// Go values are decoded; class properties are kept raw.
type Datatype struct {
	Version   uint8
	Class     Class
	Bits      uint32 // 24 class bit-field bits
	Size      uint32
	Props     []byte
	BigEndian bool
	Signed    bool
}

func (*Datatype) Type() Type { return TypeDatatype }

// RefType returns the reference type number for reference datatypes.
func (t *Datatype) RefType() uint8 { return uint8(t.Bits & 0x0f) }

func decodeDatatype(data []byte) (*Datatype, error) {
	d := binary.NewDecoder(data, binary.DefaultSizes)
	cv := d.U8()
	b0, b1, b2 := d.U8(), d.U8(), d.U8()
	t := &Datatype{
		Version: cv >> 4,
		Class:   Class(cv & 0x0f),
		Bits:    uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16,
		Size:    d.U32(),
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	if t.Version < 1 || t.Version > 5 {
		return nil, fmt.Errorf("%w: datatype version %d", ErrUnsupported, t.Version)
	}
	t.Props = data[d.Pos():]

	switch t.Class {
	case ClassFixed, ClassBitfield, ClassEnum:
		t.BigEndian = t.Bits&0x01 != 0
		t.Signed = t.Class == ClassFixed && t.Bits&0x08 != 0
	case ClassFloat:
		t.BigEndian = t.Bits&0x01 != 0
		if t.Bits&0x40 != 0 {
			return nil, fmt.Errorf("%w: VAX float order", ErrUnsupported)
		}
		t.Signed = true
	}
	return t, nil
}

// NewInteger returns a little-endian integer datatype of size bytes.
func NewInteger(size uint32, signed bool) *Datatype {
	t := &Datatype{Version: 1, Class: ClassFixed, Size: size, Signed: signed}
	if signed {
		t.Bits = 0x08
	}
	e := binary.NewEncoder(binary.DefaultSizes)
	e.U16(0)
	e.U16(uint16(8 * size))
	t.Props = e.Bytes()
	return t
}

// NewFloat returns a little-endian IEEE 754 datatype of 4 or 8 bytes.
func NewFloat(size uint32) *Datatype {
	t := &Datatype{Version: 1, Class: ClassFloat, Size: size, Signed: true}
	e := binary.NewEncoder(binary.DefaultSizes)
	e.U16(0)
	e.U16(uint16(8 * size))
	if size == 4 {
		t.Bits = 0x20 | 31<<8
		e.Raw([]byte{23, 8, 0, 23})
		e.U32(127)
	} else {
		t.Bits = 0x20 | 63<<8
		e.Raw([]byte{52, 11, 0, 52})
		e.U32(1023)
	}
	t.Props = e.Bytes()
	return t
}

// NewObjectRef returns the datatype of H5R_OBJECT1 references.
func NewObjectRef(size uint32) *Datatype {
	return &Datatype{Version: 1, Class: ClassReference, Size: size, Bits: RefTypeObject1}
}

// Encode serializes the datatype.
func (t *Datatype) Encode() []byte {
	e := binary.NewEncoder(binary.DefaultSizes)
	e.U8(t.Version<<4 | uint8(t.Class))
	bits := t.Bits
	if t.BigEndian {
		bits |= 0x01
	}
	e.U8(uint8(bits))
	e.U8(uint8(bits >> 8))
	e.U8(uint8(bits >> 16))
	e.U32(t.Size)
	e.Raw(t.Props)
	return e.Bytes()
}
