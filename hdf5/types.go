package hdf5

import (
	"fmt"

	"github.com/tensorleaf/go-hdf5/internal/filter"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

// Datatype describes the element type of a dataset.
type Datatype struct {
	dt *message.Datatype
}

// Predefined little-endian element types.
var (
	Int8    = Datatype{message.NewInteger(1, true)}
	Int16   = Datatype{message.NewInteger(2, true)}
	Int32   = Datatype{message.NewInteger(4, true)}
	Int64   = Datatype{message.NewInteger(8, true)}
	Uint8   = Datatype{message.NewInteger(1, false)}
	Uint16  = Datatype{message.NewInteger(2, false)}
	Uint32  = Datatype{message.NewInteger(4, false)}
	Uint64  = Datatype{message.NewInteger(8, false)}
	Float32 = Datatype{message.NewFloat(4)}
	Float64 = Datatype{message.NewFloat(8)}

	// ObjectRefType holds ObjectRef elements.
	ObjectRefType = Datatype{message.NewObjectRef(ObjectRefSize)}
)

// Class returns the datatype class name, e.g. "integer" or "reference".
func (t Datatype) Class() string {
	if t.dt == nil {
		return ""
	}
	return t.dt.Class.String()
}

// Size returns the element size in bytes.
func (t Datatype) Size() int {
	if t.dt == nil {
		return 0
	}
	return int(t.dt.Size)
}

// Signed reports whether an integer type is signed.
func (t Datatype) Signed() bool {
	return t.dt != nil && t.dt.Class == message.ClassFixed && t.dt.Signed
}

func (t Datatype) String() string {
	if t.dt == nil {
		return "<nil>"
	}
	switch t.dt.Class {
	case message.ClassFixed:
		if t.dt.Signed {
			return fmt.Sprintf("int%d", 8*t.dt.Size)
		}
		return fmt.Sprintf("uint%d", 8*t.dt.Size)
	case message.ClassFloat:
		return fmt.Sprintf("float%d", 8*t.dt.Size)
	}
	return fmt.Sprintf("%s(%d)", t.dt.Class, t.dt.Size)
}

// Dataspace is the shape of a dataset.
type Dataspace struct {
	Dims    []uint64
	MaxDims []uint64 // Unlimited marks unlimited dimensions
}

// Rank returns the number of dimensions.
func (s *Dataspace) Rank() int { return len(s.Dims) }

// NumElements returns the product of the dimensions.
func (s *Dataspace) NumElements() uint64 {
	n := uint64(1)
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// ChunkIndex identifies the structure that locates a dataset's chunks.
type ChunkIndex uint8

const (
	IndexBTreeV1    = ChunkIndex(message.IndexBTreeV1)
	IndexSingle     = ChunkIndex(message.IndexSingle)
	IndexImplicit   = ChunkIndex(message.IndexImplicit)
	IndexFixedArray = ChunkIndex(message.IndexFixedArray)
	IndexExtArray   = ChunkIndex(message.IndexExtArray)
	IndexBTreeV2    = ChunkIndex(message.IndexBTreeV2)
)

func (k ChunkIndex) String() string { return message.IndexType(k).String() }

// FilterInfo describes one stage of a dataset's filter pipeline.
type FilterInfo struct {
	ID        uint16
	Name      string
	Optional  bool
	Available bool
}

func filterInfos(m *message.Filters) []FilterInfo {
	if m == nil {
		return nil
	}
	out := make([]FilterInfo, len(m.List))
	for i, s := range m.List {
		name := s.Name
		if name == "" {
			name = filter.Name(s.ID)
		}
		out[i] = FilterInfo{
			ID:        s.ID,
			Name:      name,
			Optional:  s.Optional(),
			Available: filter.Available(s.ID),
		}
	}
	return out
}
