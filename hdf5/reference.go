package hdf5

import (
	"fmt"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

// Reference is one of the reference encodings defined by the file format.
type Reference int

const (
	RefObject Reference = iota
	RefRegion
	RefStd
)

// Encoded sizes of the reference kinds.
const (
	ObjectRefSize = 8
	RegionRefSize = 12
	StdRefSize    = 64
)

// Size returns the encoded size of r in bytes, or 0 for an unknown kind.
func (r Reference) Size() int {
	switch r {
	case RefObject:
		return ObjectRefSize
	case RefRegion:
		return RegionRefSize
	case RefStd:
		return StdRefSize
	}
	return 0
}

func (r Reference) String() string {
	switch r {
	case RefObject:
		return "object"
	case RefRegion:
		return "region"
	case RefStd:
		return "std"
	}
	return fmt.Sprintf("reference(%d)", int(r))
}

// ObjectRef is an object reference: the address of the referenced object's
// header.
type ObjectRef uint64

// IsNull reports whether the reference points nowhere.
func (r ObjectRef) IsNull() bool { return r == 0 }

// RegionRef is the raw encoding of a dataset region reference.
type RegionRef [RegionRefSize]byte

// StdRef is the raw encoding of a revised (version 4) reference.
type StdRef [StdRefSize]byte

// ReferenceKind returns the reference kind stored in the dataset, or false
// when its elements are not references.
func (d *Dataset) ReferenceKind() (Reference, bool) {
	defer lock()()
	return referenceKind(d.meta.dtype)
}

func referenceKind(dt *message.Datatype) (Reference, bool) {
	if dt.Class != message.ClassReference {
		return 0, false
	}
	if dt.Version >= 4 {
		return RefStd, true
	}
	switch dt.RefType() {
	case message.RefTypeObject1:
		return RefObject, true
	case message.RefTypeRegion1:
		return RefRegion, true
	}
	return 0, false
}

// ReadObjectRefs reads a dataset of object references.
func (d *Dataset) ReadObjectRefs() ([]ObjectRef, error) {
	defer lock()()
	meta, err := d.reload()
	if err != nil {
		return nil, err
	}
	if kind, ok := referenceKind(meta.dtype); !ok || kind != RefObject {
		return nil, fmt.Errorf("%w: %s elements are not object references", ErrTypeMismatch, meta.dtype.Class)
	}
	raw, err := d.readRaw(meta)
	if err != nil {
		return nil, err
	}
	stride := RefObject.Size()
	out := make([]ObjectRef, len(raw)/stride)
	for i := range out {
		out[i] = ObjectRef(binary.Uint(raw[i*stride : (i+1)*stride]))
	}
	return out, nil
}

// Dereference opens the object ref points at as a *Group or *Dataset.
func (f *File) Dereference(ref ObjectRef) (any, error) {
	defer lock()()
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if ref.IsNull() {
		return nil, fmt.Errorf("%w: null reference", ErrNotFound)
	}
	obj, err := f.openAt(uint64(ref), fmt.Sprintf("<%#x>", uint64(ref)))
	if err != nil {
		return nil, fmt.Errorf("%w: reference %#x: %w", ErrNotFound, uint64(ref), err)
	}
	return obj, nil
}
