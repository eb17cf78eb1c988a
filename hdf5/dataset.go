package hdf5

import (
	"errors"
	"fmt"
	"path"
	"slices"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/dtype"
	"github.com/tensorleaf/go-hdf5/internal/filter"
	"github.com/tensorleaf/go-hdf5/internal/layout"
	"github.com/tensorleaf/go-hdf5/internal/message"
	"github.com/tensorleaf/go-hdf5/internal/object"
)

// Dataset represents an HDF5 dataset.
type Dataset struct {
	file *File
	path string
	addr uint64
	meta *datasetMeta
}

// datasetMeta is the decoded header of a dataset.
type datasetMeta struct {
	hdr     *object.Header
	space   *message.Dataspace // nil when the header has no dataspace
	dtype   *message.Datatype
	layout  *message.Layout
	filters *message.Filters // nil when unfiltered
	fill    *message.FillValue
}

func decodeDataset(hdr *object.Header) (*datasetMeta, error) {
	m := &datasetMeta{hdr: hdr}
	var err error
	if m.layout, err = object.Get[*message.Layout](hdr, message.TypeLayout); err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	if m.dtype, err = object.Get[*message.Datatype](hdr, message.TypeDatatype); err != nil {
		return nil, fmt.Errorf("datatype: %w", err)
	}
	if hdr.Has(message.TypeDataspace) {
		if m.space, err = object.Get[*message.Dataspace](hdr, message.TypeDataspace); err != nil {
			return nil, fmt.Errorf("dataspace: %w", err)
		}
	}
	if hdr.Has(message.TypeFilters) {
		if m.filters, err = object.Get[*message.Filters](hdr, message.TypeFilters); err != nil {
			return nil, fmt.Errorf("filters: %w", err)
		}
	}
	if hdr.Has(message.TypeFillValue) {
		// A fill value is only used to initialise unallocated chunks.
		m.fill, _ = object.Get[*message.FillValue](hdr, message.TypeFillValue)
	}
	if m.layout.Class == message.LayoutChunked && m.layout.ElemSize == 0 {
		m.layout.ElemSize = uint64(m.dtype.Size)
	}
	return m, nil
}

func (m *datasetMeta) chunked() bool {
	return m.layout.Class == message.LayoutChunked
}

func (m *datasetMeta) filtered() bool {
	return m.filters != nil && len(m.filters.List) > 0
}

func (m *datasetMeta) extent() layout.Extent {
	return layout.Extent{Dims: m.space.Dims, MaxDims: m.space.MaxDims}
}

// reload re-reads the dataset header so callers see chunk writes made
// through other handles.
func (d *Dataset) reload() (*datasetMeta, error) {
	if err := d.file.checkOpen(); err != nil {
		return nil, err
	}
	hdr, err := d.file.readHeader(d.addr)
	if err != nil {
		return nil, err
	}
	meta, err := decodeDataset(hdr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	d.meta = meta
	return meta, nil
}

// Path returns the absolute path of the dataset.
func (d *Dataset) Path() string {
	return d.path
}

// Name returns the last component of the dataset's path.
func (d *Dataset) Name() string {
	return path.Base(d.path)
}

// Ref returns an object reference to the dataset.
func (d *Dataset) Ref() ObjectRef {
	return ObjectRef(d.addr)
}

// IsChunked reports whether the dataset uses chunked storage.
func (d *Dataset) IsChunked() bool {
	defer lock()()
	return d.meta.chunked()
}

// NDim returns the dataset rank; 0 for scalars and datasets without a
// dataspace.
func (d *Dataset) NDim() int {
	defer lock()()
	if d.meta.space == nil {
		return 0
	}
	return d.meta.space.Rank()
}

// Space returns the dataset's dataspace, or nil when it has none.
func (d *Dataset) Space() *Dataspace {
	defer lock()()
	s := d.meta.space
	if s == nil {
		return nil
	}
	return &Dataspace{Dims: slices.Clone(s.Dims), MaxDims: slices.Clone(s.MaxDims)}
}

// Shape returns the current dimensions.
func (d *Dataset) Shape() []uint64 {
	defer lock()()
	if d.meta.space == nil {
		return nil
	}
	return slices.Clone(d.meta.space.Dims)
}

// NumElements returns the number of elements in the dataset.
func (d *Dataset) NumElements() uint64 {
	defer lock()()
	if d.meta.space == nil {
		return 0
	}
	return d.meta.space.NumElements()
}

// Layout returns the storage layout name: "compact", "contiguous" or
// "chunked".
func (d *Dataset) Layout() string {
	defer lock()()
	return d.meta.layout.Class.String()
}

// ChunkShape returns the chunk dimensions, or nil for unchunked datasets.
func (d *Dataset) ChunkShape() []uint64 {
	defer lock()()
	if !d.meta.chunked() {
		return nil
	}
	return slices.Clone(d.meta.layout.ChunkDims)
}

// ChunkIndex returns the chunk index type of a chunked dataset.
func (d *Dataset) ChunkIndex() (ChunkIndex, bool) {
	defer lock()()
	if !d.meta.chunked() {
		return 0, false
	}
	return ChunkIndex(d.meta.layout.Index), true
}

// Datatype returns the element type.
func (d *Dataset) Datatype() Datatype {
	defer lock()()
	return Datatype{d.meta.dtype}
}

// Filters returns the filter pipeline in application order.
func (d *Dataset) Filters() []FilterInfo {
	defer lock()()
	return filterInfos(d.meta.filters)
}

// Read reads the whole dataset into dest, which must point to a slice of a
// numeric Go type. The slice is replaced.
func (d *Dataset) Read(dest any) error {
	defer lock()()
	meta, err := d.reload()
	if err != nil {
		return err
	}
	if !dtype.Numeric(meta.dtype) {
		return fmt.Errorf("%w: cannot read %s elements into %T", ErrTypeMismatch, meta.dtype.Class, dest)
	}
	raw, err := d.readRaw(meta)
	if err != nil {
		return err
	}
	if err := dtype.Decode(meta.dtype, raw, dest); err != nil {
		return fmt.Errorf("%w: %w", ErrTypeMismatch, err)
	}
	return nil
}

// ReadRaw returns the raw element bytes of the whole dataset in row-major
// order.
func (d *Dataset) ReadRaw() ([]byte, error) {
	defer lock()()
	meta, err := d.reload()
	if err != nil {
		return nil, err
	}
	return d.readRaw(meta)
}

func (d *Dataset) readRaw(meta *datasetMeta) ([]byte, error) {
	if meta.space == nil {
		return nil, fmt.Errorf("%w: %s has no dataspace", ErrUnsupported, d.path)
	}
	elemSize := uint64(meta.dtype.Size)
	n := meta.space.NumElements() * elemSize
	f := d.file

	if !meta.chunked() {
		buf, err := layout.ReadContiguous(f.rw, meta.layout, n, f.sz)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.path, err)
		}
		return buf, nil
	}

	buf := make([]byte, n)
	if fv := meta.fill; fv != nil && uint64(len(fv.Value)) == elemSize && elemSize > 0 {
		for i := uint64(0); i < n; i += elemSize {
			copy(buf[i:], fv.Value)
		}
	}
	chunks, err := layout.ReadChunks(f.rw, meta.layout, meta.extent(), f.sz)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	pipe := filter.NewPipeline(meta.filters, int(elemSize))
	for _, c := range chunks {
		stored, err := binary.ReadAt(f.rw, c.Addr, int(c.Size))
		if err != nil {
			return nil, fmt.Errorf("%s: chunk %v: %w", d.path, c.Offset, err)
		}
		data, err := pipe.Decode(stored, c.FilterMask)
		if err != nil {
			if errors.Is(err, filter.ErrUnavailable) {
				err = fmt.Errorf("%w: %w", ErrUnsupported, err)
			}
			return nil, fmt.Errorf("%s: chunk %v: %w", d.path, c.Offset, err)
		}
		if err := layout.Scatter(buf, meta.space.Dims, data, c.Offset, meta.layout.ChunkDims, elemSize); err != nil {
			return nil, fmt.Errorf("%s: %w", d.path, err)
		}
	}
	return buf, nil
}
