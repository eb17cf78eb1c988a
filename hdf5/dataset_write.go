package hdf5

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/tensorleaf/go-hdf5/internal/chunk"
	"github.com/tensorleaf/go-hdf5/internal/dtype"
	"github.com/tensorleaf/go-hdf5/internal/filter"
	"github.com/tensorleaf/go-hdf5/internal/layout"
	"github.com/tensorleaf/go-hdf5/internal/message"
	"github.com/tensorleaf/go-hdf5/internal/object"
)

// CreateDataset creates a dataset holding data, a slice of a numeric Go
// type or of ObjectRef. The dataset is one-dimensional unless WithShape is
// given.
//
// Example:
//
//	ds, err := root.CreateDataset("temps", []float64{1, 2, 3, 4, 5, 6},
//	    hdf5.WithShape(2, 3), hdf5.WithChunks(1, 3), hdf5.WithDeflate(6))
func (g *Group) CreateDataset(name string, data any, opts ...DatasetOption) (*Dataset, error) {
	defer lock()()

	var (
		dt  *message.Datatype
		err error
	)
	if _, ok := data.([]ObjectRef); ok {
		dt = ObjectRefType.dt
	} else {
		sv, err := dtype.SliceOf(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTypeMismatch, err)
		}
		if dt, err = dtype.For(sv.Type().Elem()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTypeMismatch, err)
		}
	}
	raw, err := dtype.Encode(dt, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTypeMismatch, err)
	}

	o := defaultDatasetOptions()
	for _, opt := range opts {
		opt(o)
	}
	dims := o.shape
	if dims == nil {
		dims = []uint64{uint64(len(raw)) / uint64(dt.Size)}
	}
	var n uint64 = 1
	for _, d := range dims {
		n *= d
	}
	if n*uint64(dt.Size) != uint64(len(raw)) {
		return nil, fmt.Errorf("%w: %d elements for shape %v", ErrShapeMismatch, len(raw)/int(dt.Size), dims)
	}
	return g.createDataset(name, dt, dims, raw, o)
}

// CreateEmptyDataset creates a dataset of the given type and shape without
// writing any data. Chunks are then stored with WriteChunk.
func (g *Group) CreateEmptyDataset(name string, t Datatype, dims []uint64, opts ...DatasetOption) (*Dataset, error) {
	defer lock()()
	if t.dt == nil {
		return nil, fmt.Errorf("%w: no datatype", ErrTypeMismatch)
	}
	o := defaultDatasetOptions()
	for _, opt := range opts {
		opt(o)
	}
	return g.createDataset(name, t.dt, slices.Clone(dims), nil, o)
}

// createDataset writes the storage and header of a new dataset. raw is nil
// for datasets created without data.
func (g *Group) createDataset(name string, dt *message.Datatype, dims []uint64, raw []byte, o *datasetOptions) (*Dataset, error) {
	f := g.file
	if err := f.checkWritable(); err != nil {
		return nil, err
	}
	if err := checkName(name); err != nil {
		return nil, err
	}

	space := &message.Dataspace{Kind: message.SpaceSimple, Dims: dims}
	if o.maxDims != nil {
		if len(o.maxDims) != len(dims) {
			return nil, fmt.Errorf("%w: max dims %v for rank %d", ErrShapeMismatch, o.maxDims, len(dims))
		}
		for i, m := range o.maxDims {
			if m < dims[i] {
				return nil, fmt.Errorf("%w: max dims %v below dims %v", ErrShapeMismatch, o.maxDims, dims)
			}
		}
		space.MaxDims = slices.Clone(o.maxDims)
	}

	specs := o.pipeline(dt.Size)
	meta := &datasetMeta{space: space, dtype: dt}
	if len(specs) > 0 {
		meta.filters = &message.Filters{Version: 2, List: specs}
	}

	var err error
	if o.chunks == nil {
		meta.layout, meta.fill, err = g.writeContiguous(space, dt, raw, o)
	} else {
		meta.layout, meta.fill, err = g.writeChunked(meta, raw, o)
	}
	if err != nil {
		return nil, err
	}

	lbuf, err := meta.layout.Encode(f.sz)
	if err != nil {
		return nil, err
	}
	msgs := []object.Msg{
		{Type: message.TypeDataspace, Data: space.Encode(f.sz)},
		{Type: message.TypeDatatype, Flags: object.FlagConstant, Data: dt.Encode()},
		{Type: message.TypeFillValue, Flags: object.FlagConstant, Data: meta.fill.Encode()},
		{Type: message.TypeLayout, Data: lbuf},
	}
	if meta.filters != nil {
		msgs = append(msgs, object.Msg{Type: message.TypeFilters, Flags: object.FlagConstant, Data: meta.filters.Encode()})
	}
	addr, err := f.writeHeader(msgs)
	if err != nil {
		return nil, fmt.Errorf("writing dataset header: %w", err)
	}
	link := &message.Link{Kind: message.LinkHard, Name: name, Addr: addr, Order: -1}
	if err := f.addLink(g.addr, link); err != nil {
		return nil, fmt.Errorf("adding link to %s: %w", g.path, err)
	}
	if meta.hdr, err = f.readHeader(addr); err != nil {
		return nil, err
	}
	return &Dataset{file: f, path: JoinPath(g.path, name), addr: addr, meta: meta}, nil
}

func (g *Group) writeContiguous(space *message.Dataspace, dt *message.Datatype, raw []byte, o *datasetOptions) (*message.Layout, *message.FillValue, error) {
	if len(o.pipeline(dt.Size)) > 0 || o.hasIndex {
		return nil, nil, fmt.Errorf("%w: filters and chunk indexes need WithChunks", ErrInvalidChunk)
	}
	if slices.Contains(space.MaxDims, Unlimited) {
		return nil, nil, fmt.Errorf("%w: unlimited dimensions need WithChunks", ErrInvalidChunk)
	}
	f := g.file
	l := &message.Layout{
		Class: message.LayoutContiguous,
		Addr:  f.sz.Undefined(),
		Size:  space.NumElements() * uint64(dt.Size),
	}
	if len(raw) > 0 {
		l.Addr = f.alloc.Alloc(uint64(len(raw)))
		if _, err := f.rw.WriteAt(raw, int64(l.Addr)); err != nil {
			return nil, nil, fmt.Errorf("writing data: %w", err)
		}
	}
	return l, &message.FillValue{AllocTime: message.AllocLate, WriteTime: 2}, nil
}

// defaultIndex picks the chunk index libhdf5 uses for the latest format.
func defaultIndex(ext layout.Extent, chunkDims []uint64) ChunkIndex {
	if slices.Contains(ext.MaxDims, Unlimited) {
		return IndexBTreeV1
	}
	if (chunk.Grid{Dims: ext.Bound(), ChunkDims: chunkDims}).Len() == 1 {
		return IndexSingle
	}
	return IndexFixedArray
}

func (g *Group) writeChunked(meta *datasetMeta, raw []byte, o *datasetOptions) (*message.Layout, *message.FillValue, error) {
	f := g.file
	dims := meta.space.Dims
	if len(o.chunks) != len(dims) || len(dims) == 0 {
		return nil, nil, fmt.Errorf("%w: chunk dims %v for rank %d", ErrInvalidChunk, o.chunks, len(dims))
	}
	for _, c := range o.chunks {
		if c == 0 || c > 0xffffffff {
			return nil, nil, fmt.Errorf("%w: chunk dims %v", ErrInvalidChunk, o.chunks)
		}
	}

	ext := meta.extent()
	kind := defaultIndex(ext, o.chunks)
	if o.hasIndex {
		kind = o.index
	}
	unlimited := slices.Contains(ext.MaxDims, Unlimited)
	switch {
	case !layout.Writable(message.IndexType(kind)):
		return nil, nil, fmt.Errorf("%w: writing %s chunk index", ErrUnsupported, kind)
	case unlimited && kind != IndexBTreeV1:
		return nil, nil, fmt.Errorf("%w: %s index with unlimited dimensions", ErrInvalidChunk, kind)
	case kind == IndexImplicit && meta.filtered():
		return nil, nil, fmt.Errorf("%w: implicit index with filters", ErrInvalidChunk)
	}

	l := &message.Layout{
		Class:     message.LayoutChunked,
		Addr:      f.sz.Undefined(),
		ChunkDims: slices.Clone(o.chunks),
		ElemSize:  uint64(meta.dtype.Size),
		Index:     message.IndexType(kind),
		PageBits:  layout.DefaultPageBits,
	}
	fill := &message.FillValue{AllocTime: message.AllocIncremental, WriteTime: 2}
	if kind == IndexImplicit {
		// Implicit storage is allocated and zeroed up front.
		size := layout.ImplicitSize(l, ext)
		l.Addr = f.alloc.Alloc(size)
		if _, err := f.rw.WriteAt(make([]byte, size), int64(l.Addr)); err != nil {
			return nil, nil, fmt.Errorf("allocating chunk storage: %w", err)
		}
		fill.AllocTime = message.AllocEarly
	}

	var chunks []chunk.Chunk
	if raw != nil {
		pipe := filter.NewPipeline(meta.filters, int(meta.dtype.Size))
		grid := chunk.Grid{Dims: dims, ChunkDims: l.ChunkDims}
		for i := range grid.Len() {
			off := grid.Offset(i)
			data := layout.Gather(raw, dims, off, l.ChunkDims, l.ElemSize)
			stored, mask, err := pipe.Encode(data)
			if errors.Is(err, filter.ErrUnavailable) {
				return nil, nil, fmt.Errorf("%w: chunk %v: %w", ErrUnsupported, off, err)
			}
			if err != nil {
				return nil, nil, fmt.Errorf("chunk %v: %w", off, err)
			}
			c, err := f.storeChunk(l, ext, off, stored, mask)
			if err != nil {
				return nil, nil, err
			}
			chunks = append(chunks, c)
		}
	}
	if err := layout.WriteIndex(f.rw, f.alloc, l, ext, chunks, meta.filtered(), f.sz); err != nil {
		return nil, nil, fmt.Errorf("writing chunk index: %w", err)
	}
	return l, fill, nil
}

// storeChunk writes stored bytes of the chunk at off to new space, or to
// its fixed place in implicit storage.
func (f *File) storeChunk(l *message.Layout, ext layout.Extent, off []uint64, stored []byte, mask uint32) (chunk.Chunk, error) {
	c := chunk.Chunk{Offset: off, Size: uint64(len(stored)), FilterMask: mask}
	if l.Index == message.IndexImplicit {
		addr, ok := layout.ImplicitAddr(l, ext, off)
		if !ok {
			return c, fmt.Errorf("%w: chunk %v outside implicit storage", ErrInvalidChunk, off)
		}
		c.Addr = addr
	} else {
		c.Addr = f.alloc.Alloc(c.Size)
	}
	if _, err := f.rw.WriteAt(stored, int64(c.Addr)); err != nil {
		return c, fmt.Errorf("writing chunk %v: %w", off, err)
	}
	return c, nil
}

// WriteChunk stores data as the chunk at offset, bypassing the filter
// pipeline. data must already be filtered; filterMask marks the filters that
// were not applied. Unfiltered datasets need exactly one chunk of bytes.
func (d *Dataset) WriteChunk(offset []uint64, filterMask uint32, data []byte) error {
	defer lock()()
	f := d.file
	if err := f.checkWritable(); err != nil {
		return err
	}
	meta, err := d.reload()
	if err != nil {
		return err
	}
	if !meta.chunked() || meta.space == nil {
		return fmt.Errorf("%w: %s", ErrNotChunked, d.path)
	}
	l := meta.layout
	if !layout.Writable(l.Index) {
		return fmt.Errorf("%w: writing %s chunk index", ErrUnsupported, l.Index)
	}
	if err := checkChunkOffset(meta, offset); err != nil {
		return err
	}
	filtered := meta.filtered()
	if !filtered && uint64(len(data)) != l.ChunkBytes() {
		return fmt.Errorf("%w: %d bytes for a %d-byte chunk", ErrInvalidChunk, len(data), l.ChunkBytes())
	}
	if !filtered {
		filterMask = 0
	}

	ext := meta.extent()
	if l.Index == message.IndexImplicit {
		_, err := f.storeChunk(l, ext, offset, data, 0)
		return err
	}

	chunks, err := layout.ReadChunks(f.rw, l, ext, f.sz)
	if err != nil {
		return fmt.Errorf("%s: %w", d.path, err)
	}
	i := slices.IndexFunc(chunks, func(c chunk.Chunk) bool { return slices.Equal(c.Offset, offset) })
	size := uint64(len(data))
	switch {
	case i >= 0 && size <= chunks[i].Size:
		old := chunks[i]
		if _, err := f.rw.WriteAt(data, int64(old.Addr)); err != nil {
			return fmt.Errorf("writing chunk %v: %w", offset, err)
		}
		if size < old.Size {
			f.release(old.Addr+size, old.Size-size)
		}
		chunks[i].Size, chunks[i].FilterMask = size, filterMask
	case i >= 0:
		old := chunks[i]
		c, err := f.storeChunk(l, ext, slices.Clone(offset), data, filterMask)
		if err != nil {
			return err
		}
		chunks[i] = c
		f.release(old.Addr, old.Size)
	default:
		c, err := f.storeChunk(l, ext, slices.Clone(offset), data, filterMask)
		if err != nil {
			return err
		}
		chunks = append(chunks, c)
	}

	if err := layout.WriteIndex(f.rw, f.alloc, l, ext, chunks, filtered, f.sz); err != nil {
		return fmt.Errorf("writing chunk index: %w", err)
	}
	lbuf, err := l.Encode(f.sz)
	if err != nil {
		return err
	}
	msgs, err := replaceMsg(meta.hdr.Msgs, message.TypeLayout, lbuf)
	if err != nil {
		return err
	}
	return f.rewriteHeader(meta.hdr, msgs)
}

// release returns file space to the allocator. A failure only leaks space.
func (f *File) release(addr, size uint64) {
	if err := f.alloc.Free(addr, size); err != nil {
		log().Warn("releasing file space", zap.Uint64("addr", addr), zap.Uint64("size", size), zap.Error(err))
	}
}

// checkChunkOffset validates that offset names a chunk inside the dataset.
func checkChunkOffset(meta *datasetMeta, offset []uint64) error {
	dims := meta.space.Dims
	if len(offset) != len(dims) {
		return fmt.Errorf("%w: offset %v for rank %d", ErrInvalidChunk, offset, len(dims))
	}
	g := chunk.Grid{Dims: dims, ChunkDims: meta.layout.ChunkDims}
	if !g.Aligned(offset) {
		return fmt.Errorf("%w: offset %v is not a chunk origin inside %v", ErrInvalidChunk, offset, dims)
	}
	return nil
}
