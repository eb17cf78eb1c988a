package hdf5

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/chunk"
	"github.com/tensorleaf/go-hdf5/internal/layout"
)

// ChunkInfo describes one stored chunk of a dataset.
type ChunkInfo struct {
	// Offset is the element coordinate of the chunk's first element, one
	// entry per dataset dimension.
	Offset []uint64
	// FilterMask has bit i set when filter i of the pipeline was not
	// applied to this chunk.
	FilterMask uint32
	// Addr is the file address of the stored bytes.
	Addr uint64
	// Size is the stored (filtered) size in bytes.
	Size uint64
}

// DisabledFilters returns, in ascending order, the pipeline positions whose
// bit is set in the filter mask.
func (c ChunkInfo) DisabledFilters() []int {
	var out []int
	for i := range 32 {
		if c.FilterMask&(1<<uint(i)) != 0 {
			out = append(out, i)
		}
	}
	return out
}

func chunkInfo(c chunk.Chunk, rank int) ChunkInfo {
	info := ChunkInfo{
		Offset:     make([]uint64, rank),
		FilterMask: c.FilterMask,
		Addr:       c.Addr,
		Size:       c.Size,
	}
	copy(info.Offset, c.Offset)
	return info
}

// chunks reads the dataspace and the chunk index of d. mu must be held.
func (d *Dataset) chunks() ([]chunk.Chunk, int, error) {
	meta, err := d.reload()
	if err != nil {
		return nil, 0, err
	}
	if !meta.chunked() {
		return nil, 0, fmt.Errorf("%w: %s layout", ErrNotChunked, meta.layout.Class)
	}
	if meta.space == nil {
		return nil, 0, fmt.Errorf("%w: no dataspace", ErrNotChunked)
	}
	chunks, err := layout.ReadChunks(d.file.rw, meta.layout, meta.extent(), d.file.sz)
	if err != nil {
		return nil, 0, err
	}
	return chunks, meta.space.Rank(), nil
}

// ChunkInfo returns the index-th allocated chunk, counting in row-major
// order of chunk offsets. It returns false when the dataset is not chunked,
// when index is out of range, or when the chunk index cannot be read.
func (d *Dataset) ChunkInfo(index uint64) (ChunkInfo, bool) {
	defer lock()()
	chunks, rank, err := d.chunks()
	if err == nil && index >= uint64(len(chunks)) {
		err = fmt.Errorf("chunk %d of %d", index, len(chunks))
	}
	if err != nil {
		log().Debug("chunk info unavailable",
			zap.String("dataset", d.path), zap.Uint64("index", index), zap.Error(err))
		return ChunkInfo{}, false
	}
	return chunkInfo(chunks[index], rank), true
}

// NumChunks returns the number of allocated chunks. It returns false when
// the dataset is not chunked or the chunk index cannot be read.
func (d *Dataset) NumChunks() (uint64, bool) {
	defer lock()()
	chunks, _, err := d.chunks()
	if err != nil {
		log().Debug("chunk count unavailable", zap.String("dataset", d.path), zap.Error(err))
		return 0, false
	}
	return uint64(len(chunks)), true
}

// ChunkInfoByCoord returns the allocated chunk holding the element at coord.
func (d *Dataset) ChunkInfoByCoord(coord []uint64) (ChunkInfo, bool) {
	defer lock()()
	chunks, rank, err := d.chunks()
	if err == nil && len(coord) != rank {
		err = fmt.Errorf("coordinate %v for rank %d", coord, rank)
	}
	if err != nil {
		log().Debug("chunk lookup failed",
			zap.String("dataset", d.path), zap.Uint64s("coord", coord), zap.Error(err))
		return ChunkInfo{}, false
	}
	origin := make([]uint64, rank)
	for i, v := range coord {
		c := d.meta.layout.ChunkDims[i]
		origin[i] = v - v%c
	}
	i, found := slices.BinarySearchFunc(chunks, origin, func(c chunk.Chunk, off []uint64) int {
		return slices.Compare(c.Offset, off)
	})
	if !found {
		return ChunkInfo{}, false
	}
	return chunkInfo(chunks[i], rank), true
}

// VisitChunks calls fn for every allocated chunk in row-major order. The
// chunk table is read first, so fn may call other methods of the package.
// Iteration stops at the first error fn returns.
func (d *Dataset) VisitChunks(fn func(ChunkInfo) error) error {
	infos, err := d.chunkTable()
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dataset) chunkTable() ([]ChunkInfo, error) {
	defer lock()()
	chunks, rank, err := d.chunks()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	out := make([]ChunkInfo, len(chunks))
	for i, c := range chunks {
		out[i] = chunkInfo(c, rank)
	}
	return out, nil
}

// ReadChunk returns the stored bytes of the chunk starting at offset,
// still filtered, together with its filter mask.
func (d *Dataset) ReadChunk(offset []uint64) ([]byte, uint32, error) {
	defer lock()()
	chunks, _, err := d.chunks()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", d.path, err)
	}
	if err := checkChunkOffset(d.meta, offset); err != nil {
		return nil, 0, err
	}
	i, found := slices.BinarySearchFunc(chunks, offset, func(c chunk.Chunk, off []uint64) int {
		return slices.Compare(c.Offset, off)
	})
	if !found {
		return nil, 0, fmt.Errorf("%w: chunk %v of %s is not allocated", ErrNotFound, offset, d.path)
	}
	c := chunks[i]
	buf, err := binary.ReadAt(d.file.rw, c.Addr, int(c.Size))
	if err != nil {
		return nil, 0, fmt.Errorf("%s: chunk %v: %w", d.path, offset, err)
	}
	return buf, c.FilterMask, nil
}
