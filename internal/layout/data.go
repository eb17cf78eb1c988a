package layout

import (
	"fmt"
	"io"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

// ReadContiguous returns the raw bytes of a contiguous or compact dataset.
// Unallocated contiguous storage reads as n zero bytes.
func ReadContiguous(r io.ReaderAt, l *message.Layout, n uint64, sz binary.Sizes) ([]byte, error) {
	switch l.Class {
	case message.LayoutCompact:
		if uint64(len(l.Compact)) < n {
			return nil, fmt.Errorf("%w: compact data has %d bytes, want %d", ErrCorrupt, len(l.Compact), n)
		}
		return append([]byte(nil), l.Compact[:n]...), nil
	case message.LayoutContiguous:
		if sz.IsUndefined(l.Addr) || n == 0 {
			return make([]byte, n), nil
		}
		if l.Size < n {
			return nil, fmt.Errorf("%w: contiguous storage has %d bytes, want %d", ErrCorrupt, l.Size, n)
		}
		return binary.ReadAt(r, l.Addr, int(n))
	}
	return nil, fmt.Errorf("%w: %s layout is not contiguous", ErrUnsupported, l.Class)
}

// runs calls fn for every contiguous row shared by a chunk at off and a
// dataset of extent dims. Positions are in elements: ds within the dataset
// and ch within the chunk.
func runs(dims, off, chunkDims []uint64, fn func(ds, ch, n uint64)) {
	rank := len(dims)
	if rank == 0 {
		fn(0, 0, 1)
		return
	}
	ext := make([]uint64, rank)
	for d := range dims {
		if off[d] >= dims[d] {
			return
		}
		ext[d] = min(chunkDims[d], dims[d]-off[d])
	}
	dsStride := make([]uint64, rank)
	chStride := make([]uint64, rank)
	dsStride[rank-1], chStride[rank-1] = 1, 1
	for d := rank - 2; d >= 0; d-- {
		dsStride[d] = dsStride[d+1] * dims[d+1]
		chStride[d] = chStride[d+1] * chunkDims[d+1]
	}

	pos := make([]uint64, rank-1)
	for {
		ds := off[rank-1]
		var ch uint64
		for d, p := range pos {
			ds += (off[d] + p) * dsStride[d]
			ch += p * chStride[d]
		}
		fn(ds, ch, ext[rank-1])

		d := rank - 2
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < ext[d] {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return
		}
	}
}

// Scatter copies the decoded chunk at off into the row-major buffer dst
// holding the whole dataset. Parts of an edge chunk outside the dataset are
// ignored.
func Scatter(dst []byte, dims []uint64, src []byte, off, chunkDims []uint64, elemSize uint64) error {
	need := elemSize
	for _, c := range chunkDims {
		need *= c
	}
	if uint64(len(src)) < need {
		return fmt.Errorf("%w: chunk at %v has %d bytes, want %d", ErrCorrupt, off, len(src), need)
	}
	runs(dims, off, chunkDims, func(ds, ch, n uint64) {
		copy(dst[ds*elemSize:(ds+n)*elemSize], src[ch*elemSize:(ch+n)*elemSize])
	})
	return nil
}

// Gather extracts the full chunk at off from the row-major dataset buffer
// src. Elements past the dataset edge are zero.
func Gather(src []byte, dims []uint64, off, chunkDims []uint64, elemSize uint64) []byte {
	size := elemSize
	for _, c := range chunkDims {
		size *= c
	}
	out := make([]byte, size)
	runs(dims, off, chunkDims, func(ds, ch, n uint64) {
		copy(out[ch*elemSize:(ch+n)*elemSize], src[ds*elemSize:(ds+n)*elemSize])
	})
	return out
}
