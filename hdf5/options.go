package hdf5

import (
	"github.com/spf13/afero"

	"github.com/tensorleaf/go-hdf5/internal/filter"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

// FileOption configures how a file is opened or created.
type FileOption func(*fileOptions)

type fileOptions struct {
	offsetSize   int
	lengthSize   int
	fs           afero.Fs
	core         bool
	backingStore bool
	exclusive    bool
}

func defaultFileOptions() *fileOptions {
	return &fileOptions{
		offsetSize: 8,
		lengthSize: 8,
		fs:         afero.NewOsFs(),
	}
}

// WithOffsetSize sets the size in bytes for file offsets (2, 4, or 8).
func WithOffsetSize(size int) FileOption {
	return func(o *fileOptions) {
		if size == 2 || size == 4 || size == 8 {
			o.offsetSize = size
		}
	}
}

// WithLengthSize sets the size in bytes for lengths (2, 4, or 8).
func WithLengthSize(size int) FileOption {
	return func(o *fileOptions) {
		if size == 2 || size == 4 || size == 8 {
			o.lengthSize = size
		}
	}
}

// WithFs sets the filesystem files are opened on. The default is the OS
// filesystem.
func WithFs(fs afero.Fs) FileOption {
	return func(o *fileOptions) {
		if fs != nil {
			o.fs = fs
		}
	}
}

// WithCoreDriver keeps the whole file in memory. With backingStore the
// image is written to the file's path on Flush and Close; without it
// nothing touches the filesystem after open.
func WithCoreDriver(backingStore bool) FileOption {
	return func(o *fileOptions) {
		o.core = true
		o.backingStore = backingStore
	}
}

// WithExclusive makes Create fail with ErrExists when the file exists.
func WithExclusive() FileOption {
	return func(o *fileOptions) {
		o.exclusive = true
	}
}

// Unlimited marks an unlimited maximum dimension.
const Unlimited = message.Unlimited

// DatasetOption configures dataset creation options.
type DatasetOption func(*datasetOptions)

type datasetOptions struct {
	shape      []uint64
	chunks     []uint64
	maxDims    []uint64
	shuffle    bool
	fletcher32 bool
	compress   []message.FilterSpec
	index      ChunkIndex
	hasIndex   bool
}

func defaultDatasetOptions() *datasetOptions {
	return &datasetOptions{}
}

// WithShape sets the dataset dimensions. The default is a one-dimensional
// dataset holding every element of the data.
func WithShape(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.shape = dims
	}
}

// WithChunks sets the chunk dimensions for a chunked dataset.
// Required for resizable datasets and compression.
func WithChunks(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.chunks = dims
	}
}

// WithMaxDims sets the maximum dimensions for a resizable dataset.
// Use 0 or Unlimited for an unlimited dimension.
func WithMaxDims(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.maxDims = make([]uint64, len(dims))
		for i, d := range dims {
			if d == 0 {
				d = Unlimited
			}
			o.maxDims[i] = d
		}
	}
}

// WithDeflate adds the deflate filter at the given level (1-9). Out of range
// levels are ignored.
func WithDeflate(level int) DatasetOption {
	return func(o *datasetOptions) {
		if level >= 1 && level <= 9 {
			o.compress = append(o.compress, filter.Spec(filter.IDDeflate, false, uint32(level)))
		}
	}
}

// WithShuffle enables the shuffle filter (improves compression).
func WithShuffle() DatasetOption {
	return func(o *datasetOptions) {
		o.shuffle = true
	}
}

// WithFletcher32 enables Fletcher32 checksum validation.
func WithFletcher32() DatasetOption {
	return func(o *datasetOptions) {
		o.fletcher32 = true
	}
}

// WithLZ4 adds the LZ4 filter (id 32004) as an optional filter.
func WithLZ4() DatasetOption {
	return func(o *datasetOptions) {
		o.compress = append(o.compress, filter.Spec(filter.IDLZ4, true))
	}
}

// WithZstd adds the Zstandard filter (id 32015) at the given level.
func WithZstd(level int) DatasetOption {
	return func(o *datasetOptions) {
		var cd []uint32
		if level > 0 {
			cd = append(cd, uint32(level))
		}
		o.compress = append(o.compress, filter.Spec(filter.IDZstd, true, cd...))
	}
}

// WithFilter adds filter id with client data cd to the pipeline, after the
// compressors added so far. The filter need not have an implementation: an
// optional filter that cannot be applied is skipped for the chunk and marked
// in its filter mask, while a required one fails the write.
func WithFilter(id uint16, optional bool, cd ...uint32) DatasetOption {
	return func(o *datasetOptions) {
		o.compress = append(o.compress, filter.Spec(id, optional, cd...))
	}
}

// WithChunkIndex selects the chunk index written for the dataset. Without
// it, a one-chunk dataset gets IndexSingle, a dataset with an unlimited
// dimension gets IndexBTreeV1 and any other gets IndexFixedArray.
func WithChunkIndex(kind ChunkIndex) DatasetOption {
	return func(o *datasetOptions) {
		o.index = kind
		o.hasIndex = true
	}
}

// pipeline returns the filter pipeline in the order libhdf5 applies it:
// shuffle, then compression, then the checksum.
func (o *datasetOptions) pipeline(elemSize uint32) []message.FilterSpec {
	var out []message.FilterSpec
	if o.shuffle {
		out = append(out, filter.Spec(filter.IDShuffle, false, elemSize))
	}
	out = append(out, o.compress...)
	if o.fletcher32 {
		out = append(out, filter.Spec(filter.IDFletcher32, false))
	}
	return out
}
