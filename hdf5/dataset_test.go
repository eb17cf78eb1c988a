package hdf5

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * 0.5
	}
	return out
}

func TestDatasetRoundTripIndexes(t *testing.T) {
	tests := []struct {
		name       string
		opts       []DatasetOption
		wantIndex  ChunkIndex
		wantChunks uint64
	}{
		{"fixed array default", []DatasetOption{WithChunks(4, 5)}, IndexFixedArray, 9},
		{"single default", []DatasetOption{WithChunks(10, 12)}, IndexSingle, 1},
		{"btree for unlimited", []DatasetOption{WithChunks(4, 4), WithMaxDims(0, 12)}, IndexBTreeV1, 9},
		{"explicit btree", []DatasetOption{WithChunks(3, 3), WithChunkIndex(IndexBTreeV1)}, IndexBTreeV1, 16},
		{"implicit", []DatasetOption{WithChunks(5, 6), WithChunkIndex(IndexImplicit)}, IndexImplicit, 4},
		{"fixed array with max dims", []DatasetOption{WithChunks(5, 6), WithMaxDims(20, 12)}, IndexFixedArray, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMemFile(t)
			data := seq(10 * 12)
			opts := append([]DatasetOption{WithShape(10, 12)}, tt.opts...)
			ds, err := f.Root().CreateDataset("d", data, opts...)
			require.NoError(t, err)

			kind, ok := ds.ChunkIndex()
			require.True(t, ok)
			assert.Equal(t, tt.wantIndex, kind)
			n, ok := ds.NumChunks()
			require.True(t, ok)
			assert.Equal(t, tt.wantChunks, n)

			reopened, err := f.OpenDataset("/d")
			require.NoError(t, err)
			var got []float64
			require.NoError(t, reopened.Read(&got))
			if diff := cmp.Diff(data, got); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, []uint64{10, 12}, reopened.Shape())
			assert.Equal(t, "chunked", reopened.Layout())
		})
	}
}

func TestDatasetContiguous(t *testing.T) {
	f := newMemFile(t)
	ds, err := f.Root().CreateDataset("ints", []int16{-3, -2, -1, 0, 1, 2}, WithShape(2, 3))
	require.NoError(t, err)
	assert.False(t, ds.IsChunked())
	assert.Equal(t, "contiguous", ds.Layout())
	assert.Nil(t, ds.ChunkShape())
	assert.Equal(t, 2, ds.NDim())
	assert.Equal(t, uint64(6), ds.NumElements())
	assert.Equal(t, "int16", ds.Datatype().String())

	var got []int64
	require.NoError(t, ds.Read(&got))
	assert.Equal(t, []int64{-3, -2, -1, 0, 1, 2}, got)

	raw, err := ds.ReadRaw()
	require.NoError(t, err)
	assert.Len(t, raw, 12)
}

func TestDatasetFilters(t *testing.T) {
	tests := []struct {
		name  string
		opts  []DatasetOption
		names []string
	}{
		{"deflate", []DatasetOption{WithDeflate(6)}, []string{"deflate"}},
		{"shuffle deflate fletcher", []DatasetOption{WithFletcher32(), WithDeflate(4), WithShuffle()}, []string{"shuffle", "deflate", "fletcher32"}},
		{"lz4", []DatasetOption{WithLZ4()}, []string{"lz4"}},
		{"zstd", []DatasetOption{WithShuffle(), WithZstd(3)}, []string{"shuffle", "zstd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMemFile(t)
			data := make([]int32, 64*64)
			for i := range data {
				data[i] = int32(i % 97)
			}
			opts := append([]DatasetOption{WithShape(64, 64), WithChunks(32, 32)}, tt.opts...)
			ds, err := f.Root().CreateDataset("f", data, opts...)
			require.NoError(t, err)

			var names []string
			for _, fi := range ds.Filters() {
				names = append(names, fi.Name)
				assert.True(t, fi.Available)
			}
			assert.Equal(t, tt.names, names)

			var got []int32
			require.NoError(t, ds.Read(&got))
			assert.Equal(t, data, got)

			require.NoError(t, ds.VisitChunks(func(c ChunkInfo) error {
				assert.Zero(t, c.FilterMask)
				assert.Empty(t, c.DisabledFilters())
				return nil
			}))
		})
	}
}

func TestDatasetCompressionShrinksChunks(t *testing.T) {
	f := newMemFile(t)
	data := make([]float64, 1000)
	ds, err := f.Root().CreateDataset("zeros", data, WithChunks(1000), WithDeflate(9))
	require.NoError(t, err)
	info, ok := ds.ChunkInfo(0)
	require.True(t, ok)
	assert.Less(t, info.Size, uint64(8000))
}

func TestCreateDatasetErrors(t *testing.T) {
	f := newMemFile(t)
	root := f.Root()

	_, err := root.CreateDataset("s", []string{"a"})
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = root.CreateDataset("s", 42)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = root.CreateDataset("s", []int32{1, 2, 3}, WithShape(2, 2))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = root.CreateDataset("s", []int32{1, 2}, WithDeflate(5))
	assert.ErrorIs(t, err, ErrInvalidChunk)
	_, err = root.CreateDataset("s", []int32{1, 2}, WithChunks(1, 1))
	assert.ErrorIs(t, err, ErrInvalidChunk)
	_, err = root.CreateDataset("s", []int32{1, 2}, WithChunks(0))
	assert.ErrorIs(t, err, ErrInvalidChunk)
	_, err = root.CreateDataset("s", []int32{1, 2}, WithChunks(1), WithMaxDims(0), WithChunkIndex(IndexFixedArray))
	assert.ErrorIs(t, err, ErrInvalidChunk)
	_, err = root.CreateDataset("s", []int32{1, 2}, WithChunks(1), WithChunkIndex(IndexImplicit), WithDeflate(1))
	assert.ErrorIs(t, err, ErrInvalidChunk)
	_, err = root.CreateDataset("s", []int32{1, 2}, WithChunks(1), WithChunkIndex(IndexBTreeV2))
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = root.CreateDataset("s", []int32{1, 2}, WithMaxDims(1))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = root.CreateDataset("a/b", []int32{1})
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = root.CreateDataset("dup", []int32{1})
	require.NoError(t, err)
	_, err = root.CreateDataset("dup", []int32{1})
	assert.ErrorIs(t, err, ErrExists)

	members, err := root.Members()
	require.NoError(t, err)
	assert.Equal(t, []string{"dup"}, members)
}

func TestReadTypeMismatch(t *testing.T) {
	f := newMemFile(t)
	ds, err := f.Root().CreateDataset("f", []float32{1, 2})
	require.NoError(t, err)
	var ints []int32
	assert.ErrorIs(t, ds.Read(&ints), ErrTypeMismatch)
	var floats []float64
	require.NoError(t, ds.Read(&floats))
	assert.Equal(t, []float64{1, 2}, floats)
}

func TestCreateEmptyDatasetReadsZeros(t *testing.T) {
	f := newMemFile(t)
	ds, err := f.Root().CreateEmptyDataset("e", Uint8, []uint64{3, 3}, WithChunks(2, 2))
	require.NoError(t, err)
	n, ok := ds.NumChunks()
	require.True(t, ok)
	assert.Zero(t, n)

	var got []uint8
	require.NoError(t, ds.Read(&got))
	assert.Equal(t, make([]uint8, 9), got)

	contig, err := f.Root().CreateEmptyDataset("c", Float64, []uint64{4})
	require.NoError(t, err)
	var fl []float64
	require.NoError(t, contig.Read(&fl))
	assert.Equal(t, make([]float64, 4), fl)
}
