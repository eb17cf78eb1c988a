package h5test_test

import (
	"os"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorleaf/go-hdf5/hdf5"
	"github.com/tensorleaf/go-hdf5/hdf5/h5test"
)

func TestRandomFilename(t *testing.T) {
	re := regexp.MustCompile(`^[a-zA-Z0-9]{8}$`)
	seen := map[string]bool{}
	for range 100 {
		name := h5test.RandomFilename()
		assert.Regexp(t, re, name)
		seen[name] = true
	}
	assert.Greater(t, len(seen), 90)
}

func TestNewInMemoryFile(t *testing.T) {
	f, err := h5test.NewInMemoryFile()
	require.NoError(t, err)
	assert.Len(t, f.Name(), h5test.FilenameLen)
	assert.True(t, f.IsWritable())

	_, err = f.Root().CreateGroup("g")
	require.NoError(t, err)
	require.NoError(t, f.Flush())
	require.NoError(t, f.Close())

	_, err = os.Stat(f.Name())
	assert.True(t, os.IsNotExist(err), "in-memory file left %s on disk", f.Name())
}

// A 4x6 int32 dataset split into 2x3 chunks has four chunks in row-major
// order.
func TestChunkQueriesOnInMemoryFile(t *testing.T) {
	f := h5test.MustInMemoryFile(t)
	data := make([]int32, 24)
	for i := range data {
		data[i] = int32(i)
	}
	ds, err := f.Root().CreateDataset("grid", data, hdf5.WithShape(4, 6), hdf5.WithChunks(2, 3))
	require.NoError(t, err)

	n, ok := ds.NumChunks()
	require.True(t, ok)
	assert.Equal(t, uint64(4), n)

	info, ok := ds.ChunkInfo(2)
	require.True(t, ok)
	assert.Equal(t, []uint64{2, 0}, info.Offset)
	assert.Positive(t, info.Size)
	assert.Empty(t, info.DisabledFilters())

	_, ok = ds.ChunkInfo(4)
	assert.False(t, ok)
	_, ok = ds.ChunkInfo(10)
	assert.False(t, ok)

	ref := ds.Ref()
	assert.Equal(t, hdf5.ObjectRefSize, hdf5.RefObject.Size())
	obj, err := f.Dereference(ref)
	require.NoError(t, err)
	assert.IsType(t, &hdf5.Dataset{}, obj)
}
