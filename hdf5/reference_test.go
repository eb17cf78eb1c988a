package hdf5

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceSizes(t *testing.T) {
	tests := []struct {
		ref  Reference
		size int
		name string
	}{
		{RefObject, 8, "object"},
		{RefRegion, 12, "region"},
		{RefStd, 64, "std"},
	}
	for _, tt := range tests {
		for range 3 {
			assert.Equal(t, tt.size, tt.ref.Size())
		}
		assert.Equal(t, tt.name, tt.ref.String())
	}
	assert.Zero(t, Reference(9).Size())

	assert.Equal(t, RegionRefSize, len(RegionRef{}))
	assert.Equal(t, StdRefSize, len(StdRef{}))
	assert.Equal(t, ObjectRefSize, ObjectRefType.Size())
}

func TestObjectReferences(t *testing.T) {
	f := newMemFile(t)
	g, err := f.Root().CreateGroup("g")
	require.NoError(t, err)
	ds, err := g.CreateDataset("temps", []float64{20.5, 21})
	require.NoError(t, err)

	refs := []ObjectRef{ds.Ref(), g.Ref()}
	rds, err := f.Root().CreateDataset("refs", refs)
	require.NoError(t, err)

	kind, ok := rds.ReferenceKind()
	require.True(t, ok)
	assert.Equal(t, RefObject, kind)
	assert.Equal(t, "reference", rds.Datatype().Class())
	_, ok = ds.ReferenceKind()
	assert.False(t, ok)

	reopened, err := f.OpenDataset("/refs")
	require.NoError(t, err)
	got, err := reopened.ReadObjectRefs()
	require.NoError(t, err)
	assert.Equal(t, refs, got)

	obj, err := f.Dereference(got[0])
	require.NoError(t, err)
	target, ok := obj.(*Dataset)
	require.True(t, ok)
	var temps []float64
	require.NoError(t, target.Read(&temps))
	assert.Equal(t, []float64{20.5, 21}, temps)

	obj, err = f.Dereference(got[1])
	require.NoError(t, err)
	_, ok = obj.(*Group)
	assert.True(t, ok)

	_, err = f.Dereference(0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = ds.ReadObjectRefs()
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
