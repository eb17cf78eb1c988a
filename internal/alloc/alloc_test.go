package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	a := New(48)
	assert.Equal(t, uint64(48), a.Alloc(16))
	assert.Equal(t, uint64(64), a.Alloc(100))
	assert.Equal(t, uint64(164), a.EOF())
	assert.Equal(t, uint64(164), a.Alloc(0))
	assert.Equal(t, Stats{Allocs: 3, BytesUsed: 116}, a.Stats())
}

func TestFreeReuse(t *testing.T) {
	a := New(0)
	first := a.Alloc(32)
	a.Alloc(8)
	require.NoError(t, a.Free(first, 32))
	assert.Equal(t, []Block{{Addr: 0, Size: 32}}, a.FreeBlocks())

	assert.Equal(t, uint64(0), a.Alloc(20))
	assert.Equal(t, []Block{{Addr: 20, Size: 12}}, a.FreeBlocks())
	assert.Equal(t, uint64(40), a.Alloc(16))
	assert.Equal(t, 1, a.Stats().Reused)
}

func TestFreeMergesAndShrinks(t *testing.T) {
	a := New(0)
	x := a.Alloc(10)
	y := a.Alloc(10)
	z := a.Alloc(10)
	a.Alloc(10)

	require.NoError(t, a.Free(x, 10))
	require.NoError(t, a.Free(z, 10))
	require.NoError(t, a.Free(y, 10))
	assert.Equal(t, []Block{{Addr: 0, Size: 30}}, a.FreeBlocks())

	require.NoError(t, a.Free(30, 10))
	assert.Empty(t, a.FreeBlocks())
	assert.Equal(t, uint64(0), a.EOF())
}

func TestFreeErrors(t *testing.T) {
	a := New(0)
	a.Alloc(16)
	assert.Error(t, a.Free(8, 16))

	require.NoError(t, a.Free(0, 8))
	assert.Error(t, a.Free(4, 2))
	assert.NoError(t, a.Free(0, 0))
}
