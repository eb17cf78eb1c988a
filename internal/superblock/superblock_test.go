package superblock

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorleaf/go-hdf5/internal/binary"
)

func TestReadNotHDF5(t *testing.T) {
	_, err := Read(bytes.NewReader(make([]byte, 4096)))
	assert.ErrorIs(t, err, ErrNotHDF5)
}

func TestReadEmpty(t *testing.T) {
	_, err := Read(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrNotHDF5)
}

func TestReadUnsupportedVersion(t *testing.T) {
	data := make([]byte, 256)
	copy(data, Signature)
	data[8] = 9
	_, err := Read(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestV2RoundTrip(t *testing.T) {
	for _, sz := range []binary.Sizes{binary.DefaultSizes, {Offset: 4, Length: 4}, {Offset: 2, Length: 8}} {
		sb := New(sz)
		sb.EOFAddr = 4096
		sb.RootAddr = 48
		buf, err := sb.Encode()
		require.NoError(t, err)
		assert.Len(t, buf, EncodedSize(sz))

		got, err := Read(bytes.NewReader(buf))
		require.NoError(t, err)
		assert.Equal(t, uint8(2), got.Version)
		assert.Equal(t, sz, got.Sizes)
		assert.Equal(t, uint64(4096), got.EOFAddr)
		assert.Equal(t, uint64(48), got.RootAddr)
		assert.True(t, sz.IsUndefined(got.ExtAddr))
	}
}

func TestV2ChecksumMismatch(t *testing.T) {
	sb := New(binary.DefaultSizes)
	buf, err := sb.Encode()
	require.NoError(t, err)
	buf[20] ^= 0xff

	_, err = Read(bytes.NewReader(buf))
	assert.ErrorIs(t, err, binary.ErrChecksum)
}

func TestV2AtUserBlockOffset(t *testing.T) {
	sb := New(binary.DefaultSizes)
	sb.RootAddr = 600
	enc, err := sb.Encode()
	require.NoError(t, err)

	data := make([]byte, 512+len(enc))
	copy(data[512:], enc)
	got, err := Read(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(512), got.Offset)
	assert.Equal(t, uint64(600), got.RootAddr)
}

func TestEncodeRejectsV0(t *testing.T) {
	sb := &Superblock{Version: 0, Sizes: binary.DefaultSizes}
	_, err := sb.Encode()
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func buildV0(rootAddr, btree, heap uint64) []byte {
	e := binary.NewEncoder(binary.DefaultSizes)
	e.Raw(Signature)
	e.U8(0)      // version
	e.Raw([]byte{0, 0, 0, 0})
	e.U8(8)      // offsets
	e.U8(8)      // lengths
	e.U8(0)
	e.U16(4)     // group leaf K
	e.U16(16)    // group internal K
	e.U32(0)     // flags
	e.Addr(0)    // base
	e.Addr(binary.Undefined(8))
	e.Addr(8192) // EOF
	e.Addr(binary.Undefined(8))
	e.Addr(0)    // link name offset
	e.Addr(rootAddr)
	e.U32(1)     // cache type
	e.U32(0)
	e.Addr(btree)
	e.Addr(heap)
	return e.Bytes()
}

func TestReadV0(t *testing.T) {
	got, err := Read(bytes.NewReader(buildV0(96, 136, 680)))
	require.NoError(t, err)
	assert.Equal(t, uint8(0), got.Version)
	assert.Equal(t, uint64(96), got.RootAddr)
	assert.Equal(t, uint64(136), got.RootBTree)
	assert.Equal(t, uint64(680), got.RootHeap)
	assert.Equal(t, uint64(8192), got.EOFAddr)
	assert.Equal(t, uint16(4), got.GroupLeafK)
	assert.Equal(t, uint16(16), got.GroupInnerK)
}
