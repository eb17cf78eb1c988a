package object

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

var sz = binary.DefaultSizes

func datasetMsgs(t *testing.T) []Msg {
	t.Helper()
	space := &message.Dataspace{Kind: message.SpaceSimple, Dims: []uint64{4, 4}}
	layout := &message.Layout{Class: message.LayoutContiguous, Addr: 2048, Size: 128}
	lbuf, err := layout.Encode(sz)
	require.NoError(t, err)
	return []Msg{
		{Type: message.TypeDataspace, Data: space.Encode(sz)},
		{Type: message.TypeDatatype, Flags: FlagConstant, Data: message.NewFloat(8).Encode()},
		{Type: message.TypeLayout, Data: lbuf},
	}
}

// place puts buf at addr inside an otherwise zero image.
func place(image []byte, addr int, buf []byte) []byte {
	if len(image) < addr+len(buf) {
		image = append(image, make([]byte, addr+len(buf)-len(image))...)
	}
	copy(image[addr:], buf)
	return image
}

func TestV2RoundTrip(t *testing.T) {
	msgs := datasetMsgs(t)
	capacity := Capacity(msgs)
	buf, err := Encode(msgs, capacity)
	require.NoError(t, err)
	assert.Len(t, buf, EncodedSize(capacity))

	image := place(nil, 100, buf)
	h, err := Read(bytes.NewReader(image), 100, sz)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), h.Version)
	require.Len(t, h.Msgs, 3)
	assert.Equal(t, msgs, h.Msgs)

	layout, err := Get[*message.Layout](h, message.TypeLayout)
	require.NoError(t, err)
	assert.Equal(t, uint64(2048), layout.Addr)

	_, err = h.Find(message.TypeFilters)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, h.Has(message.TypeDataspace))

	assert.Equal(t, capacity, h.Chunk0)
	assert.Empty(t, h.Conts)
	assert.True(t, h.Rewritable())
	again, err := Encode(h.Msgs, h.Chunk0)
	require.NoError(t, err)
	assert.Equal(t, buf, again)
}

func TestV2LargeCapacity(t *testing.T) {
	msgs := datasetMsgs(t)
	buf, err := Encode(msgs, 70000)
	require.NoError(t, err)
	h, err := Read(bytes.NewReader(buf), 0, sz)
	require.NoError(t, err)
	assert.Len(t, h.Msgs, 3)
}

func TestV2ChecksumMismatch(t *testing.T) {
	buf, err := Encode(datasetMsgs(t), MinChunk0)
	require.NoError(t, err)
	buf[12] ^= 0x55
	_, err = Read(bytes.NewReader(buf), 0, sz)
	assert.ErrorIs(t, err, binary.ErrChecksum)
}

func TestEncodeCapacityErrors(t *testing.T) {
	msgs := datasetMsgs(t)
	_, err := Encode(msgs, MsgsSize(msgs)-1)
	assert.Error(t, err)
	_, err = Encode(msgs, MsgsSize(msgs)+2)
	assert.Error(t, err)
	_, err = Encode(msgs, MsgsSize(msgs))
	assert.NoError(t, err)
}

func TestV2Continuation(t *testing.T) {
	msgs := datasetMsgs(t)
	ochk := EncodeContinuation(msgs[1:])
	assert.Len(t, ochk, ContinuationSize(msgs[1:]))

	first := []Msg{msgs[0], ContinuationMsg(500, len(ochk), sz)}
	hdr, err := Encode(first, MinChunk0)
	require.NoError(t, err)

	image := place(nil, 0, hdr)
	image = place(image, 500, ochk)
	h, err := Read(bytes.NewReader(image), 0, sz)
	require.NoError(t, err)
	assert.Equal(t, msgs, h.Msgs)
	assert.Equal(t, []message.Continuation{{Addr: 500, Length: uint64(len(ochk))}}, h.Conts)
}

func TestV1Header(t *testing.T) {
	space := (&message.Dataspace{Kind: message.SpaceSimple, Dims: []uint64{3}}).Encode(sz)
	padded := append(space, make([]byte, (8-len(space)%8)%8)...)

	e := binary.NewEncoder(sz)
	e.U8(1)
	e.U8(0)
	e.U16(2) // messages
	e.U32(1) // refcount
	e.U32(uint32(8 + len(padded) + 8))
	e.Zero(4)
	e.U16(uint16(message.TypeDataspace))
	e.U16(uint16(len(padded)))
	e.U8(0)
	e.Zero(3)
	e.Raw(padded)
	e.U16(uint16(message.TypeNIL))
	e.U16(0)
	e.Zero(4)

	h, err := Read(bytes.NewReader(e.Bytes()), 0, sz)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), h.Version)
	assert.False(t, h.Rewritable())
	ds, err := Get[*message.Dataspace](h, message.TypeDataspace)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, ds.Dims)
}

func TestSharedMessageRejected(t *testing.T) {
	msgs := []Msg{{Type: message.TypeDatatype, Flags: FlagShared, Data: []byte{0, 0}}}
	buf, err := Encode(msgs, MinChunk0)
	require.NoError(t, err)
	h, err := Read(bytes.NewReader(buf), 0, sz)
	require.NoError(t, err)
	_, err = h.Find(message.TypeDatatype)
	assert.ErrorIs(t, err, ErrShared)
}

func TestUnsupportedVersion(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{7, 0, 0, 0}), 0, sz)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestCapacityAndFits(t *testing.T) {
	small := []Msg{{Type: message.TypeGroupInfo, Data: message.EncodeGroupInfo()}}
	assert.Equal(t, MinChunk0, Capacity(small))

	// 114 bytes of data plus a 4-byte message header leaves a 2-byte gap.
	tight := []Msg{{Type: message.TypeNIL, Data: make([]byte, MinChunk0-2-v2MsgHeader)}}
	assert.Equal(t, MinChunk0-2, Capacity(tight))
	_, err := Encode(tight, Capacity(tight))
	assert.NoError(t, err)

	assert.True(t, Fits(small, MinChunk0))
	assert.True(t, Fits(tight, MinChunk0-2))
	assert.False(t, Fits(tight, MinChunk0))
	assert.False(t, Fits(tight, MinChunk0-3))
}
