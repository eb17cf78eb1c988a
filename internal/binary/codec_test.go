package binary

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFields(t *testing.T) {
	sz := Sizes{Offset: 4, Length: 2}
	e := NewEncoder(sz)
	e.Raw([]byte("TEST"))
	e.U8(0x42)
	e.U16(0x0102)
	e.U32(0xdeadbeef)
	e.U64(1 << 40)
	e.Addr(0x1000)
	e.Length(77)
	e.Uint(0x030201, 3)
	e.Checksum(0)

	d := NewDecoder(e.Bytes(), sz)
	require.NoError(t, d.Signature("TEST"))
	assert.Equal(t, uint8(0x42), d.U8())
	assert.Equal(t, uint16(0x0102), d.U16())
	assert.Equal(t, uint32(0xdeadbeef), d.U32())
	assert.Equal(t, uint64(1<<40), d.U64())
	assert.Equal(t, uint64(0x1000), d.Addr())
	assert.Equal(t, uint64(77), d.Length())
	assert.Equal(t, uint64(0x030201), d.Uint(3))
	require.NoError(t, d.VerifyChecksum(0))
	assert.Equal(t, 0, d.Len())
}

func TestDecoderStickyError(t *testing.T) {
	d := NewDecoder([]byte{1, 2}, DefaultSizes)
	assert.Equal(t, uint16(0x0201), d.U16())
	assert.Equal(t, uint32(0), d.U32())
	assert.ErrorIs(t, d.Err(), ErrShortBuffer)
	assert.Equal(t, uint8(0), d.U8())
}

func TestDecoderChecksumMismatch(t *testing.T) {
	e := NewEncoder(DefaultSizes)
	e.Raw([]byte("abcd"))
	e.Checksum(0)
	buf := e.Bytes()
	buf[0] = 'x'

	d := NewDecoder(buf, DefaultSizes)
	d.Skip(4)
	assert.ErrorIs(t, d.VerifyChecksum(0), ErrChecksum)
}

func TestSignatureMismatch(t *testing.T) {
	d := NewDecoder([]byte("OHDR"), DefaultSizes)
	assert.Error(t, d.Signature("FAHD"))
}

func TestUndefined(t *testing.T) {
	assert.Equal(t, uint64(0xffff), Undefined(2))
	assert.Equal(t, uint64(0xffffffff), Undefined(4))
	assert.Equal(t, ^uint64(0), Undefined(8))
	assert.True(t, Sizes{Offset: 4, Length: 4}.IsUndefined(0xffffffff))
}

func TestSizesValidate(t *testing.T) {
	assert.NoError(t, DefaultSizes.Validate())
	assert.ErrorIs(t, Sizes{Offset: 3, Length: 8}.Validate(), ErrInvalidSize)
}

func TestReadAt(t *testing.T) {
	r := bytes.NewReader([]byte{0, 1, 2, 3, 4})
	b, err := ReadAt(r, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 4}, b)

	_, err = ReadAt(r, 4, 3)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestAlign(t *testing.T) {
	d := NewDecoder(make([]byte, 16), DefaultSizes)
	d.Skip(3)
	d.Align(0, 8)
	assert.Equal(t, 8, d.Pos())
	d.Align(0, 8)
	assert.Equal(t, 8, d.Pos())
}
