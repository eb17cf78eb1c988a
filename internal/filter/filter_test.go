package filter

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	h5bin "github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

func sample(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i / 7)
	}
	return out
}

func TestCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		spec message.FilterSpec
	}{
		{"deflate", Spec(IDDeflate, false, 4)},
		{"shuffle", Spec(IDShuffle, false, 4)},
		{"fletcher32", Spec(IDFletcher32, false)},
		{"lz4", Spec(IDLZ4, false)},
		{"lz4 small blocks", Spec(IDLZ4, false, 100)},
		{"zstd", Spec(IDZstd, false, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.spec, 4)
			require.NoError(t, err)
			assert.Equal(t, tt.spec.ID, f.ID())

			in := sample(1001)
			enc, err := f.Encode(in)
			require.NoError(t, err)
			dec, err := f.Decode(enc)
			require.NoError(t, err)
			assert.Equal(t, in, dec)
		})
	}
}

func TestShuffleLayout(t *testing.T) {
	f := newShuffle(nil, 2)
	out, err := f.Encode([]byte{1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 3, 5, 2, 4, 6, 7}, out)
}

func TestFletcher32(t *testing.T) {
	f := fletcher32{}
	enc, err := f.Encode([]byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 0x02, 0x01, 0x02, 0x01}, enc)

	enc[0] ^= 0xff
	_, err = f.Decode(enc)
	assert.ErrorIs(t, err, ErrChecksum)

	_, err = f.Decode([]byte{1})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFletcher32AcceptsSwapped(t *testing.T) {
	data := []byte("abcdef")
	sum := h5bin.Fletcher32(data)
	swapped := sum>>24 | (sum>>8)&0xff00 | (sum<<8)&0xff0000 | sum<<24
	buf := append(bytes.Clone(data), 0, 0, 0, 0)
	h5bin.PutUint(buf[len(data):], uint64(swapped))

	got, err := fletcher32{}.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLZ4Incompressible(t *testing.T) {
	in := []byte{0x13, 0x9a, 0x44, 0x01, 0xfe}
	f := newLZ4(nil)
	enc, err := f.Encode(in)
	require.NoError(t, err)
	assert.Len(t, enc, 12+4+len(in))
	dec, err := f.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, in, dec)

	_, err = f.Decode(enc[:14])
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLZ4CorruptHeader(t *testing.T) {
	tests := []struct {
		name  string
		total uint64
		block uint32
	}{
		{"huge total", 1 << 62, 1 << 20},
		{"total past expansion bound", 255*8 + 1, 1 << 20},
		{"zero block", 16, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := binary.BigEndian.AppendUint64(nil, tt.total)
			buf = binary.BigEndian.AppendUint32(buf, tt.block)
			buf = append(buf, make([]byte, 8)...)
			var (
				err error
				dec []byte
			)
			assert.NotPanics(t, func() { dec, err = newLZ4(nil).Decode(buf) })
			assert.ErrorIs(t, err, ErrCorrupt)
			assert.Nil(t, dec)
		})
	}
}

func TestPipelineOrderAndMask(t *testing.T) {
	m := &message.Filters{List: []message.FilterSpec{
		Spec(IDShuffle, false),
		Spec(IDDeflate, false, 6),
		Spec(IDFletcher32, false),
	}}
	p := NewPipeline(m, 8)
	assert.Equal(t, 3, p.Len())

	in := sample(800)
	enc, mask, err := p.Encode(in)
	require.NoError(t, err)
	assert.Zero(t, mask)

	dec, err := p.Decode(enc, mask)
	require.NoError(t, err)
	assert.Equal(t, in, dec)

	// A chunk stored without any filter decodes when every bit is set.
	raw, err := p.Decode(in, 0b111)
	require.NoError(t, err)
	assert.Equal(t, in, raw)
}

func TestPipelineUnavailable(t *testing.T) {
	m := &message.Filters{List: []message.FilterSpec{
		Spec(IDSZIP, true),
		Spec(IDDeflate, false),
	}}
	p := NewPipeline(m, 4)

	enc, mask, err := p.Encode(sample(64))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), mask)

	dec, err := p.Decode(enc, mask)
	require.NoError(t, err)
	assert.Equal(t, sample(64), dec)

	_, err = p.Decode(enc, 0)
	assert.ErrorIs(t, err, ErrUnavailable)

	required := NewPipeline(&message.Filters{List: []message.FilterSpec{Spec(IDNBit, false)}}, 4)
	_, _, err = required.Encode(sample(8))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEmptyPipeline(t *testing.T) {
	p := NewPipeline(nil, 4)
	assert.True(t, p.Empty())
	out, mask, err := p.Encode([]byte{1})
	require.NoError(t, err)
	assert.Zero(t, mask)
	assert.Equal(t, []byte{1}, out)
}

func TestSpecNames(t *testing.T) {
	assert.Empty(t, Spec(IDDeflate, false).Name)
	assert.Equal(t, "zstd", Spec(IDZstd, true).Name)
	assert.True(t, Spec(IDZstd, true).Optional())
	assert.Equal(t, "filter-999", Name(999))
	assert.True(t, Available(IDLZ4))
	assert.False(t, Available(IDSZIP))
}
