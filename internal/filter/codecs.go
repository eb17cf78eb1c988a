package filter

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"

	h5bin "github.com/tensorleaf/go-hdf5/internal/binary"
)

type deflate struct{ level int }

func newDeflate(cd []uint32) deflate {
	level := 6
	if len(cd) > 0 && cd[0] <= 9 {
		level = int(cd[0])
	}
	return deflate{level: level}
}

func (deflate) ID() uint16 { return IDDeflate }

func (f deflate) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, f.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (deflate) Decode(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return out, nil
}

type shuffle struct{ size int }

func newShuffle(cd []uint32, elemSize int) shuffle {
	if len(cd) > 0 && cd[0] > 0 {
		return shuffle{size: int(cd[0])}
	}
	return shuffle{size: max(elemSize, 1)}
}

func (shuffle) ID() uint16 { return IDShuffle }

// Encode groups byte j of every element together. Trailing bytes that do not
// form a whole element are copied unchanged.
func (f shuffle) Encode(data []byte) ([]byte, error) {
	n := len(data) / max(f.size, 1)
	if f.size <= 1 || n <= 1 {
		return data, nil
	}
	out := make([]byte, len(data))
	for i := range n {
		for j := range f.size {
			out[j*n+i] = data[i*f.size+j]
		}
	}
	copy(out[n*f.size:], data[n*f.size:])
	return out, nil
}

func (f shuffle) Decode(data []byte) ([]byte, error) {
	n := len(data) / max(f.size, 1)
	if f.size <= 1 || n <= 1 {
		return data, nil
	}
	out := make([]byte, len(data))
	for i := range n {
		for j := range f.size {
			out[i*f.size+j] = data[j*n+i]
		}
	}
	copy(out[n*f.size:], data[n*f.size:])
	return out, nil
}

type fletcher32 struct{}

func (fletcher32) ID() uint16 { return IDFletcher32 }

func (fletcher32) Encode(data []byte) ([]byte, error) {
	out := make([]byte, len(data)+4)
	copy(out, data)
	h5bin.PutUint(out[len(data):], uint64(h5bin.Fletcher32(data)))
	return out, nil
}

// Decode strips and checks the trailing checksum. Files written by libhdf5
// before 1.6.3 stored it byte-swapped, so both orders are accepted.
func (fletcher32) Decode(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	body := data[:len(data)-4]
	stored := uint32(h5bin.Uint(data[len(data)-4:]))
	sum := h5bin.Fletcher32(body)
	swapped := sum>>24 | (sum>>8)&0xff00 | (sum<<8)&0xff0000 | sum<<24
	if stored != sum && stored != swapped {
		return nil, fmt.Errorf("%w: stored %#08x, computed %#08x", ErrChecksum, stored, sum)
	}
	return body, nil
}

// lz4Block is the default block size of the HDF5 LZ4 plugin.
const lz4Block = 1 << 30

// lz4MaxRatio bounds how far one input byte can expand.
const lz4MaxRatio = 255

// lz4Filter frames data as the HDF5 LZ4 plugin does: a big-endian 8-byte
// original size and 4-byte block size, then each block preceded by its
// big-endian 4-byte compressed size. A block that does not shrink is stored
// raw with its compressed size equal to its original size.
type lz4Filter struct{ block int }

func newLZ4(cd []uint32) lz4Filter {
	if len(cd) > 0 && cd[0] > 0 && cd[0] <= lz4Block {
		return lz4Filter{block: int(cd[0])}
	}
	return lz4Filter{block: lz4Block}
}

func (lz4Filter) ID() uint16 { return IDLZ4 }

func (f lz4Filter) Encode(data []byte) ([]byte, error) {
	block := min(f.block, max(len(data), 1))
	out := make([]byte, 12, 12+len(data)+len(data)/100+16)
	binary.BigEndian.PutUint64(out, uint64(len(data)))
	binary.BigEndian.PutUint32(out[8:], uint32(block))

	hash := make([]int, 1<<16)
	dst := make([]byte, lz4.CompressBlockBound(block))
	for start := 0; start < len(data); start += block {
		src := data[start:min(start+block, len(data))]
		n, err := lz4.CompressBlock(src, dst, hash)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		if n == 0 || n >= len(src) {
			out = binary.BigEndian.AppendUint32(out, uint32(len(src)))
			out = append(out, src...)
			continue
		}
		out = binary.BigEndian.AppendUint32(out, uint32(n))
		out = append(out, dst[:n]...)
	}
	return out, nil
}

func (lz4Filter) Decode(data []byte) ([]byte, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: lz4 header", ErrCorrupt)
	}
	total := binary.BigEndian.Uint64(data)
	block := uint64(binary.BigEndian.Uint32(data[8:]))
	if block == 0 && total > 0 {
		return nil, fmt.Errorf("%w: lz4 block size 0", ErrCorrupt)
	}
	if total > uint64(len(data)-12)*lz4MaxRatio {
		return nil, fmt.Errorf("%w: lz4 header declares %d bytes from %d", ErrCorrupt, total, len(data)-12)
	}
	out := make([]byte, total)
	src := data[12:]
	for pos := uint64(0); pos < total; {
		want := min(block, total-pos)
		if len(src) < 4 {
			return nil, fmt.Errorf("%w: lz4 block header at %d", ErrCorrupt, pos)
		}
		n := uint64(binary.BigEndian.Uint32(src))
		src = src[4:]
		if uint64(len(src)) < n {
			return nil, fmt.Errorf("%w: lz4 block at %d truncated", ErrCorrupt, pos)
		}
		if n == want {
			copy(out[pos:], src[:n])
		} else {
			got, err := lz4.UncompressBlock(src[:n], out[pos:pos+want])
			if err != nil {
				return nil, fmt.Errorf("lz4: %w", err)
			}
			if uint64(got) != want {
				return nil, fmt.Errorf("%w: lz4 block at %d gave %d bytes, want %d", ErrCorrupt, pos, got, want)
			}
		}
		src = src[n:]
		pos += want
	}
	return out, nil
}

type zstdFilter struct{ level zstd.EncoderLevel }

func newZstd(cd []uint32) zstdFilter {
	level := zstd.SpeedDefault
	if len(cd) > 0 && cd[0] > 0 {
		level = zstd.EncoderLevelFromZstd(int(cd[0]))
	}
	return zstdFilter{level: level}
}

func (zstdFilter) ID() uint16 { return IDZstd }

func (f zstdFilter) Encode(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(f.level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func (zstdFilter) Decode(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}
