// Package binary encodes and decodes the little-endian structures of the
// HDF5 file format, including its variable-width offset and length fields.
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrShortBuffer is returned when a structure runs past its buffer.
	ErrShortBuffer = errors.New("binary: short buffer")

	// ErrInvalidSize is returned for offset or length widths HDF5 does not allow.
	ErrInvalidSize = errors.New("binary: offset/length size must be 2, 4 or 8")

	// ErrChecksum is returned when a stored lookup3 checksum does not match.
	ErrChecksum = errors.New("binary: checksum mismatch")
)

// Sizes carries the superblock's "size of offsets" and "size of lengths".
type Sizes struct {
	Offset int
	Length int
}

// DefaultSizes are the widths libhdf5 uses unless told otherwise.
var DefaultSizes = Sizes{Offset: 8, Length: 8}

// Validate reports whether both widths are legal.
func (s Sizes) Validate() error {
	for _, n := range []int{s.Offset, s.Length} {
		if n != 2 && n != 4 && n != 8 {
			return fmt.Errorf("%w: got %d", ErrInvalidSize, n)
		}
	}
	return nil
}

// Undefined returns the all-ones "undefined address" value for an offset width.
func (s Sizes) Undefined() uint64 {
	return Undefined(s.Offset)
}

// IsUndefined reports whether addr is the undefined address.
func (s Sizes) IsUndefined(addr uint64) bool {
	return addr == Undefined(s.Offset)
}

// Undefined returns a value with the low n bytes set.
func Undefined(n int) uint64 {
	if n >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(n)) - 1
}

// Decoder walks a byte slice. Errors are sticky: after the first short read
// every accessor returns zero and Err reports the failure.
type Decoder struct {
	buf []byte
	pos int
	sz  Sizes
	err error
}

// NewDecoder returns a decoder over buf.
func NewDecoder(buf []byte, sz Sizes) *Decoder {
	return &Decoder{buf: buf, sz: sz}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error { return d.err }

// Pos returns the number of bytes consumed.
func (d *Decoder) Pos() int { return d.pos }

// Len returns the number of unread bytes.
func (d *Decoder) Len() int { return len(d.buf) - d.pos }

// Sizes returns the configured widths.
func (d *Decoder) Sizes() Sizes { return d.sz }

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.buf) {
		d.err = fmt.Errorf("%w: need %d bytes at %d, have %d", ErrShortBuffer, n, d.pos, len(d.buf)-d.pos)
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

// Bytes returns the next n bytes without copying.
func (d *Decoder) Bytes(n int) []byte { return d.take(n) }

// Skip discards n bytes.
func (d *Decoder) Skip(n int) { d.take(n) }

// Seek moves to an absolute position within the buffer.
func (d *Decoder) Seek(pos int) {
	if d.err == nil && (pos < 0 || pos > len(d.buf)) {
		d.err = fmt.Errorf("%w: seek to %d of %d", ErrShortBuffer, pos, len(d.buf))
		return
	}
	d.pos = pos
}

// Align advances to the next multiple of n relative to base.
func (d *Decoder) Align(base, n int) {
	if rem := (d.pos - base) % n; rem != 0 {
		d.Skip(n - rem)
	}
}

func (d *Decoder) U8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) U16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *Decoder) U32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) U64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Uint reads an n-byte little-endian unsigned integer, 1 <= n <= 8.
func (d *Decoder) Uint(n int) uint64 {
	if n > 8 && d.err == nil {
		d.err = fmt.Errorf("%w: %d-byte integer", ErrInvalidSize, n)
	}
	return Uint(d.take(n))
}

// Addr reads a file address of the configured offset width.
func (d *Decoder) Addr() uint64 { return d.Uint(d.sz.Offset) }

// Length reads a length of the configured length width.
func (d *Decoder) Length() uint64 { return d.Uint(d.sz.Length) }

// Signature consumes four bytes and checks them against sig.
func (d *Decoder) Signature(sig string) error {
	b := d.take(len(sig))
	if d.err != nil {
		return d.err
	}
	if string(b) != sig {
		d.err = fmt.Errorf("binary: expected signature %q, got %q", sig, b)
	}
	return d.err
}

// VerifyChecksum checks the lookup3 checksum stored at the current position
// against buf[start:pos] and consumes it.
func (d *Decoder) VerifyChecksum(start int) error {
	end := d.pos
	stored := d.U32()
	if d.err != nil {
		return d.err
	}
	if got := Lookup3(d.buf[start:end]); got != stored {
		d.err = fmt.Errorf("%w: stored %#08x, computed %#08x", ErrChecksum, stored, got)
	}
	return d.err
}

// Uint decodes a little-endian unsigned integer of len(b) bytes.
func Uint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// PutUint encodes v into len(b) little-endian bytes.
func PutUint(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
}

// Encoder appends little-endian fields to a growing buffer.
type Encoder struct {
	buf []byte
	sz  Sizes
}

// NewEncoder returns an encoder using the given widths.
func NewEncoder(sz Sizes) *Encoder {
	return &Encoder{sz: sz}
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int { return len(e.buf) }

// Sizes returns the configured widths.
func (e *Encoder) Sizes() Sizes { return e.sz }

func (e *Encoder) U8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) U16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }

func (e *Encoder) U32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

func (e *Encoder) U64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

// Uint appends v as an n-byte little-endian integer.
func (e *Encoder) Uint(v uint64, n int) {
	start := len(e.buf)
	e.buf = append(e.buf, make([]byte, n)...)
	PutUint(e.buf[start:], v)
}

// Addr appends a file address.
func (e *Encoder) Addr(v uint64) { e.Uint(v, e.sz.Offset) }

// Length appends a length.
func (e *Encoder) Length(v uint64) { e.Uint(v, e.sz.Length) }

// Raw appends b verbatim.
func (e *Encoder) Raw(b []byte) { e.buf = append(e.buf, b...) }

// Zero appends n zero bytes.
func (e *Encoder) Zero(n int) {
	if n > 0 {
		e.buf = append(e.buf, make([]byte, n)...)
	}
}

// Checksum appends the lookup3 checksum of buf[start:].
func (e *Encoder) Checksum(start int) {
	e.U32(Lookup3(e.buf[start:]))
}

// ReadAt reads exactly n bytes at off.
func ReadAt(r io.ReaderAt, off uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if got, err := r.ReadAt(buf, int64(off)); err != nil && got < n {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %d bytes at %#x: %v", ErrShortBuffer, n, off, err)
		}
		return nil, fmt.Errorf("binary: read %d bytes at %#x: %w", n, off, err)
	}
	return buf, nil
}
