// Package object reads and writes HDF5 object headers.
//
// Version 1 headers (written by older libraries) and version 2 headers
// ("OHDR", with continuation chunks "OCHK") are both read. New objects are
// always written as version 2.
package object

import (
	"errors"
	"fmt"
	"io"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/message"
)

var (
	ErrUnsupportedVersion = errors.New("object: unsupported header version")
	ErrNotFound           = errors.New("object: message not found")
	ErrShared             = errors.New("object: shared messages are not supported")
)

// maxContinuations bounds continuation chains so a corrupt file cannot loop.
const maxContinuations = 1024

// Message flag bits.
const (
	FlagConstant = 0x01
	FlagShared   = 0x02
)

// Msg is one raw header message.
type Msg struct {
	Type  message.Type
	Flags uint8
	Data  []byte
}

// Header is a decoded object header.
type Header struct {
	Version uint8
	Addr    uint64
	Msgs    []Msg

	// Version 2 layout of the header as read: prefix flags, first chunk
	// capacity and the continuation chunks that follow it.
	Flags  uint8
	Chunk0 int
	Conts  []message.Continuation

	sz binary.Sizes
}

// Read decodes the object header at addr, following continuation messages.
func Read(r io.ReaderAt, addr uint64, sz binary.Sizes) (*Header, error) {
	prefix, err := binary.ReadAt(r, addr, 4)
	if err != nil {
		return nil, fmt.Errorf("object header at %#x: %w", addr, err)
	}
	h := &Header{Addr: addr, sz: sz}
	if string(prefix) == "OHDR" {
		h.Version = 2
		err = h.readV2(r)
	} else {
		h.Version = prefix[0]
		if h.Version != 1 {
			return nil, fmt.Errorf("%w: %d at %#x", ErrUnsupportedVersion, h.Version, addr)
		}
		err = h.readV1(r)
	}
	if err != nil {
		return nil, fmt.Errorf("object header at %#x: %w", addr, err)
	}
	return h, nil
}

func (h *Header) readV1(r io.ReaderAt) error {
	pre, err := binary.ReadAt(r, h.Addr, 16)
	if err != nil {
		return err
	}
	d := binary.NewDecoder(pre, h.sz)
	d.Skip(2)
	nmsgs := int(d.U16())
	d.Skip(4)
	size := d.U32()

	pending := []message.Continuation{{Addr: h.Addr + 16, Length: uint64(size)}}
	for i := 0; len(pending) > 0; i++ {
		if i > maxContinuations {
			return errors.New("too many continuation blocks")
		}
		c := pending[0]
		pending = pending[1:]
		buf, err := binary.ReadAt(r, c.Addr, int(c.Length))
		if err != nil {
			return err
		}
		more, err := h.parseV1Block(buf)
		if err != nil {
			return err
		}
		pending = append(pending, more...)
	}
	if len(h.Msgs) > nmsgs {
		h.Msgs = h.Msgs[:nmsgs]
	}
	return nil
}

func (h *Header) parseV1Block(buf []byte) ([]message.Continuation, error) {
	var conts []message.Continuation
	d := binary.NewDecoder(buf, h.sz)
	for d.Len() >= 8 {
		typ := message.Type(d.U16())
		size := int(d.U16())
		flags := d.U8()
		d.Skip(3)
		data := d.Bytes(size)
		if err := d.Err(); err != nil {
			return nil, err
		}
		c, err := h.add(typ, flags, data)
		if err != nil {
			return nil, err
		}
		if c != nil {
			conts = append(conts, *c)
		}
	}
	return conts, nil
}

func (h *Header) readV2(r io.ReaderAt) error {
	pre, err := binary.ReadAt(r, h.Addr, 6)
	if err != nil {
		return err
	}
	if pre[4] != 2 {
		return fmt.Errorf("%w: OHDR version %d", ErrUnsupportedVersion, pre[4])
	}
	flags := pre[5]
	n := 6
	if flags&0x20 != 0 {
		n += 16
	}
	if flags&0x10 != 0 {
		n += 4
	}
	width := 1 << (flags & 0x03)
	sizeBuf, err := binary.ReadAt(r, h.Addr+uint64(n), width)
	if err != nil {
		return err
	}
	n += width
	chunk0 := binary.Uint(sizeBuf)
	h.Flags = flags
	h.Chunk0 = int(chunk0)

	// Read the whole first chunk, prefix included, so the checksum can be
	// verified over it.
	buf, err := binary.ReadAt(r, h.Addr, n+int(chunk0)+4)
	if err != nil {
		return err
	}
	pending, err := h.parseV2Chunk(buf, n, flags)
	if err != nil {
		return err
	}

	for i := 0; len(pending) > 0; i++ {
		if i > maxContinuations {
			return errors.New("too many continuation chunks")
		}
		c := pending[0]
		pending = pending[1:]
		h.Conts = append(h.Conts, c)
		buf, err := binary.ReadAt(r, c.Addr, int(c.Length))
		if err != nil {
			return err
		}
		if string(buf[:4]) != "OCHK" {
			return fmt.Errorf("continuation at %#x: bad signature %q", c.Addr, buf[:4])
		}
		more, err := h.parseV2Chunk(buf, 4, flags)
		if err != nil {
			return err
		}
		pending = append(pending, more...)
	}
	return nil
}

// parseV2Chunk decodes messages from buf[start:len-4] and verifies the
// trailing checksum over buf[:len-4].
func (h *Header) parseV2Chunk(buf []byte, start int, hdrFlags uint8) ([]message.Continuation, error) {
	end := len(buf) - 4
	d := binary.NewDecoder(buf[:end+4], h.sz)
	d.Seek(end)
	if err := d.VerifyChecksum(0); err != nil {
		return nil, err
	}

	msgHdr := 4
	if hdrFlags&0x04 != 0 {
		msgHdr += 2
	}
	var conts []message.Continuation
	d = binary.NewDecoder(buf[:end], h.sz)
	d.Seek(start)
	for d.Len() >= msgHdr {
		typ := message.Type(d.U8())
		size := int(d.U16())
		flags := d.U8()
		if hdrFlags&0x04 != 0 {
			d.Skip(2)
		}
		data := d.Bytes(size)
		if err := d.Err(); err != nil {
			return nil, err
		}
		c, err := h.add(typ, flags, data)
		if err != nil {
			return nil, err
		}
		if c != nil {
			conts = append(conts, *c)
		}
	}
	return conts, nil
}

func (h *Header) add(typ message.Type, flags uint8, data []byte) (*message.Continuation, error) {
	switch typ {
	case message.TypeNIL:
		return nil, nil
	case message.TypeContinuation:
		m, err := message.Decode(typ, data, h.sz)
		if err != nil {
			return nil, err
		}
		return m.(*message.Continuation), nil
	}
	h.Msgs = append(h.Msgs, Msg{Type: typ, Flags: flags, Data: data})
	return nil, nil
}

// Rewritable reports whether the header can be re-encoded in place with
// Encode: a version 2 header whose prefix carries no optional fields.
func (h *Header) Rewritable() bool {
	if h.Version != 2 || h.Flags&^0x03 != 0 {
		return false
	}
	flagBits, _ := chunk0Width(h.Chunk0)
	return flagBits == h.Flags&0x03
}

// Has reports whether the header carries a message of type t.
func (h *Header) Has(t message.Type) bool {
	for _, m := range h.Msgs {
		if m.Type == t {
			return true
		}
	}
	return false
}

// Find decodes the first message of type t.
func (h *Header) Find(t message.Type) (message.Message, error) {
	for _, m := range h.Msgs {
		if m.Type != t {
			continue
		}
		if m.Flags&FlagShared != 0 {
			return nil, fmt.Errorf("%w: type %#04x", ErrShared, uint16(t))
		}
		return message.Decode(t, m.Data, h.sz)
	}
	return nil, fmt.Errorf("%w: type %#04x", ErrNotFound, uint16(t))
}

// FindAll decodes every message of type t in header order.
func (h *Header) FindAll(t message.Type) ([]message.Message, error) {
	var out []message.Message
	for _, m := range h.Msgs {
		if m.Type != t {
			continue
		}
		if m.Flags&FlagShared != 0 {
			return nil, fmt.Errorf("%w: type %#04x", ErrShared, uint16(t))
		}
		dec, err := message.Decode(t, m.Data, h.sz)
		if err != nil {
			return nil, err
		}
		out = append(out, dec)
	}
	return out, nil
}

// Get decodes the first message of type t as T, e.g. Get[*message.Layout].
func Get[T message.Message](h *Header, t message.Type) (T, error) {
	var zero T
	m, err := h.Find(t)
	if err != nil {
		return zero, err
	}
	out, ok := m.(T)
	if !ok {
		return zero, fmt.Errorf("object: message %#04x decoded as %T", uint16(t), m)
	}
	return out, nil
}
