// Package heap reads HDF5 local heaps, which hold the link names of
// symbol-table groups.
package heap

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tensorleaf/go-hdf5/internal/binary"
)

// Local is a loaded local heap data segment.
type Local struct {
	Addr     uint64
	DataAddr uint64
	data     []byte
}

// ReadLocal loads the local heap at addr.
func ReadLocal(r io.ReaderAt, addr uint64, sz binary.Sizes) (*Local, error) {
	hdrSize := 8 + 2*sz.Length + sz.Offset
	buf, err := binary.ReadAt(r, addr, hdrSize)
	if err != nil {
		return nil, fmt.Errorf("local heap at %#x: %w", addr, err)
	}
	d := binary.NewDecoder(buf, sz)
	if err := d.Signature("HEAP"); err != nil {
		return nil, fmt.Errorf("local heap at %#x: %w", addr, err)
	}
	if v := d.U8(); v != 0 {
		return nil, fmt.Errorf("local heap at %#x: unsupported version %d", addr, v)
	}
	d.Skip(3)
	size := d.Length()
	d.Length() // free list head
	h := &Local{Addr: addr, DataAddr: d.Addr()}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("local heap at %#x: %w", addr, err)
	}
	if h.data, err = binary.ReadAt(r, h.DataAddr, int(size)); err != nil {
		return nil, fmt.Errorf("local heap data at %#x: %w", h.DataAddr, err)
	}
	return h, nil
}

// String returns the NUL-terminated string at off.
func (h *Local) String(off uint64) (string, error) {
	if off >= uint64(len(h.data)) {
		return "", fmt.Errorf("local heap at %#x: offset %d past %d-byte segment", h.Addr, off, len(h.data))
	}
	s := h.data[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s), nil
}
