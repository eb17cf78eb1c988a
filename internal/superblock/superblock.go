// Package superblock locates, decodes and encodes the HDF5 superblock.
//
// Versions 0 and 1 describe the root group through a symbol table entry.
// Versions 2 and 3 point straight at the root object header and carry a
// lookup3 checksum.
package superblock

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/tensorleaf/go-hdf5/internal/binary"
)

// Signature is the eight-byte HDF5 format signature.
var Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

var (
	ErrNotHDF5            = errors.New("superblock: not an HDF5 file")
	ErrUnsupportedVersion = errors.New("superblock: unsupported version")
)

// searchOffsets are the locations libhdf5 probes for a superblock (0, then
// powers of two from 512).
var searchOffsets = []int64{0, 512, 1024, 2048, 4096}

// Superblock is the decoded file-level metadata.
type Superblock struct {
	Version uint8
	Sizes   binary.Sizes
	Flags   uint8

	// Offset is where the signature was found.
	Offset      int64
	BaseAddr    uint64
	ExtAddr     uint64
	EOFAddr     uint64
	RootAddr    uint64
	IndexK      uint16 // indexed storage K, version 1 only
	GroupLeafK  uint16
	GroupInnerK uint16

	// Cached root symbol table addresses (versions 0 and 1).
	RootBTree uint64
	RootHeap  uint64
}

// Read finds and decodes the superblock.
func Read(r io.ReaderAt) (*Superblock, error) {
	sig := make([]byte, len(Signature)+1)
	for _, off := range searchOffsets {
		if n, err := r.ReadAt(sig, off); n < len(sig) {
			if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("superblock: probe %d: %w", off, err)
		}
		if !bytes.Equal(sig[:len(Signature)], Signature) {
			continue
		}
		sb, err := readAt(r, off, sig[len(Signature)])
		if err != nil {
			return nil, err
		}
		sb.Offset = off
		return sb, nil
	}
	return nil, ErrNotHDF5
}

// maxSize bounds every superblock layout with 8-byte offsets.
const maxSize = 8 + 16 + 8 + 6*8 + 40

func readAt(r io.ReaderAt, off int64, version uint8) (*Superblock, error) {
	buf := make([]byte, maxSize)
	n, err := r.ReadAt(buf, off)
	if n == 0 && err != nil {
		return nil, fmt.Errorf("superblock: read: %w", err)
	}
	buf = buf[:n]

	switch version {
	case 0, 1:
		return decodeV0(buf, version)
	case 2, 3:
		return decodeV2(buf, version)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

func decodeV0(buf []byte, version uint8) (*Superblock, error) {
	d := binary.NewDecoder(buf, binary.DefaultSizes)
	d.Skip(len(Signature) + 1)
	d.Skip(4) // free-space, root entry, reserved, shared header versions
	sb := &Superblock{Version: version}
	sb.Sizes.Offset = int(d.U8())
	sb.Sizes.Length = int(d.U8())
	d.Skip(1)
	sb.GroupLeafK = d.U16()
	sb.GroupInnerK = d.U16()
	d.Skip(4) // consistency flags
	if version == 1 {
		sb.IndexK = d.U16()
		d.Skip(2)
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("superblock v%d: %w", version, err)
	}
	if err := sb.Sizes.Validate(); err != nil {
		return nil, fmt.Errorf("superblock v%d: %w", version, err)
	}

	d = binary.NewDecoder(buf[d.Pos():], sb.Sizes)
	sb.BaseAddr = d.Addr()
	d.Addr() // free-space info
	sb.EOFAddr = d.Addr()
	d.Addr() // driver info
	sb.ExtAddr = sb.Sizes.Undefined()

	// Root group symbol table entry.
	d.Addr() // link name offset
	sb.RootAddr = d.Addr()
	cacheType := d.U32()
	d.Skip(4)
	if cacheType == 1 {
		sb.RootBTree = d.Addr()
		sb.RootHeap = d.Addr()
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("superblock v%d: %w", version, err)
	}
	return sb, nil
}

func decodeV2(buf []byte, version uint8) (*Superblock, error) {
	d := binary.NewDecoder(buf, binary.DefaultSizes)
	d.Skip(len(Signature) + 1)
	sb := &Superblock{Version: version}
	sb.Sizes.Offset = int(d.U8())
	sb.Sizes.Length = int(d.U8())
	sb.Flags = d.U8()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("superblock v%d: %w", version, err)
	}
	if err := sb.Sizes.Validate(); err != nil {
		return nil, fmt.Errorf("superblock v%d: %w", version, err)
	}

	d = binary.NewDecoder(buf, sb.Sizes)
	d.Skip(len(Signature) + 4)
	sb.BaseAddr = d.Addr()
	sb.ExtAddr = d.Addr()
	sb.EOFAddr = d.Addr()
	sb.RootAddr = d.Addr()
	if err := d.VerifyChecksum(0); err != nil {
		return nil, fmt.Errorf("superblock v%d: %w", version, err)
	}
	return sb, nil
}

// New returns a version 2 superblock for a freshly created file.
func New(sz binary.Sizes) *Superblock {
	return &Superblock{
		Version: 2,
		Sizes:   sz,
		ExtAddr: sz.Undefined(),
	}
}

// EncodedSize returns the size of a version 2/3 superblock.
func EncodedSize(sz binary.Sizes) int {
	return len(Signature) + 4 + 4*sz.Offset + 4
}

// Encode serializes the superblock as version 2 or 3.
func (sb *Superblock) Encode() ([]byte, error) {
	if sb.Version != 2 && sb.Version != 3 {
		return nil, fmt.Errorf("%w: cannot write version %d", ErrUnsupportedVersion, sb.Version)
	}
	if err := sb.Sizes.Validate(); err != nil {
		return nil, err
	}
	e := binary.NewEncoder(sb.Sizes)
	e.Raw(Signature)
	e.U8(sb.Version)
	e.U8(uint8(sb.Sizes.Offset))
	e.U8(uint8(sb.Sizes.Length))
	e.U8(sb.Flags)
	e.Addr(sb.BaseAddr)
	e.Addr(sb.ExtAddr)
	e.Addr(sb.EOFAddr)
	e.Addr(sb.RootAddr)
	e.Checksum(0)
	return e.Bytes(), nil
}
