// Package btree reads version 1 B-trees (group symbol tables and chunk
// indexes), writes version 1 chunk indexes, and reads version 2 chunk
// indexes.
package btree

import (
	"errors"
	"fmt"
	"io"

	"github.com/tensorleaf/go-hdf5/internal/binary"
	"github.com/tensorleaf/go-hdf5/internal/chunk"
)

// Node types of a version 1 B-tree.
const (
	NodeGroup = 0
	NodeChunk = 1
)

// maxDepth bounds traversal so a corrupt tree cannot recurse forever.
const maxDepth = 64

var ErrCorrupt = errors.New("btree: corrupt node")

type v1Node struct {
	Type     uint8
	Level    uint8
	Keys     [][]byte
	Children []uint64
}

func v1HeaderSize(sz binary.Sizes) int { return 8 + 2*sz.Offset }

// readV1Node reads a node whose keys are keySize bytes each.
func readV1Node(r io.ReaderAt, addr uint64, keySize int, sz binary.Sizes) (*v1Node, error) {
	pre, err := binary.ReadAt(r, addr, v1HeaderSize(sz))
	if err != nil {
		return nil, err
	}
	d := binary.NewDecoder(pre, sz)
	if err := d.Signature("TREE"); err != nil {
		return nil, err
	}
	n := &v1Node{Type: d.U8(), Level: d.U8()}
	used := int(d.U16())

	body, err := binary.ReadAt(r, addr+uint64(len(pre)), (used+1)*keySize+used*sz.Offset)
	if err != nil {
		return nil, err
	}
	d = binary.NewDecoder(body, sz)
	for i := 0; i < used; i++ {
		n.Keys = append(n.Keys, d.Bytes(keySize))
		n.Children = append(n.Children, d.Addr())
	}
	n.Keys = append(n.Keys, d.Bytes(keySize))
	return n, d.Err()
}

// ChunkKeySize is the size of a v1 chunk key for a dataset of the given rank.
func ChunkKeySize(rank int) int { return 8 + 8*(rank+1) }

// ReadChunks returns every chunk indexed by the v1 B-tree at addr.
func ReadChunks(r io.ReaderAt, addr uint64, rank int, sz binary.Sizes) ([]chunk.Chunk, error) {
	var out []chunk.Chunk
	err := walkChunks(r, addr, rank, sz, 0, -1, &out)
	if err != nil {
		return nil, fmt.Errorf("chunk btree at %#x: %w", addr, err)
	}
	return out, nil
}

func walkChunks(r io.ReaderAt, addr uint64, rank int, sz binary.Sizes, depth, wantLevel int, out *[]chunk.Chunk) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: deeper than %d levels", ErrCorrupt, maxDepth)
	}
	n, err := readV1Node(r, addr, ChunkKeySize(rank), sz)
	if err != nil {
		return err
	}
	if n.Type != NodeChunk {
		return fmt.Errorf("%w: node type %d in chunk tree", ErrCorrupt, n.Type)
	}
	if wantLevel >= 0 && int(n.Level) != wantLevel {
		return fmt.Errorf("%w: level %d under level %d", ErrCorrupt, n.Level, wantLevel+1)
	}
	for i, child := range n.Children {
		if n.Level > 0 {
			if err := walkChunks(r, child, rank, sz, depth+1, int(n.Level)-1, out); err != nil {
				return err
			}
			continue
		}
		d := binary.NewDecoder(n.Keys[i], sz)
		c := chunk.Chunk{Size: uint64(d.U32()), FilterMask: d.U32(), Addr: child}
		c.Offset = make([]uint64, rank)
		for j := range c.Offset {
			c.Offset[j] = d.U64()
		}
		*out = append(*out, c)
	}
	return nil
}

// SymbolEntry is one symbol table entry of an old-style group.
type SymbolEntry struct {
	NameOffset uint64
	ObjectAddr uint64
	CacheType  uint32
	// LinkOffset is the heap offset of a soft link's target (cache type 2).
	LinkOffset uint64
}

// SymbolEntrySize is the encoded size of a symbol table entry.
func SymbolEntrySize(sz binary.Sizes) int { return 2*sz.Offset + 24 }

// ReadGroup returns the symbol table entries of the group B-tree at addr.
func ReadGroup(r io.ReaderAt, addr uint64, sz binary.Sizes) ([]SymbolEntry, error) {
	var out []SymbolEntry
	if err := walkGroup(r, addr, sz, 0, &out); err != nil {
		return nil, fmt.Errorf("group btree at %#x: %w", addr, err)
	}
	return out, nil
}

func walkGroup(r io.ReaderAt, addr uint64, sz binary.Sizes, depth int, out *[]SymbolEntry) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: deeper than %d levels", ErrCorrupt, maxDepth)
	}
	n, err := readV1Node(r, addr, sz.Length, sz)
	if err != nil {
		return err
	}
	if n.Type != NodeGroup {
		return fmt.Errorf("%w: node type %d in group tree", ErrCorrupt, n.Type)
	}
	for _, child := range n.Children {
		if n.Level > 0 {
			err = walkGroup(r, child, sz, depth+1, out)
		} else {
			err = readSymbolNode(r, child, sz, out)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func readSymbolNode(r io.ReaderAt, addr uint64, sz binary.Sizes, out *[]SymbolEntry) error {
	pre, err := binary.ReadAt(r, addr, 8)
	if err != nil {
		return err
	}
	d := binary.NewDecoder(pre, sz)
	if err := d.Signature("SNOD"); err != nil {
		return err
	}
	d.Skip(2)
	count := int(d.U16())

	body, err := binary.ReadAt(r, addr+8, count*SymbolEntrySize(sz))
	if err != nil {
		return err
	}
	d = binary.NewDecoder(body, sz)
	for range count {
		e := SymbolEntry{NameOffset: d.Addr(), ObjectAddr: d.Addr(), CacheType: d.U32()}
		d.Skip(4)
		scratch := d.Bytes(16)
		if e.CacheType == 2 && scratch != nil {
			e.LinkOffset = binary.Uint(scratch[:4])
		}
		*out = append(*out, e)
	}
	return d.Err()
}
