// Package alloc hands out file space for a writable HDF5 file.
//
// Allocation appends at the end of the file unless a freed block can hold
// the request. Freed space only lives for the session; nothing is recorded
// in the file.
package alloc

import (
	"fmt"
	"slices"
)

// Block is a span of file space.
type Block struct {
	Addr uint64
	Size uint64
}

// End returns the first address after the block.
func (b Block) End() uint64 { return b.Addr + b.Size }

// Stats counts allocator activity.
type Stats struct {
	Allocs    int
	Reused    int
	BytesUsed uint64
	BytesFree uint64
}

// Allocator tracks the end of file and a first-fit free list.
type Allocator struct {
	eof   uint64
	free  []Block
	stats Stats
}

// New returns an allocator whose first allocation starts at eof.
func New(eof uint64) *Allocator {
	return &Allocator{eof: eof}
}

// EOF returns the current end of allocated space.
func (a *Allocator) EOF() uint64 { return a.eof }

// Stats returns the counters collected so far.
func (a *Allocator) Stats() Stats { return a.stats }

// Alloc reserves size bytes and returns their address.
func (a *Allocator) Alloc(size uint64) uint64 {
	a.stats.Allocs++
	a.stats.BytesUsed += size
	if size == 0 {
		return a.eof
	}
	for i, b := range a.free {
		if b.Size < size {
			continue
		}
		a.stats.Reused++
		a.stats.BytesFree -= size
		if b.Size == size {
			a.free = slices.Delete(a.free, i, i+1)
		} else {
			a.free[i] = Block{Addr: b.Addr + size, Size: b.Size - size}
		}
		return b.Addr
	}
	addr := a.eof
	a.eof += size
	return addr
}

// Free returns a block to the allocator. Adjacent free blocks are merged and
// a free block touching the end of file shrinks it.
func (a *Allocator) Free(addr, size uint64) error {
	if size == 0 {
		return nil
	}
	blk := Block{Addr: addr, Size: size}
	if blk.End() > a.eof || blk.End() < addr {
		return fmt.Errorf("alloc: free of [%#x, %#x) beyond end of file %#x", addr, blk.End(), a.eof)
	}
	i, _ := slices.BinarySearchFunc(a.free, addr, func(b Block, t uint64) int {
		switch {
		case b.Addr < t:
			return -1
		case b.Addr > t:
			return 1
		}
		return 0
	})
	if (i > 0 && a.free[i-1].End() > addr) || (i < len(a.free) && a.free[i].Addr < blk.End()) {
		return fmt.Errorf("alloc: double free of [%#x, %#x)", addr, blk.End())
	}
	a.free = slices.Insert(a.free, i, blk)
	a.stats.BytesFree += size
	a.stats.BytesUsed -= min(size, a.stats.BytesUsed)

	// Merge with the next block, then the previous one.
	if i+1 < len(a.free) && a.free[i].End() == a.free[i+1].Addr {
		a.free[i].Size += a.free[i+1].Size
		a.free = slices.Delete(a.free, i+1, i+2)
	}
	if i > 0 && a.free[i-1].End() == a.free[i].Addr {
		a.free[i-1].Size += a.free[i].Size
		a.free = slices.Delete(a.free, i, i+1)
		i--
	}
	if last := a.free[len(a.free)-1]; last.End() == a.eof {
		a.eof = last.Addr
		a.stats.BytesFree -= last.Size
		a.free = a.free[:len(a.free)-1]
	}
	return nil
}

// FreeBlocks returns the free list in address order.
func (a *Allocator) FreeBlocks() []Block { return slices.Clone(a.free) }
