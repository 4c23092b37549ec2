// First-fit physical memory allocator for IDE bus-master DMA buffers
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dma implements the physical allocator backing ide.PhysAllocator:
// a fixed physical address range, carved with a first-fit free list, that
// the PCI bus-master IDE engine can address directly. Every allocation this
// driver ever makes through it is one of exactly two shapes (see
// ide.setupDMA): a page-sized, page-aligned per-drive sector buffer, and
// the 8-byte PRDT descriptor pointing at it. Region has no notion of either
// shape itself - it is handed sizes and alignments by the caller - but
// those two call sites are the only reason this package exists in this
// driver, unlike the teacher's runtime-wide DMA heap shared by arbitrary
// peripherals.
package dma

import (
	"container/list"
	"sync"
)

// Region represents a range of physical memory carved up for DMA buffers.
type Region struct {
	sync.Mutex

	start uint
	size  uint

	freeBlocks *list.List
	usedBlocks map[uint]*block
}

// NewRegion initializes a DMA region of the given size starting at the
// given physical address. The caller (platform.NewController) is
// responsible for ensuring the range does not overlap any other memory in
// use, since this package has no visibility into the rest of the address
// space - it only tracks what it itself has handed out.
func NewRegion(start uint, size uint) *Region {
	r := &Region{
		start: start,
		size:  size,
	}

	r.freeBlocks = list.New()
	r.freeBlocks.PushFront(&block{addr: start, size: size})
	r.usedBlocks = make(map[uint]*block)

	return r
}

// Alloc carves out a physically contiguous buffer of len(buf) bytes,
// copies buf into it, and returns its physical address - the form
// ide.setupDMA uses both for the per-drive sector buffer (4096-byte
// aligned) and, with the resulting address embedded in an 8-byte PRDT
// entry, for the PRDT descriptor itself (8-byte aligned). The optional
// alignment must be a power of 2; word alignment (4) is enforced when 0.
func (r *Region) Alloc(buf []byte, align int) (addr uint) {
	size := len(buf)

	if size == 0 {
		return 0
	}

	r.Lock()
	defer r.Unlock()

	b := r.alloc(uint(size), uint(align))
	b.write(0, buf)

	r.usedBlocks[b.addr] = b

	return b.addr
}

// Read reads exactly len(buf) bytes from a region address into buf. The
// address must have been returned by Alloc; a panic occurs if off/len(buf)
// run past the original allocation, since that can only mean a caller bug
// (e.g. ide.dmaRead reading past the sector buffer it allocated).
func (r *Region) Read(addr uint, off int, buf []byte) {
	size := len(buf)

	if addr == 0 || size == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]

	if !ok {
		panic("read of unallocated pointer")
	}

	if uint(off+size) > b.size {
		panic("invalid read parameters")
	}

	b.read(uint(off), buf)
}

// Write writes buf into a region address previously returned by Alloc, at
// the given offset.
func (r *Region) Write(addr uint, off int, buf []byte) {
	size := len(buf)

	if addr == 0 || size == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]

	if !ok {
		return
	}

	if uint(off+size) > b.size {
		panic("invalid write parameters")
	}

	b.write(uint(off), buf)
}

// Free releases a region address previously returned by Alloc back to the
// free list.
func (r *Region) Free(addr uint) {
	if addr == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()

	b, ok := r.usedBlocks[addr]

	if !ok {
		return
	}

	r.free(b)
	delete(r.usedBlocks, addr)
}

func (r *Region) defrag() {
	var prevBlock *block

	// find contiguous free blocks and combine them
	for e := r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		if prevBlock != nil {
			if prevBlock.addr+prevBlock.size == b.addr {
				prevBlock.size += b.size
				defer r.freeBlocks.Remove(e)
				continue
			}
		}

		prevBlock = e.Value.(*block)
	}
}

func (r *Region) alloc(size uint, align uint) *block {
	var e *list.Element
	var freeBlock *block
	var pad uint

	if align == 0 {
		// force word alignment
		align = 4
	}

	// find suitable block
	for e = r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		// pad to required alignment
		pad = -b.addr & (align - 1)
		size += pad

		if b.size >= size {
			freeBlock = b
			break
		}
	}

	if freeBlock == nil {
		panic("out of memory")
	}

	// allocate block from free linked list
	defer r.freeBlocks.Remove(e)

	// adjust block to desired size, add new block for remainder
	if rem := freeBlock.size - size; rem != 0 {
		newBlockAfter := &block{
			addr: freeBlock.addr + size,
			size: rem,
		}

		freeBlock.size = size
		r.freeBlocks.InsertAfter(newBlockAfter, e)
	}

	if pad != 0 {
		// claim padding space
		newBlockBefore := &block{
			addr: freeBlock.addr,
			size: pad,
		}

		freeBlock.addr += pad
		freeBlock.size -= pad
		r.freeBlocks.InsertBefore(newBlockBefore, e)
	}

	return freeBlock
}

func (r *Region) free(usedBlock *block) {
	for e := r.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		if b.addr > usedBlock.addr {
			r.freeBlocks.InsertBefore(usedBlock, e)
			r.defrag()
			return
		}
	}

	r.freeBlocks.PushBack(usedBlock)
}
