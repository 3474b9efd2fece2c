package framealloc

import (
	"encoding/binary"
	"unsafe"
)

const blockMagic = uint64(0x6b636f6c62657266)

// Block is one BlockGranularity region of address space chained into an
// Arena. The first BlockHeaderSize bytes carry a magic value and the
// reservation sequence number, the rest is handed out by the arena.
type Block struct {
	mem  []byte
	base uintptr // address of the first usable byte
	seq  uint64

	next      *Block // older block in the chain
	watermark int    // bytes used when this block was last displaced from head
	epoch     uint64 // stamped every time the block becomes head
}

func newBlock(mem []byte, seq uint64) *Block {
	if len(mem) != BlockGranularity {
		assertf("framealloc: block region is %d bytes, want %d", len(mem), BlockGranularity)
	}
	binary.LittleEndian.PutUint64(mem[0:8], blockMagic)
	binary.LittleEndian.PutUint64(mem[8:16], seq)
	return &Block{
		mem:  mem,
		base: uintptr(unsafe.Pointer(&mem[BlockHeaderSize])),
		seq:  seq,
	}
}

// Next returns the block that was head before this one, or nil.
func (b *Block) Next() *Block {
	return b.next
}

// Watermark returns how far the block was filled the last time it was
// displaced from the head position.
func (b *Block) Watermark() int {
	return b.watermark
}

// Data returns the first usable byte of the block.
func (b *Block) Data() unsafe.Pointer {
	return unsafe.Pointer(&b.mem[BlockHeaderSize])
}

// Contains reports whether ptr lies in the usable region of the block.
func (b *Block) Contains(ptr unsafe.Pointer) bool {
	p := uintptr(ptr)
	return p >= b.base && p < b.base+BlockCapacity
}

func (b *Block) valid() bool {
	return binary.LittleEndian.Uint64(b.mem[0:8]) == blockMagic &&
		binary.LittleEndian.Uint64(b.mem[8:16]) == b.seq
}

// at returns the address off bytes into the usable region; off must be
// below BlockCapacity.
func (b *Block) at(off int) unsafe.Pointer {
	return unsafe.Pointer(&b.mem[BlockHeaderSize+off])
}

func (b *Block) offsetOf(ptr unsafe.Pointer) int {
	return int(uintptr(ptr) - b.base)
}

func (b *Block) reset() {
	b.next, b.watermark, b.epoch = nil, 0, 0
}

// blockIndex finds the block holding an address without walking the chain.
// Regions are keyed by the 64 KiB windows they overlap: a region spans at
// most two windows and a window overlaps at most two regions.
type blockIndex map[uintptr][2]*Block

const windowShift = 16

func (b *Block) windows() (first, last uintptr) {
	start := uintptr(unsafe.Pointer(&b.mem[0]))
	return start >> windowShift, (start + BlockGranularity - 1) >> windowShift
}

func (ix blockIndex) add(blk *Block) {
	first, last := blk.windows()
	for w := first; w <= last; w++ {
		slot := ix[w]
		if slot[0] == nil {
			slot[0] = blk
		} else {
			slot[1] = blk
		}
		ix[w] = slot
	}
}

func (ix blockIndex) remove(blk *Block) {
	first, last := blk.windows()
	for w := first; w <= last; w++ {
		slot := ix[w]
		switch blk {
		case slot[0]:
			slot[0], slot[1] = slot[1], nil
		case slot[1]:
			slot[1] = nil
		}
		if slot[0] == nil {
			delete(ix, w)
		} else {
			ix[w] = slot
		}
	}
}

func (ix blockIndex) lookup(ptr unsafe.Pointer) *Block {
	for _, blk := range ix[uintptr(ptr)>>windowShift] {
		if blk != nil && blk.Contains(ptr) {
			return blk
		}
	}
	return nil
}
