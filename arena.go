package framealloc

import (
	"unsafe"

	"github.com/go-logr/logr"
)

// tailOrderShift leaves room for any in-block end offset below the epoch.
const tailOrderShift = 16

// Arena is a block-chain bump allocator. It owns a singly-linked chain of
// blocks obtained from a BlockCache and a bump offset into the head block.
// Frees at the tail retract the offset; frees elsewhere are not reclaimed by
// the Arena, wrap it in a PooledArena to recycle them.
//
// Arena is not goroutine-safe. Use one per goroutine or SafeArena.
type Arena struct {
	cache   *BlockCache
	head    *Block
	offset  int // bump cursor into head, meaningful only while head != nil
	nblocks int
	spare   *Block // emptied head kept off the chain for the next grow
	index   blockIndex

	sink Sink
	log  logr.Logger
}

// NewArena creates an empty Arena drawing blocks from cache.
func NewArena(cache *BlockCache, opts ...Option) *Arena {
	return newArena(cache, newConfig(opts))
}

func newArena(cache *BlockCache, cfg config) *Arena {
	if cache == nil {
		assertf("framealloc: arena needs a BlockCache")
	}
	return &Arena{cache: cache, index: blockIndex{}, sink: cfg.sink, log: cfg.log}
}

// Allocate returns size bytes rounded up to Alignment. size must be in
// (0, MaxBlockSize]. When the head block cannot take the request the
// BlockCache promotes an older block with enough room or supplies a new one.
func (a *Arena) Allocate(size int) unsafe.Pointer {
	checkSize("allocate", size)
	size = alignUp(size)
	if a.head == nil || a.offset+size > BlockCapacity {
		a.grow(size)
	}
	ptr := a.head.at(a.offset)
	a.offset += size
	a.sink.Allocated(size)
	return ptr
}

func (a *Arena) grow(size int) {
	head, offset, pushed := a.cache.reserve(a.head, a.offset, size, a.spare)
	if pushed {
		a.nblocks++
		a.index.add(head)
		if head == a.spare {
			a.spare = nil
		} else {
			a.sink.BlockAcquired(BlockGranularity)
			a.log.V(1).Info("arena acquired block", "blocks", a.nblocks)
		}
	}
	a.head, a.offset = head, offset
}

// Reallocate resizes the allocation at ptr from oldSize to newSize. The tail
// allocation is resized in place when the head block has room, anything else
// is moved: allocate newSize, copy, deallocate the old region.
func (a *Arena) Reallocate(ptr unsafe.Pointer, newSize, oldSize int) unsafe.Pointer {
	checkSize("reallocate", newSize)
	checkSize("reallocate", oldSize)
	newSize, oldSize = alignUp(newSize), alignUp(oldSize)
	if a.IsLastBlock(ptr, oldSize) && a.offset-oldSize+newSize <= BlockCapacity {
		a.resize(ptr, newSize, oldSize)
		return ptr
	}
	if newSize == oldSize {
		return ptr
	}
	return a.move(ptr, newSize, oldSize)
}

// ReallocateLast is Reallocate for a ptr the caller guarantees is the most
// recent allocation. The guarantee is only verified in framealloc_debug
// builds; violating it otherwise corrupts the arena.
func (a *Arena) ReallocateLast(ptr unsafe.Pointer, newSize, oldSize int) unsafe.Pointer {
	checkSize("reallocate", newSize)
	checkSize("reallocate", oldSize)
	newSize, oldSize = alignUp(newSize), alignUp(oldSize)
	if debugChecks && !a.IsLastBlock(ptr, oldSize) {
		assertf("framealloc: ReallocateLast on %p which is not the last allocation", ptr)
	}
	if a.offset-oldSize+newSize <= BlockCapacity {
		a.resize(ptr, newSize, oldSize)
		return ptr
	}
	return a.move(ptr, newSize, oldSize)
}

func (a *Arena) resize(ptr unsafe.Pointer, newSize, oldSize int) {
	if newSize < oldSize {
		poison(unsafe.Add(ptr, newSize), oldSize-newSize)
	}
	a.offset += newSize - oldSize
	a.sink.Deallocated(oldSize)
	a.sink.Allocated(newSize)
}

func (a *Arena) move(ptr unsafe.Pointer, newSize, oldSize int) unsafe.Pointer {
	nptr := a.Allocate(newSize)
	n := min(newSize, oldSize)
	copy(unsafe.Slice((*byte)(nptr), n), unsafe.Slice((*byte)(ptr), n))
	a.Deallocate(ptr, oldSize)
	return nptr
}

// Deallocate frees size bytes at ptr. At the tail of the head block the bump
// offset is retracted. At the watermark of an older block that block's
// watermark is retracted, and the block goes back to the BlockCache once it
// is empty. Any other region stays allocated until ReleaseAll.
func (a *Arena) Deallocate(ptr unsafe.Pointer, size int) {
	checkSize("deallocate", size)
	size = alignUp(size)
	if a.IsLastBlock(ptr, size) {
		a.sink.Deallocated(size)
		a.retract(ptr, size)
		return
	}
	if a.head == nil {
		assertf("framealloc: deallocate %p on an empty arena", ptr)
	}
	if a.head.Contains(ptr) {
		if a.head.offsetOf(ptr)+size > a.offset {
			assertf("framealloc: deallocate %p+%d past the bump offset %d", ptr, size, a.offset)
		}
		a.sink.Deallocated(size)
		return
	}
	prev := a.head
	for blk := a.head.next; blk != nil; prev, blk = blk, blk.next {
		if !blk.Contains(ptr) {
			continue
		}
		off := blk.offsetOf(ptr)
		if off+size > blk.watermark {
			assertf("framealloc: deallocate %p+%d past the block watermark %d", ptr, size, blk.watermark)
		}
		a.sink.Deallocated(size)
		if off+size == blk.watermark {
			poison(ptr, size)
			blk.watermark = off
			if blk.watermark == 0 {
				prev.next = blk.next
				a.release(blk)
			}
		}
		return
	}
	assertf("framealloc: deallocate %p not owned by this arena", ptr)
}

// DeallocateLast retracts the bump offset by size. The caller guarantees ptr
// is the most recent allocation; this is only verified in framealloc_debug
// builds.
func (a *Arena) DeallocateLast(ptr unsafe.Pointer, size int) {
	checkSize("deallocate", size)
	size = alignUp(size)
	if debugChecks {
		if !a.IsLastBlock(ptr, size) {
			assertf("framealloc: DeallocateLast on %p which is not the last allocation", ptr)
		}
	}
	a.sink.Deallocated(size)
	a.retract(ptr, size)
}

// retract pops size bytes off the head. An emptied head with an older block
// behind it is unlinked and the older block resumes at its watermark. The
// emptied block becomes the arena's spare, which the next grow pushes before
// asking the BlockCache. If a spare is already held the block goes back to
// the cache. A lone head is kept even when empty.
func (a *Arena) retract(ptr unsafe.Pointer, size int) {
	poison(ptr, size)
	a.offset -= size
	if a.offset == 0 && a.head.next != nil {
		blk := a.head
		a.head = blk.next
		a.offset = a.head.watermark
		if a.spare != nil {
			a.release(blk)
			return
		}
		a.nblocks--
		a.index.remove(blk)
		blk.reset()
		a.spare = blk
	}
}

func (a *Arena) release(blk *Block) {
	a.nblocks--
	a.index.remove(blk)
	a.free(blk)
}

func (a *Arena) free(blk *Block) {
	a.sink.BlockReleased(BlockGranularity)
	a.log.V(1).Info("arena released block", "blocks", a.nblocks)
	a.cache.FreeBlock(blk)
}

// IsLastBlock reports whether ptr lies in the head block and ends exactly at
// the bump offset, that is whether Deallocate(ptr, size) would give the bytes
// back for immediate reuse.
func (a *Arena) IsLastBlock(ptr unsafe.Pointer, size int) bool {
	if a.head == nil || !a.head.Contains(ptr) {
		return false
	}
	size = alignUp(size)
	return size > 0 && a.head.offsetOf(ptr)+size == a.offset
}

// TailOrder orders regions by the recency of their block and then by end
// offset, which is descending end-address order within a block and chain
// order across blocks. Regions outside the chain order first.
func (a *Arena) TailOrder(ptr unsafe.Pointer, size int) uint64 {
	blk := a.index.lookup(ptr)
	if blk == nil {
		return 0
	}
	return blk.epoch<<tailOrderShift | uint64(blk.offsetOf(ptr)+alignUp(size))
}

// ReleaseAll returns every block to the BlockCache. The arena is left in the
// same state as a freshly constructed one.
func (a *Arena) ReleaseAll() {
	for blk := a.head; blk != nil; {
		next := blk.next
		a.release(blk)
		blk = next
	}
	if a.spare != nil {
		a.free(a.spare)
	}
	a.head, a.offset, a.spare = nil, 0, nil
}

// Head returns the block allocations are currently bumped from, nil while
// the arena is empty.
func (a *Arena) Head() *Block {
	return a.head
}

// Offset returns the bump offset into the head block.
func (a *Arena) Offset() int {
	return a.offset
}
