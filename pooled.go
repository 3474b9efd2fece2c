package framealloc

import (
	"unsafe"

	"github.com/go-logr/logr"
)

const nilEntry = int32(-1)

// poolEntry records one pooled region. Entries live out-of-band in
// PooledArena.entries and are linked through next indices, both for the
// per-class free lists and for the list of unused slots.
type poolEntry struct {
	ptr   unsafe.Pointer
	size  int    // bucket size of the class
	order uint64 // TailOrder, refreshed by TrimPools
	next  int32
}

// PooledArena adds size-classed recycling on top of a Strategy. Frees that
// land at the arena tail are reclaimed directly, all others are parked on a
// free list for their class and handed out again by Allocate. TrimPools
// folds the pooled regions that form a contiguous run below the tail back
// into the arena.
//
// PooledArena is not goroutine-safe. Use one per goroutine or SafeArena.
type PooledArena struct {
	strategy Strategy
	classes  SizeClasses
	pooling  bool

	heads   []int32 // per-class free list heads
	entries []poolEntry
	free    int32 // unused entry slots
	pooled  int
	npooled int

	log logr.Logger
}

// NewPooledArena creates a PooledArena over the strategy selected with
// WithStrategy, drawing blocks from cache.
func NewPooledArena(cache *BlockCache, opts ...Option) *PooledArena {
	cfg := newConfig(opts)
	return newPooledArena(newStrategy(cache, cfg), cfg)
}

// WrapStrategy creates a PooledArena over an existing strategy.
func WrapStrategy(s Strategy, opts ...Option) *PooledArena {
	return newPooledArena(s, newConfig(opts))
}

func newPooledArena(s Strategy, cfg config) *PooledArena {
	p := &PooledArena{
		strategy: s,
		classes:  cfg.classes,
		pooling:  cfg.pooling,
		heads:    make([]int32, cfg.classes.NumClasses()),
		free:     nilEntry,
		log:      cfg.log,
	}
	p.resetLists()
	return p
}

func (p *PooledArena) resetLists() {
	for i := range p.heads {
		p.heads[i] = nilEntry
	}
	p.entries = p.entries[:0]
	p.free = nilEntry
	p.pooled, p.npooled = 0, 0
}

// Allocate returns at least BucketSize(SizeClassOf(size)) bytes. A pooled
// region of the class is reused when available, otherwise the strategy
// allocates a full bucket.
func (p *PooledArena) Allocate(size int) unsafe.Pointer {
	if !p.pooling {
		return p.strategy.Allocate(size)
	}
	checkSize("allocate", size)
	class := p.classes.SizeClassOf(size)
	if idx := p.heads[class]; idx != nilEntry {
		e := p.entries[idx]
		p.heads[class] = e.next
		p.pooled -= e.size
		p.npooled--
		p.freeSlot(idx)
		return e.ptr
	}
	return p.strategy.Allocate(p.classes.BucketSize(class))
}

// Deallocate frees ptr, allocated by Allocate with the same size. The region
// is reclaimed by the strategy when it is the tail, pooled otherwise.
func (p *PooledArena) Deallocate(ptr unsafe.Pointer, size int) {
	if !p.pooling {
		p.strategy.Deallocate(ptr, size)
		return
	}
	checkSize("deallocate", size)
	class := p.classes.SizeClassOf(size)
	bucket := p.classes.BucketSize(class)
	if p.strategy.IsLastBlock(ptr, bucket) {
		p.strategy.DeallocateLast(ptr, bucket)
		return
	}
	p.push(class, ptr, bucket)
}

// Reallocate resizes ptr from oldSize to newSize. Within one size class the
// pointer is kept. A tail region is resized by the strategy, anything else
// is moved and the old region pooled.
func (p *PooledArena) Reallocate(ptr unsafe.Pointer, newSize, oldSize int) unsafe.Pointer {
	if !p.pooling {
		return p.strategy.Reallocate(ptr, newSize, oldSize)
	}
	checkSize("reallocate", newSize)
	checkSize("reallocate", oldSize)
	oldClass, newClass := p.classes.SizeClassOf(oldSize), p.classes.SizeClassOf(newSize)
	if oldClass == newClass {
		return ptr
	}
	oldBucket, newBucket := p.classes.BucketSize(oldClass), p.classes.BucketSize(newClass)
	if p.strategy.IsLastBlock(ptr, oldBucket) {
		return p.strategy.ReallocateLast(ptr, newBucket, oldBucket)
	}
	nptr := p.Allocate(newSize)
	n := min(newSize, oldSize)
	copy(unsafe.Slice((*byte)(nptr), n), unsafe.Slice((*byte)(ptr), n))
	p.Deallocate(ptr, oldSize)
	return nptr
}

func (p *PooledArena) push(class int, ptr unsafe.Pointer, bucket int) {
	poison(ptr, bucket)
	idx := p.newSlot()
	p.entries[idx] = poolEntry{ptr: ptr, size: bucket, next: p.heads[class]}
	p.heads[class] = idx
	p.pooled += bucket
	p.npooled++
}

func (p *PooledArena) newSlot() int32 {
	if idx := p.free; idx != nilEntry {
		p.free = p.entries[idx].next
		return idx
	}
	p.entries = append(p.entries, poolEntry{})
	return int32(len(p.entries) - 1)
}

func (p *PooledArena) freeSlot(idx int32) {
	p.entries[idx] = poolEntry{next: p.free}
	p.free = idx
}

// ReleaseAll clears every free list and releases the strategy.
func (p *PooledArena) ReleaseAll() {
	p.resetLists()
	p.strategy.ReleaseAll()
}

// PooledBytes returns the bytes parked on free lists.
func (p *PooledArena) PooledBytes() int {
	return p.pooled
}

// PooledEntries returns the number of regions parked on free lists.
func (p *PooledArena) PooledEntries() int {
	return p.npooled
}

// Pooling reports whether size-class recycling is enabled.
func (p *PooledArena) Pooling() bool {
	return p.pooling
}

// Strategy returns the underlying allocator.
func (p *PooledArena) Strategy() Strategy {
	return p.strategy
}

// Metrics returns the strategy metrics completed with pool usage.
func (p *PooledArena) Metrics() Metrics {
	m := p.strategy.Metrics()
	m.Pooled = p.pooled
	m.PooledEntries = p.npooled
	return m
}
