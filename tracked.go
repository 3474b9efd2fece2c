package framealloc

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
)

var errLiveAllocations = errors.New("framealloc: live allocations at release")

// trackedNode heads one heap allocation of a TrackedArena.
type trackedNode struct {
	prev, next *trackedNode
	mem        []byte
	ptr        unsafe.Pointer
	size       int
	seq        uint64
}

// TrackedArena is the debug fallback strategy. Every allocation is a
// separate Go heap object recorded in a doubly-linked list and an address
// index, every free is real and checked against that record. It trades
// speed for compatibility with the race detector, memory sanitizers and
// debuggers.
type TrackedArena struct {
	first, last *trackedNode
	index       map[uintptr]*trackedNode
	inUse       int
	reserved    int
	seq         uint64

	sink Sink
	log  logr.Logger
}

// NewTrackedArena creates an empty TrackedArena.
func NewTrackedArena(opts ...Option) *TrackedArena {
	return newTrackedArena(newConfig(opts))
}

func newTrackedArena(cfg config) *TrackedArena {
	return &TrackedArena{
		index: make(map[uintptr]*trackedNode),
		sink:  cfg.sink,
		log:   cfg.log,
	}
}

// Allocate returns size bytes rounded up to Alignment from the Go heap.
func (a *TrackedArena) Allocate(size int) unsafe.Pointer {
	checkSize("allocate", size)
	size = alignUp(size)
	mem := make([]byte, size+alignMask)
	pad := (Alignment - int(uintptr(unsafe.Pointer(&mem[0]))&alignMask)) & alignMask
	a.seq++
	node := &trackedNode{mem: mem, ptr: unsafe.Pointer(&mem[pad]), size: size, seq: a.seq}
	node.prev = a.last
	if a.last != nil {
		a.last.next = node
	} else {
		a.first = node
	}
	a.last = node
	a.index[uintptr(node.ptr)] = node
	a.inUse += size
	a.reserved += len(mem)
	a.sink.BlockAcquired(len(mem))
	a.sink.Allocated(size)
	return node.ptr
}

func (a *TrackedArena) lookup(ptr unsafe.Pointer, size int) *trackedNode {
	node, ok := a.index[uintptr(ptr)]
	if !ok {
		assertf("framealloc: %p is not a live tracked allocation", ptr)
	}
	if size = alignUp(size); node.size != size {
		assertf("framealloc: %p was allocated with %d bytes, freed with %d", ptr, node.size, size)
	}
	return node
}

// Reallocate moves ptr to a fresh allocation of newSize bytes unless the
// rounded size is unchanged.
func (a *TrackedArena) Reallocate(ptr unsafe.Pointer, newSize, oldSize int) unsafe.Pointer {
	checkSize("reallocate", newSize)
	node := a.lookup(ptr, oldSize)
	if alignUp(newSize) == node.size {
		return ptr
	}
	nptr := a.Allocate(newSize)
	n := min(alignUp(newSize), node.size)
	copy(unsafe.Slice((*byte)(nptr), n), unsafe.Slice((*byte)(ptr), n))
	a.Deallocate(ptr, oldSize)
	return nptr
}

// ReallocateLast is Reallocate; the tracked strategy checks every call.
func (a *TrackedArena) ReallocateLast(ptr unsafe.Pointer, newSize, oldSize int) unsafe.Pointer {
	return a.Reallocate(ptr, newSize, oldSize)
}

// Deallocate frees ptr. Unknown pointers and size mismatches panic.
func (a *TrackedArena) Deallocate(ptr unsafe.Pointer, size int) {
	node := a.lookup(ptr, size)
	poison(ptr, node.size)
	a.unlink(node)
	delete(a.index, uintptr(ptr))
	a.inUse -= node.size
	a.reserved -= len(node.mem)
	a.sink.Deallocated(node.size)
	a.sink.BlockReleased(len(node.mem))
}

// DeallocateLast is Deallocate; the tracked strategy checks every call.
func (a *TrackedArena) DeallocateLast(ptr unsafe.Pointer, size int) {
	a.Deallocate(ptr, size)
}

func (a *TrackedArena) unlink(node *trackedNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		a.first = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		a.last = node.prev
	}
	node.prev, node.next = nil, nil
}

// IsLastBlock reports whether ptr is a live allocation of size bytes. Every
// tracked free is a true free, so any live allocation qualifies.
func (a *TrackedArena) IsLastBlock(ptr unsafe.Pointer, size int) bool {
	node, ok := a.index[uintptr(ptr)]
	return ok && node.size == alignUp(size)
}

// TailOrder is the allocation sequence number of ptr, 0 if unknown.
func (a *TrackedArena) TailOrder(ptr unsafe.Pointer, size int) uint64 {
	if node, ok := a.index[uintptr(ptr)]; ok {
		return node.seq
	}
	return 0
}

// Walk calls fn for every live allocation, oldest first, until fn returns
// false.
func (a *TrackedArena) Walk(fn func(ptr unsafe.Pointer, size int) bool) {
	for node := a.first; node != nil; node = node.next {
		if !fn(node.ptr, node.size) {
			return
		}
	}
}

// Live returns the number of live allocations.
func (a *TrackedArena) Live() int {
	return len(a.index)
}

// ReleaseAll drops every allocation. Live allocations are reported to the
// logger as leaks.
func (a *TrackedArena) ReleaseAll() {
	if n := len(a.index); n > 0 {
		a.log.Error(errLiveAllocations, "tracked arena released",
			"count", n, "bytes", humanize.IBytes(uint64(a.inUse)))
		a.Walk(func(ptr unsafe.Pointer, size int) bool {
			a.log.V(1).Info("leaked allocation", "ptr", ptr, "size", size)
			return true
		})
	}
	for node := a.first; node != nil; {
		next := node.next
		a.sink.Deallocated(node.size)
		a.sink.BlockReleased(len(node.mem))
		node.prev, node.next = nil, nil
		node = next
	}
	a.first, a.last = nil, nil
	a.index = make(map[uintptr]*trackedNode)
	a.inUse, a.reserved = 0, 0
}

// Metrics returns a snapshot; every allocation counts as one block.
func (a *TrackedArena) Metrics() Metrics {
	m := Metrics{
		SizeInUse: a.inUse,
		Capacity:  a.reserved,
		NumBlocks: len(a.index),
	}
	if a.reserved > 0 {
		m.Utilization = float64(a.inUse) / float64(a.reserved)
	}
	return m
}
