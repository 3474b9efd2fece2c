package framealloc

import "unsafe"

// StrategyKind selects an arena implementation at construction time.
type StrategyKind int

const (
	// Bump is the production block-chain bump allocator, Arena.
	Bump StrategyKind = iota
	// TrackedFallback routes every allocation through the Go heap with
	// per-allocation tracking, TrackedArena. Slower, but every free is
	// real, which keeps race detectors and debuggers useful.
	TrackedFallback
)

// String returns the strategy name.
func (k StrategyKind) String() string {
	switch k {
	case Bump:
		return "bump"
	case TrackedFallback:
		return "tracked"
	}
	return "unknown"
}

// Strategy is the contract shared by Arena and TrackedArena. Pointers are
// always paired with the size they were allocated with.
type Strategy interface {
	// Allocate returns size bytes aligned to Alignment.
	Allocate(size int) unsafe.Pointer

	// Reallocate resizes ptr, moving it when it cannot grow in place.
	Reallocate(ptr unsafe.Pointer, newSize, oldSize int) unsafe.Pointer

	// Deallocate frees ptr.
	Deallocate(ptr unsafe.Pointer, size int)

	// ReallocateLast is Reallocate for a ptr the caller knows to be the
	// most recent allocation.
	ReallocateLast(ptr unsafe.Pointer, newSize, oldSize int) unsafe.Pointer

	// DeallocateLast is Deallocate for a ptr the caller knows to be the
	// most recent allocation.
	DeallocateLast(ptr unsafe.Pointer, size int)

	// IsLastBlock reports whether freeing ptr gives its bytes back for
	// immediate reuse.
	IsLastBlock(ptr unsafe.Pointer, size int) bool

	// TailOrder returns a key that grows towards the allocation tail.
	// Among pooled regions, the one with the largest key is the next
	// candidate to become the tail.
	TailOrder(ptr unsafe.Pointer, size int) uint64

	// ReleaseAll frees everything and returns to the freshly constructed
	// state.
	ReleaseAll()

	// Metrics returns a usage snapshot.
	Metrics() Metrics
}

// NewStrategy builds the implementation chosen with WithStrategy.
func NewStrategy(cache *BlockCache, opts ...Option) Strategy {
	cfg := newConfig(opts)
	return newStrategy(cache, cfg)
}

func newStrategy(cache *BlockCache, cfg config) Strategy {
	switch cfg.strategy {
	case Bump:
		return newArena(cache, cfg)
	case TrackedFallback:
		return newTrackedArena(cfg)
	}
	assertf("framealloc: unknown strategy %d", int(cfg.strategy))
	return nil
}

var (
	_ Strategy = (*Arena)(nil)
	_ Strategy = (*TrackedArena)(nil)
)
