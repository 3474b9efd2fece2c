package framealloc

import (
	"sync"
	"unsafe"
)

// SafeArena is a mutex-protected wrapper around PooledArena for callers that
// must share one instance between goroutines. Every operation pays for the
// lock; one PooledArena per goroutine is cheaper when the workload allows it.
type SafeArena struct {
	mu sync.Mutex
	p  *PooledArena
}

// NewSafeArena creates a shared PooledArena drawing blocks from cache.
func NewSafeArena(cache *BlockCache, opts ...Option) *SafeArena {
	return &SafeArena{p: NewPooledArena(cache, opts...)}
}

// Allocate thread-safely allocates size bytes.
func (s *SafeArena) Allocate(size int) unsafe.Pointer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Allocate(size)
}

// Deallocate thread-safely frees size bytes at ptr.
func (s *SafeArena) Deallocate(ptr unsafe.Pointer, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.Deallocate(ptr, size)
}

// Reallocate thread-safely resizes ptr.
func (s *SafeArena) Reallocate(ptr unsafe.Pointer, newSize, oldSize int) unsafe.Pointer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Reallocate(ptr, newSize, oldSize)
}

// TrimPools thread-safely reclaims pooled memory at the tail.
func (s *SafeArena) TrimPools() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.TrimPools()
}

// ReleaseAll thread-safely frees everything.
func (s *SafeArena) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.ReleaseAll()
}

// PooledBytes thread-safely returns the bytes parked on free lists.
func (s *SafeArena) PooledBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.PooledBytes()
}

// Metrics thread-safely returns a snapshot of arena statistics.
func (s *SafeArena) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Metrics()
}

// Generic allocation functions for SafeArena

// SafeNew thread-safely returns a zeroed T stored inside the arena.
func SafeNew[T any](s *SafeArena) *T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return New[T](s.p)
}

// SafeMakeSlice thread-safely allocates a zeroed slice of n elements.
func SafeMakeSlice[T any](s *SafeArena, n int) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MakeSlice[T](s.p, n)
}
