package framealloc

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeArenaOperations(t *testing.T) {
	s := NewSafeArena(newTestCache())
	defer s.ReleaseAll()

	x := s.Allocate(100)
	y := s.Allocate(100)
	s.Allocate(16)
	s.Deallocate(x, 100)
	s.Deallocate(y, 100)
	assert.Equal(t, 224, s.PooledBytes())

	z := s.Reallocate(s.Allocate(100), 1000, 100)
	assert.NotNil(t, z)

	m := s.Metrics()
	assert.Equal(t, 1, m.NumBlocks)
	assert.Equal(t, 224, m.Pooled, "the moved region goes back to the pool")
	assert.Zero(t, s.TrimPools())
}

func TestSafeAllocFunctions(t *testing.T) {
	s := NewSafeArena(newTestCache())
	defer s.ReleaseAll()

	type point struct{ X, Y float64 }
	p := SafeNew[point](s)
	assert.Equal(t, point{}, *p)
	p.X = 3

	xs := SafeMakeSlice[int32](s, 10)
	assert.Len(t, xs, 10)
	for _, v := range xs {
		assert.Zero(t, v)
	}
	assert.Nil(t, SafeMakeSlice[int32](s, 0))
	assert.Equal(t, 3.0, p.X)
}

func TestSafeArenaConcurrency(t *testing.T) {
	s := NewSafeArena(newTestCache())
	defer s.ReleaseAll()

	const goroutines, rounds = 8, 200
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			ptrs := make([]unsafe.Pointer, 0, 16)
			for r := 0; r < rounds; r++ {
				size := 16 * (1 + (g+r)%32)
				ptr := s.Allocate(size)
				*(*byte)(ptr) = byte(g)
				ptrs = append(ptrs, ptr)
				if len(ptrs) == cap(ptrs) {
					for _, p := range ptrs {
						if *(*byte)(p) != byte(g) {
							t.Errorf("goroutine %d: region %p overwritten", g, p)
						}
					}
					for i := len(ptrs) - 1; i >= 0; i-- {
						s.Deallocate(ptrs[i], 16*(1+(g+r-len(ptrs)+1+i)%32))
					}
					ptrs = ptrs[:0]
				}
			}
			for i := len(ptrs) - 1; i >= 0; i-- {
				s.Deallocate(ptrs[i], 16*(1+(g+rounds-len(ptrs)+i)%32))
			}
			s.TrimPools()
		}(g)
	}
	wg.Wait()

	m := s.Metrics()
	require.Equal(t, m.SizeInUse, m.Pooled, "every byte in use is pooled once all goroutines are done")

	// with nothing live the whole pool forms one run below the tail
	assert.Equal(t, m.Pooled, s.TrimPools())
	assert.Zero(t, s.TrimPools())
	m = s.Metrics()
	assert.Zero(t, m.SizeInUse)
	assert.Zero(t, m.Pooled)
	assert.Equal(t, 1, m.NumBlocks)
}

func BenchmarkSafeArena(b *testing.B) {
	s := NewSafeArena(newTestCache())
	defer s.ReleaseAll()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			s.Deallocate(s.Allocate(64), 64)
		}
	})
}
