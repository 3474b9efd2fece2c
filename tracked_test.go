package framealloc

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackedArenaAllocate(t *testing.T) {
	a := NewTrackedArena()
	defer a.ReleaseAll()

	var ptrs []unsafe.Pointer
	for _, size := range []int{1, 17, 100, MaxBlockSize} {
		ptr := a.Allocate(size)
		assert.Zero(t, uintptr(ptr)%Alignment)
		assert.True(t, a.IsLastBlock(ptr, size))
		ptrs = append(ptrs, ptr)
	}
	assert.Equal(t, 4, a.Live())
	assert.Less(t, a.TailOrder(ptrs[0], 1), a.TailOrder(ptrs[3], MaxBlockSize))

	var walked []unsafe.Pointer
	a.Walk(func(ptr unsafe.Pointer, size int) bool {
		walked = append(walked, ptr)
		return true
	})
	assert.Equal(t, ptrs, walked)

	m := a.Metrics()
	assert.Equal(t, 16+32+112+MaxBlockSize, m.SizeInUse)
	assert.Equal(t, 4, m.NumBlocks)
	assert.Greater(t, m.Utilization, 0.9)
}

func TestTrackedArenaDeallocate(t *testing.T) {
	a := NewTrackedArena()
	defer a.ReleaseAll()

	x := a.Allocate(100)
	y := a.Allocate(100)
	z := a.Allocate(100)

	a.Deallocate(y, 100)
	assert.False(t, a.IsLastBlock(y, 100))
	assert.Zero(t, a.TailOrder(y, 100))
	a.DeallocateLast(x, 100)
	assert.Equal(t, 1, a.Live())
	assert.Equal(t, 112, a.Metrics().SizeInUse)

	requirePanic(t, IsProgrammingError, func() { a.Deallocate(y, 100) })
	requirePanic(t, IsProgrammingError, func() { a.Deallocate(z, 200) })
	a.Deallocate(z, 100)
	assert.Zero(t, a.Live())
	assert.Zero(t, a.Metrics().Capacity)
}

func TestTrackedArenaReallocate(t *testing.T) {
	a := NewTrackedArena()
	defer a.ReleaseAll()

	ptr := a.Allocate(100)
	fill(ptr, 100, 0x33)
	assert.Equal(t, ptr, a.Reallocate(ptr, 110, 100))

	nptr := a.ReallocateLast(ptr, 1000, 100)
	assert.NotEqual(t, ptr, nptr)
	assert.Equal(t, 1, a.Live())
	for _, v := range unsafe.Slice((*byte)(nptr), 100) {
		require.Equal(t, byte(0x33), v)
	}
}

func TestTrackedArenaReleaseAllReportsLeaks(t *testing.T) {
	var lines []string
	log := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{Verbosity: 1})

	counters := NewCounters("tracked", nil)
	a := NewTrackedArena(WithLogger(log), WithSink(counters))
	a.Allocate(16)
	a.Allocate(32)
	a.ReleaseAll()

	assert.Zero(t, a.Live())
	require.Len(t, lines, 3)
	assert.True(t, strings.Contains(lines[0], `"count"=2`), lines[0])
	assert.True(t, strings.Contains(lines[1], "leaked allocation"), lines[1])

	s := counters.Snapshot()
	assert.Zero(t, s.LiveBytes())
	assert.Zero(t, s.LiveBlocks())

	// a clean release stays quiet
	lines = nil
	a.Deallocate(a.Allocate(16), 16)
	a.ReleaseAll()
	assert.Empty(t, lines)
}
