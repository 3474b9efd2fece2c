package framealloc

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimPoolsStopsAtHole(t *testing.T) {
	p := NewPooledArena(newTestCache())
	defer p.ReleaseAll()
	a := bumpArena(t, p)

	c := p.Allocate(48)
	b := p.Allocate(48)
	live := p.Allocate(48)
	x := p.Allocate(48)
	tail := p.Allocate(48)

	p.Deallocate(x, 48)
	p.Deallocate(b, 48)
	p.Deallocate(c, 48)
	require.Equal(t, 3, p.PooledEntries())
	p.Deallocate(tail, 48)
	require.Equal(t, 4*48, a.Offset(), "tail free reclaims directly")

	// x sits at the tail now, live separates b and c from it
	assert.Equal(t, 48, p.TrimPools())
	assert.Equal(t, 3*48, a.Offset())
	assert.Equal(t, 2, p.PooledEntries())
	assert.Equal(t, 96, p.PooledBytes())

	assert.Zero(t, p.TrimPools(), "a second trim finds the same hole")

	p.Deallocate(live, 48)
	assert.Equal(t, 2*48, a.Offset())
	assert.Equal(t, 96, p.TrimPools())
	assert.Zero(t, a.Offset())
	assert.Zero(t, p.PooledEntries())
}

func TestTrimPoolsMixedClasses(t *testing.T) {
	p := NewPooledArena(newTestCache())
	defer p.ReleaseAll()
	a := bumpArena(t, p)

	sizes := []int{16, 5000, 112, 2000, 48, 700}
	ptrs := make([]unsafe.Pointer, len(sizes))
	for i, size := range sizes {
		ptrs[i] = p.Allocate(size)
	}
	guard := p.Allocate(16)

	rng := rand.New(rand.NewSource(7))
	total := 0
	for _, i := range rng.Perm(len(sizes)) {
		p.Deallocate(ptrs[i], sizes[i])
		total += bucketOf(sizes[i])
	}
	require.Equal(t, total, p.PooledBytes())

	assert.Zero(t, p.TrimPools())
	p.Deallocate(guard, 16)
	assert.Equal(t, total, p.TrimPools())
	assert.Zero(t, a.Offset())
	assert.Zero(t, p.PooledBytes())
}

func TestTrimPoolsAcrossBlocks(t *testing.T) {
	cache := newTestCache()
	p := NewPooledArena(cache)
	defer p.ReleaseAll()
	a := bumpArena(t, p)

	big := p.Allocate(60000)
	mid := p.Allocate(30000)
	small := p.Allocate(100)
	require.Equal(t, 2, a.NumBlocks())

	p.Deallocate(big, 60000)
	p.Deallocate(mid, 30000)
	p.Deallocate(small, 100)
	require.Equal(t, 2, p.PooledEntries())

	reclaimed := p.TrimPools()
	assert.Equal(t, bucketOf(60000)+bucketOf(30000), reclaimed)
	assert.Equal(t, 1, a.NumBlocks())
	assert.Zero(t, a.Offset())
	assert.Zero(t, p.PooledEntries())
	assert.Equal(t, 0, cache.Len(), "emptied head is kept as the spare")
}

func TestTrimPoolsEmpty(t *testing.T) {
	p := NewPooledArena(newTestCache())
	defer p.ReleaseAll()

	assert.Zero(t, p.TrimPools())
	p.Allocate(100)
	assert.Zero(t, p.TrimPools())
}

func TestTrimPoolsKeepsSlotsReusable(t *testing.T) {
	p := NewPooledArena(newTestCache())
	defer p.ReleaseAll()

	for round := 0; round < 3; round++ {
		x := p.Allocate(64)
		y := p.Allocate(64)
		p.Allocate(16)
		p.Deallocate(x, 64)
		p.Deallocate(y, 64)
		require.Equal(t, 2, p.PooledEntries())
		// the guard stays live, so nothing is trimmed and both come back
		assert.Zero(t, p.TrimPools())
		assert.ElementsMatch(t, []unsafe.Pointer{x, y}, []unsafe.Pointer{p.Allocate(64), p.Allocate(64)})
	}
	assert.LessOrEqual(t, len(p.entries), 2)
}
