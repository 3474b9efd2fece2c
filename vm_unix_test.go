//go:build linux || darwin || freebsd || netbsd || openbsd

package framealloc

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSMemory(t *testing.T) {
	vm := OSMemory()
	mem, err := vm.Reserve(BlockGranularity)
	require.NoError(t, err)
	require.Len(t, mem, BlockGranularity)
	assert.Zero(t, uintptr(len(mem))%uintptr(os.Getpagesize()))

	mem[0], mem[len(mem)-1] = 1, 2
	require.NoError(t, vm.Release(mem))
}

func TestArenaOnOSMemory(t *testing.T) {
	cache := NewBlockCache(WithCachedBlocks(1))
	a := NewArena(cache)

	for i := 0; i < 4; i++ {
		fill(a.Allocate(MaxBlockSize), MaxBlockSize, byte(i))
	}
	a.ReleaseAll()
	cache.ReleaseAll()

	stats := cache.Stats()
	assert.Equal(t, int64(4), stats.Misses)
	assert.Equal(t, int64(4), stats.OSReleases)
	assert.Zero(t, stats.Cached)
}
