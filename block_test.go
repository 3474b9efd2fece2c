package framealloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// adjacentBlocks carves n back-to-back blocks out of one buffer starting skew
// bytes past a window boundary.
func adjacentBlocks(n, skew int) []*Block {
	buf := make([]byte, (n+2)*BlockGranularity)
	start := int(1<<windowShift - uintptr(unsafe.Pointer(&buf[0]))&(1<<windowShift-1))
	start += skew
	blocks := make([]*Block, n)
	for i := range blocks {
		off := start + i*BlockGranularity
		blocks[i] = newBlock(buf[off:off+BlockGranularity:off+BlockGranularity], uint64(i+1))
	}
	return blocks
}

func TestBlockIndexLookup(t *testing.T) {
	tests := []struct {
		name string
		skew int
	}{
		{"window aligned", 0},
		{"just past boundary", 8},
		{"unaligned", 4096},
		{"header ends on boundary", BlockGranularity - 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := adjacentBlocks(3, tt.skew)
			ix := blockIndex{}
			for _, blk := range blocks {
				ix.add(blk)
			}

			for _, blk := range blocks {
				assert.Same(t, blk, ix.lookup(blk.Data()))
				assert.Same(t, blk, ix.lookup(blk.at(BlockCapacity/2)))
				assert.Same(t, blk, ix.lookup(blk.at(BlockCapacity-1)))
				assert.Nil(t, ix.lookup(unsafe.Pointer(&blk.mem[0])), "header is not usable memory")
			}

			ix.remove(blocks[1])
			assert.Nil(t, ix.lookup(blocks[1].Data()))
			assert.Same(t, blocks[0], ix.lookup(blocks[0].at(BlockCapacity-1)))
			assert.Same(t, blocks[2], ix.lookup(blocks[2].Data()))

			ix.remove(blocks[0])
			ix.remove(blocks[2])
			assert.Empty(t, ix)
		})
	}
}

func TestArenaIndexFollowsChain(t *testing.T) {
	a := NewArena(newTestCache())
	defer a.ReleaseAll()

	p1 := a.Allocate(60000)
	p2 := a.Allocate(30000)
	p3 := a.Allocate(60000)
	require.Equal(t, 3, a.NumBlocks())
	require.Len(t, chain(a), 3)

	for _, p := range []unsafe.Pointer{p1, p2, p3} {
		assert.NotZero(t, a.TailOrder(p, 16))
	}

	// emptied head becomes the spare and leaves the index
	a.Deallocate(p3, 60000)
	assert.Zero(t, a.TailOrder(p3, 16))
	assert.Greater(t, a.TailOrder(p2, 30000), a.TailOrder(p1, 60000))

	// eager reclaim of an older block drops it from the index
	a.Deallocate(p1, 60000)
	assert.Zero(t, a.TailOrder(p1, 16))
	assert.NotZero(t, a.TailOrder(p2, 30000))

	a.ReleaseAll()
	assert.Empty(t, a.index)
}
