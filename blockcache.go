package framealloc

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
	"github.com/golang/groupcache/lru"
)

// BlockCache supplies fixed-size blocks to arenas and keeps a bounded number
// of released blocks around to amortize virtual-memory system calls. A single
// cache is meant to be shared by every arena in the process; all methods are
// safe for concurrent use.
type BlockCache struct {
	mu    sync.Mutex
	vm    VirtualMemory
	store *lru.Cache
	limit int
	claim **Block // set while take() pops an entry out of store

	scanLimit int
	log       logr.Logger

	seq   uint64
	epoch atomic.Uint64
	stats cacheCounters
}

// CacheStats is a snapshot of BlockCache activity.
type CacheStats struct {
	Hits       int64 // blocks served from the cache
	Misses     int64 // blocks reserved from the virtual-memory service
	Promotions int64 // reservations satisfied by head promotion
	OSReleases int64 // blocks handed back to the virtual-memory service
	Cached     int   // blocks currently idle in the cache
}

type cacheCounters struct {
	hits, misses, promotions, releases atomic.Int64
}

// CacheOption configures a BlockCache.
type CacheOption func(c *BlockCache)

// WithVirtualMemory sets the service blocks are reserved from. Defaults to
// OSMemory().
func WithVirtualMemory(vm VirtualMemory) CacheOption {
	return func(c *BlockCache) {
		c.vm = vm
	}
}

// WithCachedBlocks bounds the number of idle blocks kept in the cache.
// Zero disables caching.
func WithCachedBlocks(n int) CacheOption {
	return func(c *BlockCache) {
		if n < 0 {
			n = 0
		}
		c.limit = n
	}
}

// WithPromotionScanLimit bounds how many chain blocks Reserve inspects when
// looking for a block to promote. Zero, the default, scans the whole chain.
// A bound keeps reservation O(k) for long chains at the price of leaving
// leftover room in older blocks unused.
func WithPromotionScanLimit(k int) CacheOption {
	return func(c *BlockCache) {
		if k < 0 {
			k = 0
		}
		c.scanLimit = k
	}
}

// WithCacheLogger sets the logger for block traffic.
func WithCacheLogger(l logr.Logger) CacheOption {
	return func(c *BlockCache) {
		c.log = l
	}
}

// NewBlockCache creates an empty cache.
func NewBlockCache(opts ...CacheOption) *BlockCache {
	c := &BlockCache{
		vm:    OSMemory(),
		limit: DefaultCachedBlocks,
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.store = lru.New(c.limit)
	c.store.OnEvicted = c.evicted
	return c
}

// Reserve makes room for size bytes in the chain starting at head, whose
// bump cursor is offset. The displaced head records offset as its
// watermark. The rest of the chain is then searched for the first block
// with size bytes left above its watermark; such a block is unlinked, moved
// to the head position and allocation resumes at its watermark. Otherwise
// a block from the cache, or from the OS on a miss, is pushed as the new
// head with offset 0.
func (c *BlockCache) Reserve(head *Block, offset, size int) (*Block, int) {
	blk, off, _ := c.reserve(head, offset, size, nil)
	return blk, off
}

// reserve is Reserve with an optional spare block, an empty block the caller
// owns, which is pushed instead of going to the cache. pushed is false when
// an existing chain block was promoted.
func (c *BlockCache) reserve(head *Block, offset, size int, spare *Block) (blk *Block, off int, pushed bool) {
	if head != nil {
		head.watermark = offset
		if blk := c.promote(head, size); blk != nil {
			blk.epoch = c.epoch.Add(1)
			c.stats.promotions.Add(1)
			return blk, blk.watermark, false
		}
	}
	blk = spare
	if blk == nil {
		blk = c.acquire()
	}
	blk.next = head
	blk.epoch = c.epoch.Add(1)
	return blk, 0, true
}

// promote finds the first block after head that can take size more bytes
// and moves it in front of head.
func (c *BlockCache) promote(head *Block, size int) *Block {
	prev, scanned := head, 0
	for blk := head.next; blk != nil; prev, blk = blk, blk.next {
		if c.scanLimit > 0 && scanned == c.scanLimit {
			return nil
		}
		scanned++
		if blk.watermark+size <= BlockCapacity {
			prev.next = blk.next
			blk.next = head
			c.log.V(2).Info("promoted block", "seq", blk.seq, "watermark", blk.watermark, "size", size)
			return blk
		}
	}
	return nil
}

func (c *BlockCache) acquire() *Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	if blk := c.take(); blk != nil {
		c.stats.hits.Add(1)
		return blk
	}
	mem, err := c.vm.Reserve(BlockGranularity)
	if err != nil {
		panic(errors.Mark(errors.Wrap(err, "framealloc: reserve block"), ErrReserveFailed))
	}
	c.seq++
	c.stats.misses.Add(1)
	c.log.V(1).Info("reserved block", "seq", c.seq, "size", humanize.IBytes(BlockGranularity))
	return newBlock(mem, c.seq)
}

// take pops the least recently released block, nil if the cache is empty.
// The store is FIFO: RemoveOldest fires evicted, which hands the block to
// the claim slot instead of releasing it. Called with mu held.
func (c *BlockCache) take() *Block {
	if c.store.Len() == 0 {
		return nil
	}
	var blk *Block
	c.claim = &blk
	c.store.RemoveOldest()
	c.claim = nil
	return blk
}

func (c *BlockCache) evicted(key lru.Key, value interface{}) {
	blk := value.(*Block)
	if c.claim != nil {
		*c.claim = blk
		return
	}
	c.release(blk)
}

// release hands blk back to the virtual-memory service. Called with mu held.
func (c *BlockCache) release(blk *Block) {
	c.stats.releases.Add(1)
	if err := c.vm.Release(blk.mem); err != nil {
		c.log.Error(err, "release block", "seq", blk.seq)
	}
	c.log.V(1).Info("released block", "seq", blk.seq, "size", humanize.IBytes(BlockGranularity))
	blk.mem = nil
}

// FreeBlock returns blk to the cache, or to the OS when the cache is full.
// blk must have been obtained from this cache and must no longer be linked
// into any chain.
func (c *BlockCache) FreeBlock(blk *Block) {
	if blk == nil || blk.mem == nil || !blk.valid() {
		assertf("framealloc: FreeBlock on a foreign or released block")
	}
	blk.reset()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit == 0 {
		c.release(blk)
		return
	}
	c.store.Add(blk.seq, blk)
}

// ReleaseAll empties the cache back to the OS.
func (c *BlockCache) ReleaseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.store.Len() > 0 {
		c.store.RemoveOldest()
	}
}

// Len returns the number of idle blocks in the cache.
func (c *BlockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Stats returns a snapshot of cache activity.
func (c *BlockCache) Stats() CacheStats {
	return CacheStats{
		Hits:       c.stats.hits.Load(),
		Misses:     c.stats.misses.Load(),
		Promotions: c.stats.promotions.Load(),
		OSReleases: c.stats.releases.Load(),
		Cached:     c.Len(),
	}
}
