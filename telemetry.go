package framealloc

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
)

// Sink observes allocator traffic. It never influences control flow.
// Sizes are in bytes after rounding to Alignment.
type Sink interface {
	Allocated(n int)
	Deallocated(n int)
	BlockAcquired(n int)
	BlockReleased(n int)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Allocated(int)     {}
func (NopSink) Deallocated(int)   {}
func (NopSink) BlockAcquired(int) {}
func (NopSink) BlockReleased(int) {}

// Counters is a telemetry domain. Every event is counted locally and
// forwarded to the parent domain, so a process-wide root can aggregate many
// per-thread arenas. Safe for concurrent use.
type Counters struct {
	name   string
	parent *Counters

	allocs, allocBytes atomic.Int64
	frees, freeBytes   atomic.Int64
	blocksAcquired     atomic.Int64
	blocksReleased     atomic.Int64
}

// NewCounters creates a domain below parent, which may be nil.
func NewCounters(name string, parent *Counters) *Counters {
	return &Counters{name: name, parent: parent}
}

// Allocated counts one allocation of n bytes in c and its ancestors.
func (c *Counters) Allocated(n int) {
	for d := c; d != nil; d = d.parent {
		d.allocs.Add(1)
		d.allocBytes.Add(int64(n))
	}
}

// Deallocated counts one free of n bytes in c and its ancestors.
func (c *Counters) Deallocated(n int) {
	for d := c; d != nil; d = d.parent {
		d.frees.Add(1)
		d.freeBytes.Add(int64(n))
	}
}

// BlockAcquired counts a block drawn from the BlockCache.
func (c *Counters) BlockAcquired(n int) {
	for d := c; d != nil; d = d.parent {
		d.blocksAcquired.Add(1)
	}
}

// BlockReleased counts a block handed back to the BlockCache.
func (c *Counters) BlockReleased(n int) {
	for d := c; d != nil; d = d.parent {
		d.blocksReleased.Add(1)
	}
}

// CountersSnapshot is a point-in-time copy of a Counters domain.
type CountersSnapshot struct {
	Name           string
	Allocs         int64
	AllocBytes     int64
	Frees          int64
	FreeBytes      int64
	BlocksAcquired int64
	BlocksReleased int64
}

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		Name:           c.name,
		Allocs:         c.allocs.Load(),
		AllocBytes:     c.allocBytes.Load(),
		Frees:          c.frees.Load(),
		FreeBytes:      c.freeBytes.Load(),
		BlocksAcquired: c.blocksAcquired.Load(),
		BlocksReleased: c.blocksReleased.Load(),
	}
}

// LiveBytes is the difference between allocated and freed bytes.
func (s CountersSnapshot) LiveBytes() int64 {
	return s.AllocBytes - s.FreeBytes
}

// LiveBlocks is the number of blocks acquired and not yet released.
func (s CountersSnapshot) LiveBlocks() int64 {
	return s.BlocksAcquired - s.BlocksReleased
}

// String renders the snapshot for logs.
func (s CountersSnapshot) String() string {
	return fmt.Sprintf("%s: %d allocs (%s), %d frees (%s), %d live blocks",
		s.Name,
		s.Allocs, humanize.IBytes(uint64(s.AllocBytes)),
		s.Frees, humanize.IBytes(uint64(s.FreeBytes)),
		s.LiveBlocks())
}

// Log writes the snapshot of c to l at info level.
func (c *Counters) Log(l logr.Logger) {
	s := c.Snapshot()
	live := s.LiveBytes()
	if live < 0 {
		live = 0
	}
	l.Info("allocator telemetry",
		"domain", s.Name,
		"allocs", s.Allocs,
		"frees", s.Frees,
		"allocated", humanize.IBytes(uint64(s.AllocBytes)),
		"live", humanize.IBytes(uint64(live)),
		"blocks", s.LiveBlocks())
}
