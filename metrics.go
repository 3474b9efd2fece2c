package framealloc

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Metrics contains statistical information about an arena.
type Metrics struct {
	SizeInUse     int     // Bytes below the bump offset and block watermarks
	Capacity      int     // Usable bytes across all blocks
	NumBlocks     int     // Blocks in the chain
	BlockCapacity int     // Usable bytes per block
	Pooled        int     // Bytes parked on PooledArena free lists
	PooledEntries int     // Entries on PooledArena free lists
	Utilization   float64 // Ratio of SizeInUse to Capacity (0.0-1.0)
}

// String renders the snapshot for logs, sizes in IEC units.
func (m Metrics) String() string {
	return fmt.Sprintf("%s in use of %s (%.1f%%) in %d blocks, %s pooled in %d entries",
		humanize.IBytes(uint64(m.SizeInUse)), humanize.IBytes(uint64(m.Capacity)),
		m.Utilization*100, m.NumBlocks,
		humanize.IBytes(uint64(m.Pooled)), m.PooledEntries)
}

// SizeInUse returns the bytes below the bump offset of the head block plus
// the watermarks of the older blocks. Pooled bytes count as in use.
func (a *Arena) SizeInUse() int {
	if a.head == nil {
		return 0
	}
	sum := a.offset
	for blk := a.head.next; blk != nil; blk = blk.next {
		sum += blk.watermark
	}
	return sum
}

// NumBlocks returns the number of blocks in the chain. The spare block is
// not counted.
func (a *Arena) NumBlocks() int {
	return a.nblocks
}

// Capacity returns the usable bytes across all blocks in the chain.
func (a *Arena) Capacity() int {
	return a.nblocks * BlockCapacity
}

// Utilization returns the ratio of bytes in use to capacity (0.0 to 1.0).
// Returns 0.0 if the arena holds no blocks.
func (a *Arena) Utilization() float64 {
	capacity := a.Capacity()
	if capacity == 0 {
		return 0
	}
	return float64(a.SizeInUse()) / float64(capacity)
}

// Metrics returns a snapshot of arena statistics.
func (a *Arena) Metrics() Metrics {
	return Metrics{
		SizeInUse:     a.SizeInUse(),
		Capacity:      a.Capacity(),
		NumBlocks:     a.NumBlocks(),
		BlockCapacity: BlockCapacity,
		Utilization:   a.Utilization(),
	}
}
