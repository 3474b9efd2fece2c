// Package framealloc implements a bump-pointer arena allocator for
// short-lived, mostly-LIFO allocation bursts (per-frame, per-job or
// per-parse scratch memory).
//
// # Overview
//
// Three layers are provided, leaves first:
//
//   - BlockCache hands out fixed-size blocks of address space, keeping a
//     small bounded cache of released blocks to avoid repeated mmap/munmap
//     round-trips. One cache is shared by many arenas.
//   - Arena owns a singly-linked chain of blocks and bumps an offset inside
//     the head block. Frees at the tail retract the offset, anything else is
//     lost until the arena is released.
//   - PooledArena wraps an Arena with size-classed free lists so that
//     non-tail frees can be recycled, and TrimPools folds pooled memory back
//     into the bump region once the workload is quiescent.
//
// # Basic Usage
//
//	cache := framealloc.NewBlockCache()
//	defer cache.ReleaseAll()
//
//	p := framealloc.NewPooledArena(cache)
//	defer p.ReleaseAll()
//
//	ptr := p.Allocate(100)
//	p.Deallocate(ptr, 100)
//
//	v := framealloc.New[Vertex](p)
//	framealloc.Free(p, v)
//
//	// end of frame
//	p.TrimPools()
//
// # Thread Safety
//
// Arena, TrackedArena and PooledArena are single-writer. Use one instance
// per goroutine, or SafeArena when an instance must be shared. BlockCache is
// safe for concurrent use.
//
// # Memory Layout
//
// Every block is BlockGranularity (64 KiB) bytes of address space. The first
// BlockHeaderSize bytes hold a small header, the remaining BlockCapacity
// bytes are handed out in Alignment (16 byte) steps. No single allocation may
// exceed MaxBlockSize.
//
// # Important Notes
//
//   - Arena memory is not scanned by the garbage collector. Never store Go
//     pointers in it.
//   - Allocations are only valid until they are freed or the arena is
//     released.
//   - Out-of-range sizes and foreign pointers are programming errors and
//     panic. Building with the framealloc_debug tag additionally verifies the
//     LIFO contract of ReallocateLast and DeallocateLast.
//
// # Metrics and Monitoring
//
//	m := p.Metrics()
//	fmt.Printf("in use %d of %d bytes, %d pooled\n", m.SizeInUse, m.Capacity, m.Pooled)
//
// A Counters value can be attached with WithSink to observe allocation and
// block traffic across a tree of telemetry domains.
package framealloc
