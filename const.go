package framealloc

const (
	// Alignment is the granularity of every allocation. Sizes are rounded
	// up to a multiple of it and every returned pointer is aligned to it.
	Alignment = 16

	// MinBlockSize is the smallest unit handed out by an arena.
	MinBlockSize = Alignment

	// BlockGranularity is the size of one region reserved from the
	// virtual-memory service.
	BlockGranularity = 64 << 10

	// BlockHeaderSize is the in-band header at the front of every block.
	BlockHeaderSize = 16

	// BlockCapacity is the number of usable bytes in a block.
	BlockCapacity = BlockGranularity - BlockHeaderSize

	// MaxBlockSize is the largest single allocation an arena accepts.
	MaxBlockSize = BlockCapacity

	// DefaultCachedBlocks bounds the number of idle blocks a BlockCache
	// keeps before handing them back to the OS (2 MiB).
	DefaultCachedBlocks = 32
)

const alignMask = Alignment - 1

// alignUp rounds n up to the next multiple of Alignment.
func alignUp(n int) int {
	return (n + alignMask) &^ alignMask
}
