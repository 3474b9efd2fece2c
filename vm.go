package framealloc

// VirtualMemory reserves and releases page-aligned regions of address space.
// Implementations must be safe for concurrent use.
type VirtualMemory interface {
	// Reserve returns a writable, page-aligned region of n bytes.
	Reserve(n int) ([]byte, error)

	// Release returns a region obtained from Reserve.
	Release(mem []byte) error
}

type heapMemory struct{}

// HeapMemory returns a VirtualMemory backed by the Go heap. Regions of
// BlockGranularity bytes are large objects, which the runtime page-aligns
// and never moves. Release leaves reclamation to the garbage collector.
func HeapMemory() VirtualMemory {
	return heapMemory{}
}

func (heapMemory) Reserve(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func (heapMemory) Release(mem []byte) error {
	return nil
}
