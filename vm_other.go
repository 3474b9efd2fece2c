//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package framealloc

// OSMemory falls back to heap-backed regions on platforms without an
// anonymous mmap.
func OSMemory() VirtualMemory {
	return heapMemory{}
}
