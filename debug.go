//go:build framealloc_debug

package framealloc

import "unsafe"

const debugChecks = true

const poisonByte = 0xdd

// poison overwrites released memory so that use-after-free reads garbage
// instead of stale data.
func poison(ptr unsafe.Pointer, n int) {
	b := unsafe.Slice((*byte)(ptr), n)
	for i := range b {
		b[i] = poisonByte
	}
}
