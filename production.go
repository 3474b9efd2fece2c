//go:build !framealloc_debug

package framealloc

import "unsafe"

const debugChecks = false

func poison(ptr unsafe.Pointer, n int) {}
