package framealloc

import "unsafe"

// Allocator is satisfied by Arena, TrackedArena, PooledArena and SafeArena.
type Allocator interface {
	Allocate(size int) unsafe.Pointer
}

// Deallocator is satisfied by Arena, TrackedArena, PooledArena and SafeArena.
type Deallocator interface {
	Deallocate(ptr unsafe.Pointer, size int)
}

// New returns a pointer to a zeroed T stored inside the allocator. T must
// not contain Go pointers and must fit in MaxBlockSize.
func New[T any](a Allocator) *T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return new(T)
	}
	p := a.Allocate(size)
	clear(unsafe.Slice((*byte)(p), size))
	return (*T)(p)
}

// NewUninitialized is New without zeroing. The memory contents are
// undefined until written.
func NewUninitialized[T any](a Allocator) *T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return new(T)
	}
	return (*T)(a.Allocate(size))
}

// Free returns a value obtained from New or NewUninitialized.
func Free[T any](d Deallocator, p *T) {
	var zero T
	if size := int(unsafe.Sizeof(zero)); size > 0 {
		d.Deallocate(unsafe.Pointer(p), size)
	}
}

// MakeSlice allocates a zeroed slice of n elements of type T inside the
// allocator. Returns nil if n <= 0.
func MakeSlice[T any](a Allocator, n int) []T {
	if n <= 0 {
		return nil
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if elemSize == 0 {
		return make([]T, n)
	}
	p := a.Allocate(elemSize * n)
	clear(unsafe.Slice((*byte)(p), elemSize*n))
	return unsafe.Slice((*T)(p), n)
}

// FreeSlice returns a slice obtained from MakeSlice. The slice capacity must
// be the one MakeSlice returned.
func FreeSlice[T any](d Deallocator, s []T) {
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if cap(s) == 0 || elemSize == 0 {
		return
	}
	d.Deallocate(unsafe.Pointer(unsafe.SliceData(s)), elemSize*cap(s))
}

// Bytes returns n uninitialized bytes from the allocator. Returns nil if
// n <= 0.
func Bytes(a Allocator, n int) []byte {
	if n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(a.Allocate(n)), n)
}

// FreeBytes returns a slice obtained from Bytes.
func FreeBytes(d Deallocator, b []byte) {
	FreeSlice(d, b)
}
