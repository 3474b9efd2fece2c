package framealloc

import (
	"sort"
	"sync"
)

// memUtilization is the ratio between requested bytes and bucket bytes the
// size-class table aims for.
const memUtilization = 0.95

// SizeClasses maps request sizes onto a small set of canonical bucket sizes
// so that freed regions of one class are interchangeable.
type SizeClasses interface {
	// SizeClassOf returns the class whose bucket is the smallest one that
	// holds size bytes.
	SizeClassOf(size int) int

	// BucketSize returns the canonical allocation size of class.
	BucketSize(class int) int

	// NumClasses returns the number of classes; classes are numbered from
	// zero.
	NumClasses() int
}

// SizeClassTable is a SizeClasses with geometrically growing buckets on an
// Alignment grid.
type SizeClassTable struct {
	sizes []int
}

// NewSizeClassTable generates bucket sizes between minsize and maxsize,
// both multiples of Alignment, so that the average request fills about 95%
// of its bucket.
func NewSizeClassTable(minsize, maxsize int) *SizeClassTable {
	if minsize <= 0 || maxsize < minsize {
		assertf("framealloc: invalid size-class range [%d, %d]", minsize, maxsize)
	} else if minsize%Alignment != 0 || maxsize%Alignment != 0 {
		assertf("framealloc: size-class range [%d, %d] not a multiple of %d", minsize, maxsize, Alignment)
	}
	return &SizeClassTable{sizes: classSizes(minsize, maxsize)}
}

func classSizes(minsize, maxsize int) []int {
	nextsize := func(from int) int {
		addby := int(float64(from) * (1.0 - memUtilization))
		if addby <= Alignment {
			addby = Alignment
		} else {
			addby &^= alignMask
		}
		size := from + addby
		for (float64(from+size)/2.0)/float64(size) > memUtilization {
			size += addby
		}
		return size
	}

	sizes := make([]int, 0, 64)
	for size := minsize; size < maxsize; size = nextsize(size) {
		sizes = append(sizes, size)
	}
	return append(sizes, maxsize)
}

var defaultClasses = sync.OnceValue(func() *SizeClassTable {
	return NewSizeClassTable(MinBlockSize, MaxBlockSize)
})

// DefaultSizeClasses covers every size an Arena accepts,
// [MinBlockSize, MaxBlockSize].
func DefaultSizeClasses() *SizeClassTable {
	return defaultClasses()
}

// SizeClassOf returns the smallest class whose bucket holds size bytes.
// It panics when size is not positive or exceeds the largest bucket.
func (t *SizeClassTable) SizeClassOf(size int) int {
	class := sort.SearchInts(t.sizes, size)
	if size <= 0 || class == len(t.sizes) {
		assertf("framealloc: no size class for %d bytes", size)
	}
	return class
}

// BucketSize returns the bytes handed out for class.
func (t *SizeClassTable) BucketSize(class int) int {
	if class < 0 || class >= len(t.sizes) {
		assertf("framealloc: size class %d out of range", class)
	}
	return t.sizes[class]
}

// NumClasses returns the number of size classes.
func (t *SizeClassTable) NumClasses() int {
	return len(t.sizes)
}

// Sizes returns a copy of the bucket sizes in ascending order.
func (t *SizeClassTable) Sizes() []int {
	return append([]int(nil), t.sizes...)
}
