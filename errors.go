package framealloc

import "github.com/cockroachdb/errors"

// ErrReserveFailed is wrapped into the panic raised when the
// virtual-memory service cannot supply a block.
var ErrReserveFailed = errors.New("framealloc: block reservation failed")

// assertf panics with an assertion failure. Used for programming errors:
// out-of-range sizes, foreign pointers, broken LIFO contracts.
func assertf(format string, args ...interface{}) {
	panic(errors.AssertionFailedf(format, args...))
}

// IsProgrammingError reports whether r, a value recovered from a panic, was
// raised for a programming error.
func IsProgrammingError(r interface{}) bool {
	err, ok := r.(error)
	return ok && errors.IsAssertionFailure(err)
}

// IsExhausted reports whether r, a value recovered from a panic, was raised
// because the virtual-memory service failed.
func IsExhausted(r interface{}) bool {
	err, ok := r.(error)
	return ok && errors.Is(err, ErrReserveFailed)
}

func checkSize(op string, size int) {
	if size <= 0 || size > MaxBlockSize {
		assertf("framealloc: %s size %d out of range (0, %d]", op, size, MaxBlockSize)
	}
}
