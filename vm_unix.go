//go:build linux || darwin || freebsd || netbsd || openbsd

package framealloc

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

type mmapMemory struct{}

// OSMemory returns a VirtualMemory that maps anonymous private pages
// outside the Go heap.
func OSMemory() VirtualMemory {
	return mmapMemory{}
}

func (mmapMemory) Reserve(n int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %d bytes", n)
	}
	return mem, nil
}

func (mmapMemory) Release(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return errors.Wrapf(err, "munmap %d bytes", len(mem))
	}
	return nil
}
