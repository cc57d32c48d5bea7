package state

import (
	"tlog.app/go/errors"
)

// Allocator provides the backing memory of state blocks.
type Allocator interface {
	Allocate(size int) ([]byte, error)
	Free(mem []byte) error
}

// HeapAllocator allocates blocks on the Go heap.
type HeapAllocator struct{}

// Allocate returns a zeroed slice of size bytes.
func (HeapAllocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.New("invalid size %d", size)
	}
	return make([]byte, size), nil
}

// Free is a no-op; the garbage collector reclaims heap blocks.
func (HeapAllocator) Free([]byte) error {
	return nil
}
