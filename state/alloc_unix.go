//go:build unix

package state

import (
	"golang.org/x/sys/unix"
	"tlog.app/go/errors"
)

// MmapAllocator maps anonymous pages for each block, keeping guest
// state page aligned and outside the Go heap.
type MmapAllocator struct{}

// Allocate maps enough pages for size bytes.
func (MmapAllocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.New("invalid size %d", size)
	}

	page := unix.Getpagesize()
	length := (size + page - 1) / page * page

	mem, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "mmap %d bytes", length)
	}

	return mem[:size], nil
}

// Free unmaps memory returned by Allocate.
func (MmapAllocator) Free(mem []byte) error {
	if err := unix.Munmap(mem[:cap(mem)]); err != nil {
		return errors.Wrap(err, "munmap")
	}
	return nil
}
