//go:build linux

package pages

import "golang.org/x/sys/unix"

// arena is the contiguous backing store for the page allocator.
type arena struct {
	mem []byte
}

func newArena(size uint64) (arena, error) {
	if size == 0 {
		size = PageSize
	}
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return arena{}, err
	}
	return arena{mem: mem}, nil
}

func (a arena) slice(off, n uint64) []byte {
	return a.mem[off : off+n]
}

func (a arena) close() error {
	if a.mem == nil {
		return nil
	}
	return unix.Munmap(a.mem)
}
