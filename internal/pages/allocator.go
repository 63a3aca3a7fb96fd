// Package pages implements the physical-page allocator backing the
// capability surface's alloc_pages/free_pages operations. It rounds
// every request up to a power of two and hands back a contiguous
// PageRange.
//
// This process is hosted, not bare-metal, so "physically contiguous
// pages" is modeled as a contiguous byte arena backed by an anonymous
// mmap on Linux (see arena_linux.go) and a plain byte slice elsewhere
// (arena_other.go).
package pages

import (
	"fmt"
	"math/bits"
	"sync"
)

const PageSize = 4096

// PageRange is a contiguous run of pages, identified by its first page
// number and page count. Both are powers of two in count (count rounded
// up at allocation time).
type PageRange struct {
	First uint64
	Count uint64
}

// Allocator hands out power-of-two-sized page ranges from a fixed arena
// and tracks free extents with a simple free list. It never panics; all
// failures are returned as errors so the shared heap and ledger above it
// can report typed errors instead of crashing the kernel.
type Allocator struct {
	mu        sync.Mutex
	arena     arena
	totalPgs  uint64
	free      map[uint64]uint64 // first -> count, coalesced lazily
	freeCount uint64            // pages currently free, for accounting/tests
}

// NewAllocator creates an allocator backed by totalPages pages.
func NewAllocator(totalPages uint64) (*Allocator, error) {
	a, err := newArena(totalPages * PageSize)
	if err != nil {
		return nil, fmt.Errorf("create page arena: %w", err)
	}
	al := &Allocator{
		arena:     a,
		totalPgs:  totalPages,
		free:      map[uint64]uint64{0: totalPages},
		freeCount: totalPages,
	}
	return al, nil
}

// RoundUpPow2 rounds n up to the next power of two, with a minimum of 1.
func RoundUpPow2(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return uint64(1) << bits.Len64(n-1)
}

// Alloc allocates a power-of-two run of at least n pages and returns the
// actual range granted (count may exceed n after rounding).
func (a *Allocator) Alloc(n uint64) (PageRange, error) {
	want := RoundUpPow2(n)

	a.mu.Lock()
	defer a.mu.Unlock()

	for first, count := range a.free {
		if count >= want {
			delete(a.free, first)
			if count > want {
				a.free[first+want] = count - want
			}
			a.freeCount -= want
			return PageRange{First: first, Count: want}, nil
		}
	}
	return PageRange{}, fmt.Errorf("out of pages: want %d, free %d", want, a.freeCount)
}

// Free returns a previously allocated range to the free list. It is the
// caller's responsibility (the ledger) to ensure the range was actually
// granted by a prior Alloc; Free itself does not validate ownership.
func (a *Allocator) Free(r PageRange) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free[r.First] = r.Count
	a.freeCount += r.Count
	a.coalesceLocked()
}

// FreePageCount returns the number of pages currently available, for
// tests that assert reclaim behavior.
func (a *Allocator) FreePageCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freeCount
}

// Bytes returns the backing bytes for a page range, for a domain that
// needs to read/write its allocated pages directly (e.g. a block device
// domain using allocated pages as its backing store).
func (a *Allocator) Bytes(r PageRange) []byte {
	return a.arena.slice(r.First*PageSize, r.Count*PageSize)
}

// coalesceLocked merges adjacent free ranges. Called under a.mu.
func (a *Allocator) coalesceLocked() {
	merged := true
	for merged {
		merged = false
		for first, count := range a.free {
			if next, ok := a.free[first+count]; ok {
				a.free[first] = count + next
				delete(a.free, first+count)
				merged = true
				break
			}
		}
	}
}

// Close releases the backing arena.
func (a *Allocator) Close() error {
	return a.arena.close()
}
