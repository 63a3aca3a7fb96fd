// Package heap implements the shared heap and cross-domain reference
// (CDR) component: a process-wide arena of typed values any domain may
// allocate into and move across a boundary without copying. A CDR is
// move-only at a boundary crossing — Transfer reassigns the owner
// atomically, and it is the caller performing the crossing that is
// responsible for the old owner no longer retaining a copy afterward.
// Cloning a reference is legal within the domain that currently holds
// it. The last reference dropped returns the cell's storage, mirroring
// the page allocator's own alloc/free discipline in internal/pages.
package heap

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/kerrors"
)

// Heap is the process-wide shared allocator every domain's loader.Shims
// carries a handle to (Shims.Heap). The kernel constructs exactly one of
// these at boot and hands every domain the same pointer; unlike a
// domain's own capability, it is never rebuilt on restart, which is what
// lets a CDR outlive the domain that allocated it.
type Heap struct {
	live atomic.Int64
}

// New returns a fresh, empty shared heap.
func New() *Heap {
	return &Heap{}
}

// LiveAllocations reports how many cells currently have a nonzero
// refcount, for tests and diagnostics.
func (h *Heap) LiveAllocations() int64 {
	return h.live.Load()
}

// cell is the storage one or more Ref/RefVec handles share. Its ID is
// minted with uuid.New, the same request-correlation idiom used for a
// restart's request ID, since a CDR's identity needs to be stable and
// process-unique but carries no meaning beyond that.
type cell[T any] struct {
	mu    sync.Mutex
	count atomic.Int32
	owner domain.ID
	id    string
	value T
}

// Ref is a cross-domain reference to a single shared value of type T.
// The zero Ref is invalid; obtain one from AllocShared.
type Ref[T any] struct {
	c *cell[T]
}

// AllocShared allocates storage for one value, owned initially by owner.
func AllocShared[T any](h *Heap, owner domain.ID, value T) (Ref[T], error) {
	if h == nil {
		return Ref[T]{}, kerrors.New(kerrors.Other, "heap.AllocShared", "", fmt.Errorf("nil heap"))
	}
	c := &cell[T]{owner: owner, id: uuid.New().String(), value: value}
	c.count.Store(1)
	h.live.Add(1)
	return Ref[T]{c: c}, nil
}

// Valid reports whether r was obtained from an allocation (the zero Ref
// is not valid). It does not track whether the last reference to the
// storage has since been dropped.
func (r Ref[T]) Valid() bool { return r.c != nil }

// ID returns the reference's process-unique storage key.
func (r Ref[T]) ID() string { return r.c.id }

// Owner returns the domain currently holding this reference.
func (r Ref[T]) Owner() domain.ID {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.owner
}

// Load reads the current value.
func (r Ref[T]) Load() T {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.value
}

// Store overwrites the current value.
func (r Ref[T]) Store(v T) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.value = v
}

// Clone bumps the refcount and returns another handle to the same cell.
// Only legal for sharing within the domain that currently owns r; moving
// a reference across a domain boundary must go through Transfer instead.
func (r Ref[T]) Clone() Ref[T] {
	r.c.count.Add(1)
	return Ref[T]{c: r.c}
}

// Transfer reassigns ownership of r to newOwner. It is the only
// sanctioned way to move a CDR across a domain boundary.
func Transfer[T any](r Ref[T], newOwner domain.ID) error {
	if !r.Valid() {
		return kerrors.New(kerrors.InvalidArgument, "heap.Transfer", "", fmt.Errorf("transfer of a zero Ref"))
	}
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.owner = newOwner
	return nil
}

// Drop releases one reference to r. When the last reference is dropped,
// the cell's storage is cleared and returned to the heap.
func Drop[T any](h *Heap, r Ref[T]) {
	if !r.Valid() {
		return
	}
	if r.c.count.Add(-1) == 0 {
		r.c.mu.Lock()
		var zero T
		r.c.value = zero
		r.c.mu.Unlock()
		h.live.Add(-1)
	}
}

// RefVec is a cross-domain reference to a fixed-length homogeneous
// buffer; the length travels with the reference instead of being
// negotiated separately at every boundary crossing.
type RefVec[T any] struct {
	c *cell[[]T]
	n int
}

// AllocSharedVec allocates a buffer of n zero-valued elements, owned
// initially by owner.
func AllocSharedVec[T any](h *Heap, owner domain.ID, n int) (RefVec[T], error) {
	if h == nil {
		return RefVec[T]{}, kerrors.New(kerrors.Other, "heap.AllocSharedVec", "", fmt.Errorf("nil heap"))
	}
	if n < 0 {
		return RefVec[T]{}, kerrors.New(kerrors.InvalidArgument, "heap.AllocSharedVec", "", fmt.Errorf("negative length %d", n))
	}
	c := &cell[[]T]{owner: owner, id: uuid.New().String(), value: make([]T, n)}
	c.count.Store(1)
	h.live.Add(1)
	return RefVec[T]{c: c, n: n}, nil
}

// Valid reports whether v was obtained from an allocation (the zero
// RefVec is not valid). It does not track whether the last reference to
// the storage has since been dropped.
func (v RefVec[T]) Valid() bool { return v.c != nil }

// ID returns the reference's process-unique storage key.
func (v RefVec[T]) ID() string { return v.c.id }

// Len returns the buffer's fixed length.
func (v RefVec[T]) Len() int { return v.n }

// Owner returns the domain currently holding this reference.
func (v RefVec[T]) Owner() domain.ID {
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	return v.c.owner
}

// At returns the element at i.
func (v RefVec[T]) At(i int) (T, error) {
	var zero T
	if i < 0 || i >= v.n {
		return zero, kerrors.New(kerrors.InvalidArgument, "heap.RefVec.At", "", fmt.Errorf("index %d out of range [0,%d)", i, v.n))
	}
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	return v.c.value[i], nil
}

// Set overwrites the element at i.
func (v RefVec[T]) Set(i int, val T) error {
	if i < 0 || i >= v.n {
		return kerrors.New(kerrors.InvalidArgument, "heap.RefVec.Set", "", fmt.Errorf("index %d out of range [0,%d)", i, v.n))
	}
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	v.c.value[i] = val
	return nil
}

// Clone bumps the refcount and returns another handle to the same cell.
func (v RefVec[T]) Clone() RefVec[T] {
	v.c.count.Add(1)
	return RefVec[T]{c: v.c, n: v.n}
}

// TransferVec reassigns ownership of v to newOwner.
func TransferVec[T any](v RefVec[T], newOwner domain.ID) error {
	if !v.Valid() {
		return kerrors.New(kerrors.InvalidArgument, "heap.TransferVec", "", fmt.Errorf("transfer of a zero RefVec"))
	}
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	v.c.owner = newOwner
	return nil
}

// DropVec releases one reference to v, returning its storage once the
// last reference is gone.
func DropVec[T any](h *Heap, v RefVec[T]) {
	if !v.Valid() {
		return
	}
	if v.c.count.Add(-1) == 0 {
		v.c.mu.Lock()
		v.c.value = nil
		v.c.mu.Unlock()
		h.live.Add(-1)
	}
}
