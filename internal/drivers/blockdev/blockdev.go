// Package blockdev is the reference block-storage domain: a fixed
// capacity, in-memory byte store addressed in fixed-size blocks. It
// exists so the core's proxy/ledger/restart machinery has a real
// capability to exercise end-to-end.
package blockdev

import (
	"context"
	"fmt"
	"sync"

	"github.com/oriys/domaincore/internal/capsurface"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/loader"
)

// BlockSize is the fixed block granularity every read/write is aligned to.
const BlockSize = 512

// defaultCapacity is the block count a device starts with absent a
// replayed domain.DeviceInfo naming a different one.
const defaultCapacity = 2048

func init() {
	loader.RegisterDriver("blockdev.memory", New)
}

// media is the backing store for one block domain's data, held outside
// Device on purpose: a crashed domain's capability is dropped and
// rebuilt from scratch by proxy.Slot.activate (its ledger entry and
// shims are torn down with it, per the design note on leaking the old
// capability on restart), but the blocks themselves must survive that
// rebuild. Keying this registry by the domain's stable ID, rather than
// storing it inside Device, is what lets restart() hand the freshly
// constructed Device the same storage the crashed one was using.
type media struct {
	mu       sync.RWMutex
	capacity uint64
	store    [][]byte
}

var (
	mediaMu sync.Mutex
	mediaOf = map[domain.ID]*media{}
)

func mediaFor(id domain.ID) *media {
	mediaMu.Lock()
	defer mediaMu.Unlock()
	m, ok := mediaOf[id]
	if !ok {
		m = &media{capacity: defaultCapacity, store: make([][]byte, defaultCapacity)}
		mediaOf[id] = m
	}
	return m
}

// Device implements domain.BlockDevice over an in-memory backing array.
type Device struct {
	*domain.ActiveFlag
	id      domain.ID
	surface *capsurface.Surface
	media   *media

	// crashOnNextRead is the blk_crash_trick test-only hook: when set, the
	// next ReadBlock call invokes Backtrace instead of reading, to drive a
	// crash-and-restart scenario without needing a real faulting domain.
	// Never consulted by anything other than test code.
	mu              sync.Mutex
	crashOnNextRead bool
}

// New is the loader.Constructor registered under "blockdev.memory". The
// image bytes encode nothing beyond triggering this constructor. Capacity
// defaults to 2048 blocks (1 MiB) the first time id boots; a restart
// reuses the same backing media rather than allocating a fresh one, so
// any data written before the crash is still there afterward.
func New(id domain.ID, image domain.Image, shims loader.Shims) (domain.Base, error) {
	surface, ok := shims.Syscall.(*capsurface.Surface)
	if !ok {
		return nil, fmt.Errorf("blockdev: syscall shim is not a *capsurface.Surface")
	}
	return &Device{
		ActiveFlag: domain.NewActiveFlag(),
		id:         id,
		surface:    surface,
		media:      mediaFor(id),
	}, nil
}

// HandleIRQ is a no-op; this reference device is polled, not interrupt-driven.
func (d *Device) HandleIRQ() error { return nil }

// Capacity reports the device's current block count.
func (d *Device) Capacity() (uint64, error) {
	d.media.mu.RLock()
	defer d.media.mu.RUnlock()
	return d.media.capacity, nil
}

// ReadBlock returns the contents of block, zero-filled if never written.
// If the crash-trick hook is armed, it instead crashes via the syscall
// surface's Backtrace and never returns normally.
func (d *Device) ReadBlock(block uint64) ([]byte, error) {
	d.mu.Lock()
	if d.crashOnNextRead {
		d.crashOnNextRead = false
		id := d.id
		d.mu.Unlock()
		d.surface.Backtrace(context.Background(), id) // never returns
		return nil, nil
	}
	d.mu.Unlock()

	d.media.mu.RLock()
	defer d.media.mu.RUnlock()
	if block >= d.media.capacity {
		return nil, fmt.Errorf("blockdev: block %d out of range (capacity %d)", block, d.media.capacity)
	}
	blk := d.media.store[block]
	if blk == nil {
		return make([]byte, BlockSize), nil
	}
	out := make([]byte, BlockSize)
	copy(out, blk)
	return out, nil
}

// WriteBlock overwrites block with data, which must be exactly BlockSize
// bytes.
func (d *Device) WriteBlock(block uint64, data []byte) error {
	if len(data) != BlockSize {
		return fmt.Errorf("blockdev: write must be exactly %d bytes, got %d", BlockSize, len(data))
	}
	d.media.mu.Lock()
	defer d.media.mu.Unlock()
	if block >= d.media.capacity {
		return fmt.Errorf("blockdev: block %d out of range (capacity %d)", block, d.media.capacity)
	}
	blk := make([]byte, BlockSize)
	copy(blk, data)
	d.media.store[block] = blk
	return nil
}

// Flush is a no-op: writes are already durable in the backing array for
// the lifetime of this reference device.
func (d *Device) Flush() error { return nil }

// Init reapplies the device's recorded identity to a freshly activated
// capability: a proxy.Slot records this as a replay closure the first
// time the domain boots (see cmd/kerneld's bootOne), and Restart repeats
// it, verbatim, against every subsequently loaded capability. Growing the
// capacity extends the backing store while preserving existing blocks;
// a capacity that hasn't changed is a no-op.
func (d *Device) Init(info domain.DeviceInfo) error {
	d.media.mu.Lock()
	defer d.media.mu.Unlock()
	if info.Capacity == 0 || info.Capacity == d.media.capacity {
		return nil
	}
	grown := make([][]byte, info.Capacity)
	copy(grown, d.media.store)
	d.media.store = grown
	d.media.capacity = info.Capacity
	return nil
}

// SetCrashOnNextRead arms or disarms the blk_crash_trick test-only hook.
// Test code only; production wiring never calls this.
func (d *Device) SetCrashOnNextRead(armed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.crashOnNextRead = armed
}

var _ domain.BlockDevice = (*Device)(nil)
