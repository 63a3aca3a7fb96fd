// Package cacheblock is the reference cache-block domain: a byte-offset
// read/write API backed by a peer block domain resolved by name, the
// same peer-lookup-by-name idiom internal/drivers/shadowblock uses. The
// most recently read block is kept in a cross-domain reference into the
// shared heap, so the cached bytes can be handed to a replacement domain
// via TransferCacheOwnership instead of being re-read from the peer.
package cacheblock

import (
	"fmt"

	"github.com/oriys/domaincore/internal/capsurface"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/drivers/blockdev"
	"github.com/oriys/domaincore/internal/heap"
	"github.com/oriys/domaincore/internal/loader"
)

func init() {
	loader.RegisterDriver("cacheblock.bytes", New)
}

// blockCache is the cell value: the last block number read, and its
// bytes.
type blockCache struct {
	block uint64
	valid bool
	data  []byte
}

// Device translates byte-offset reads/writes into block-aligned calls
// against a peer block domain.
type Device struct {
	*domain.ActiveFlag
	id       domain.ID
	surface  *capsurface.Surface
	peerName string

	cache heap.Ref[blockCache]
}

// New is the loader.Constructor registered under "cacheblock.bytes". The
// peer domain's name is the image's opaque payload, as in shadowblock.
func New(id domain.ID, image domain.Image, shims loader.Shims) (domain.Base, error) {
	surface, ok := shims.Syscall.(*capsurface.Surface)
	if !ok {
		return nil, fmt.Errorf("cacheblock: syscall shim is not a *capsurface.Surface")
	}
	peerName := string(image.Bytes)
	if peerName == "" {
		return nil, fmt.Errorf("cacheblock: image carries no peer domain name")
	}

	d := &Device{
		ActiveFlag: domain.NewActiveFlag(),
		id:         id,
		surface:    surface,
		peerName:   peerName,
	}

	if h, ok := shims.Heap.(*heap.Heap); ok {
		ref, err := heap.AllocShared(h, id, blockCache{})
		if err != nil {
			return nil, fmt.Errorf("cacheblock: %w", err)
		}
		d.cache = ref
	}
	return d, nil
}

func (d *Device) HandleIRQ() error { return nil }

func (d *Device) peer() (domain.BlockDevice, error) {
	bd, ok := d.surface.GetBlockDomain(d.peerName)
	if !ok {
		return nil, fmt.Errorf("cacheblock: peer domain %q not found or not a block device", d.peerName)
	}
	return bd, nil
}

// CacheRead reads length bytes starting at offset, spanning as many
// blocks as needed. A single-block read that hits the cached block is
// served from the shared heap without touching the peer.
func (d *Device) CacheRead(offset uint64, length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("cacheblock: negative length %d", length)
	}

	block := offset / blockdev.BlockSize
	within := int(offset % blockdev.BlockSize)

	if d.cache.Valid() && within+length <= blockdev.BlockSize {
		if c := d.cache.Load(); c.valid && c.block == block {
			out := make([]byte, length)
			copy(out, c.data[within:within+length])
			return out, nil
		}
	}

	p, err := d.peer()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, length)
	for len(out) < length {
		data, err := p.ReadBlock(block)
		if err != nil {
			return nil, err
		}
		if d.cache.Valid() && within == 0 {
			d.cache.Store(blockCache{block: block, valid: true, data: data})
		}
		take := data[within:]
		if remain := length - len(out); len(take) > remain {
			take = take[:remain]
		}
		out = append(out, take...)
		within = 0
		block++
	}
	return out, nil
}

// CacheWrite writes data starting at offset, performing a read-modify-write
// on the first and last partial blocks. Any cached copy of a block being
// written is invalidated so CacheRead can't serve a stale value.
func (d *Device) CacheWrite(offset uint64, data []byte) error {
	p, err := d.peer()
	if err != nil {
		return err
	}

	block := offset / blockdev.BlockSize
	within := int(offset % blockdev.BlockSize)
	remaining := data

	for len(remaining) > 0 {
		buf, err := p.ReadBlock(block)
		if err != nil {
			return err
		}
		n := copy(buf[within:], remaining)
		if err := p.WriteBlock(block, buf); err != nil {
			return err
		}
		if d.cache.Valid() {
			if c := d.cache.Load(); c.valid && c.block == block {
				d.cache.Store(blockCache{})
			}
		}
		remaining = remaining[n:]
		within = 0
		block++
	}
	return nil
}

// TransferCacheOwnership moves the domain's cached-block reference to
// newOwner, exercising the shared heap's move-only-at-boundary ownership
// invariant: after this call returns, newOwner is the reference's sole
// recorded owner.
func (d *Device) TransferCacheOwnership(newOwner domain.ID) error {
	if !d.cache.Valid() {
		return fmt.Errorf("cacheblock: domain %d has no shared heap handle to transfer", d.id)
	}
	return heap.Transfer(d.cache, newOwner)
}

var _ domain.CacheBlockDevice = (*Device)(nil)
