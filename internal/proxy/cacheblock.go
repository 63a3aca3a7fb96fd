package proxy

import (
	"context"

	"github.com/oriys/domaincore/internal/domain"
)

// CacheBlockDeviceProxy guards a domain that exposes a byte-offset API
// backed by a peer block domain it looks up by name at call time (never
// cached across calls, per the peer-lookup-on-demand discipline).
type CacheBlockDeviceProxy struct {
	slot *Slot[domain.CacheBlockDevice]
	ctx  context.Context
}

func NewCacheBlockDeviceProxy(ctx context.Context, slot *Slot[domain.CacheBlockDevice]) *CacheBlockDeviceProxy {
	return &CacheBlockDeviceProxy{slot: slot, ctx: ctx}
}

func (p *CacheBlockDeviceProxy) Slot() *Slot[domain.CacheBlockDevice] { return p.slot }

func (p *CacheBlockDeviceProxy) IsActive() bool { return p.slot.IsActive() }

func (p *CacheBlockDeviceProxy) HandleIRQ() error {
	return Do(p.ctx, p.slot, "cache_block.handle_irq", func(d domain.CacheBlockDevice) error {
		return d.HandleIRQ()
	})
}

func (p *CacheBlockDeviceProxy) CacheRead(offset uint64, length int) ([]byte, error) {
	return Get(p.ctx, p.slot, "cache_block.cache_read", func(d domain.CacheBlockDevice) ([]byte, error) {
		return d.CacheRead(offset, length)
	})
}

func (p *CacheBlockDeviceProxy) CacheWrite(offset uint64, data []byte) error {
	return Do(p.ctx, p.slot, "cache_block.cache_write", func(d domain.CacheBlockDevice) error {
		return d.CacheWrite(offset, data)
	})
}

func (p *CacheBlockDeviceProxy) TransferCacheOwnership(newOwner domain.ID) error {
	return Do(p.ctx, p.slot, "cache_block.transfer_cache_ownership", func(d domain.CacheBlockDevice) error {
		return d.TransferCacheOwnership(newOwner)
	})
}

var _ domain.CacheBlockDevice = (*CacheBlockDeviceProxy)(nil)
