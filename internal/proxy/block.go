package proxy

import (
	"context"

	"github.com/oriys/domaincore/internal/domain"
)

// BlockDeviceProxy guards a block storage domain and itself implements
// domain.BlockDevice, so internal/registry stores and hands out proxies
// indistinguishably from a bare capability.
type BlockDeviceProxy struct {
	slot *Slot[domain.BlockDevice]
	ctx  context.Context
}

// NewBlockDeviceProxy constructs a proxy around a freshly loaded block
// device image. ctx supplies the hart every guarded call runs under.
func NewBlockDeviceProxy(ctx context.Context, slot *Slot[domain.BlockDevice]) *BlockDeviceProxy {
	return &BlockDeviceProxy{slot: slot, ctx: ctx}
}

func (p *BlockDeviceProxy) Slot() *Slot[domain.BlockDevice] { return p.slot }

func (p *BlockDeviceProxy) IsActive() bool { return p.slot.IsActive() }

func (p *BlockDeviceProxy) HandleIRQ() error {
	return Do(p.ctx, p.slot, "block.handle_irq", func(d domain.BlockDevice) error {
		return d.HandleIRQ()
	})
}

func (p *BlockDeviceProxy) ReadBlock(block uint64) ([]byte, error) {
	return Get(p.ctx, p.slot, "block.read_block", func(d domain.BlockDevice) ([]byte, error) {
		return d.ReadBlock(block)
	})
}

func (p *BlockDeviceProxy) WriteBlock(block uint64, data []byte) error {
	return Do(p.ctx, p.slot, "block.write_block", func(d domain.BlockDevice) error {
		return d.WriteBlock(block, data)
	})
}

func (p *BlockDeviceProxy) Flush() error {
	return Do(p.ctx, p.slot, "block.flush", func(d domain.BlockDevice) error {
		return d.Flush()
	})
}

func (p *BlockDeviceProxy) Capacity() (uint64, error) {
	return Get(p.ctx, p.slot, "block.capacity", func(d domain.BlockDevice) (uint64, error) {
		return d.Capacity()
	})
}

var _ domain.BlockDevice = (*BlockDeviceProxy)(nil)

// ShadowBlockDeviceProxy has the identical shape: a shadow domain is just
// a BlockDevice composed atop a peer, so it is guarded the same way.
type ShadowBlockDeviceProxy struct {
	slot *Slot[domain.ShadowBlockDevice]
	ctx  context.Context
}

func NewShadowBlockDeviceProxy(ctx context.Context, slot *Slot[domain.ShadowBlockDevice]) *ShadowBlockDeviceProxy {
	return &ShadowBlockDeviceProxy{slot: slot, ctx: ctx}
}

func (p *ShadowBlockDeviceProxy) Slot() *Slot[domain.ShadowBlockDevice] { return p.slot }

func (p *ShadowBlockDeviceProxy) IsActive() bool { return p.slot.IsActive() }

func (p *ShadowBlockDeviceProxy) HandleIRQ() error {
	return Do(p.ctx, p.slot, "shadow_block.handle_irq", func(d domain.ShadowBlockDevice) error {
		return d.HandleIRQ()
	})
}

func (p *ShadowBlockDeviceProxy) ReadBlock(block uint64) ([]byte, error) {
	return Get(p.ctx, p.slot, "shadow_block.read_block", func(d domain.ShadowBlockDevice) ([]byte, error) {
		return d.ReadBlock(block)
	})
}

func (p *ShadowBlockDeviceProxy) WriteBlock(block uint64, data []byte) error {
	return Do(p.ctx, p.slot, "shadow_block.write_block", func(d domain.ShadowBlockDevice) error {
		return d.WriteBlock(block, data)
	})
}

func (p *ShadowBlockDeviceProxy) Flush() error {
	return Do(p.ctx, p.slot, "shadow_block.flush", func(d domain.ShadowBlockDevice) error {
		return d.Flush()
	})
}

func (p *ShadowBlockDeviceProxy) Capacity() (uint64, error) {
	return Get(p.ctx, p.slot, "shadow_block.capacity", func(d domain.ShadowBlockDevice) (uint64, error) {
		return d.Capacity()
	})
}

var _ domain.ShadowBlockDevice = (*ShadowBlockDeviceProxy)(nil)
