package proxy

import (
	"context"

	"github.com/oriys/domaincore/internal/domain"
)

// GPUProxy guards a GPU domain, typically one whose real implementation
// sits across an AF_VSOCK boundary (see internal/boundary) rather than
// in-process; the guarding discipline is identical either way.
type GPUProxy struct {
	slot *Slot[domain.GPU]
	ctx  context.Context
}

func NewGPUProxy(ctx context.Context, slot *Slot[domain.GPU]) *GPUProxy {
	return &GPUProxy{slot: slot, ctx: ctx}
}

func (p *GPUProxy) Slot() *Slot[domain.GPU] { return p.slot }

func (p *GPUProxy) IsActive() bool { return p.slot.IsActive() }

func (p *GPUProxy) HandleIRQ() error {
	return Do(p.ctx, p.slot, "gpu.handle_irq", func(d domain.GPU) error {
		return d.HandleIRQ()
	})
}

func (p *GPUProxy) Flush() error {
	return Do(p.ctx, p.slot, "gpu.flush", func(d domain.GPU) error {
		return d.Flush()
	})
}

func (p *GPUProxy) Fill(x, y, w, h int, color uint32) error {
	return Do(p.ctx, p.slot, "gpu.fill", func(d domain.GPU) error {
		return d.Fill(x, y, w, h, color)
	})
}

var _ domain.GPU = (*GPUProxy)(nil)
