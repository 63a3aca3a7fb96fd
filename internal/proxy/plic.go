package proxy

import (
	"context"

	"github.com/oriys/domaincore/internal/domain"
)

// PLICProxy guards the platform-level interrupt controller domain.
type PLICProxy struct {
	slot *Slot[domain.PLIC]
	ctx  context.Context
}

func NewPLICProxy(ctx context.Context, slot *Slot[domain.PLIC]) *PLICProxy {
	return &PLICProxy{slot: slot, ctx: ctx}
}

func (p *PLICProxy) Slot() *Slot[domain.PLIC] { return p.slot }

func (p *PLICProxy) IsActive() bool { return p.slot.IsActive() }

func (p *PLICProxy) HandleIRQ() error {
	return Do(p.ctx, p.slot, "plic.handle_irq", func(d domain.PLIC) error {
		return d.HandleIRQ()
	})
}

func (p *PLICProxy) RegisterIRQ(irq uint32, owner domain.ID) error {
	return Do(p.ctx, p.slot, "plic.register_irq", func(d domain.PLIC) error {
		return d.RegisterIRQ(irq, owner)
	})
}

func (p *PLICProxy) DeliverIRQ(irq uint32) error {
	return Do(p.ctx, p.slot, "plic.deliver_irq", func(d domain.PLIC) error {
		return d.DeliverIRQ(irq)
	})
}

func (p *PLICProxy) Info() (domain.PLICInfo, error) {
	return Get(p.ctx, p.slot, "plic.info", func(d domain.PLIC) (domain.PLICInfo, error) {
		return d.Info()
	})
}

var _ domain.PLIC = (*PLICProxy)(nil)
