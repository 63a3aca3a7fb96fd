package proxy

import (
	"context"

	"github.com/oriys/domaincore/internal/domain"
)

// UARTProxy guards a serial console domain.
type UARTProxy struct {
	slot *Slot[domain.UART]
	ctx  context.Context
}

func NewUARTProxy(ctx context.Context, slot *Slot[domain.UART]) *UARTProxy {
	return &UARTProxy{slot: slot, ctx: ctx}
}

func (p *UARTProxy) Slot() *Slot[domain.UART] { return p.slot }

func (p *UARTProxy) IsActive() bool { return p.slot.IsActive() }

func (p *UARTProxy) HandleIRQ() error {
	return Do(p.ctx, p.slot, "uart.handle_irq", func(d domain.UART) error {
		return d.HandleIRQ()
	})
}

func (p *UARTProxy) PutC(b byte) error {
	return Do(p.ctx, p.slot, "uart.putc", func(d domain.UART) error {
		return d.PutC(b)
	})
}

func (p *UARTProxy) GetC() (byte, bool, error) {
	type result struct {
		b  byte
		ok bool
	}
	r, err := Get(p.ctx, p.slot, "uart.getc", func(d domain.UART) (result, error) {
		b, ok, e := d.GetC()
		return result{b: b, ok: ok}, e
	})
	return r.b, r.ok, err
}

func (p *UARTProxy) Flag() (uint8, error) {
	return Get(p.ctx, p.slot, "uart.flag", func(d domain.UART) (uint8, error) {
		return d.Flag()
	})
}

func (p *UARTProxy) SetIRQMask(mask uint8) error {
	return Do(p.ctx, p.slot, "uart.set_irq_mask", func(d domain.UART) error {
		return d.SetIRQMask(mask)
	})
}

var _ domain.UART = (*UARTProxy)(nil)
