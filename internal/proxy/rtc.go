package proxy

import (
	"context"

	"github.com/oriys/domaincore/internal/domain"
)

// RTCProxy guards a real-time clock domain.
type RTCProxy struct {
	slot *Slot[domain.RTC]
	ctx  context.Context
}

func NewRTCProxy(ctx context.Context, slot *Slot[domain.RTC]) *RTCProxy {
	return &RTCProxy{slot: slot, ctx: ctx}
}

func (p *RTCProxy) Slot() *Slot[domain.RTC] { return p.slot }

func (p *RTCProxy) IsActive() bool { return p.slot.IsActive() }

func (p *RTCProxy) HandleIRQ() error {
	return Do(p.ctx, p.slot, "rtc.handle_irq", func(d domain.RTC) error {
		return d.HandleIRQ()
	})
}

func (p *RTCProxy) ReadTime() (int64, error) {
	return Get(p.ctx, p.slot, "rtc.read_time", func(d domain.RTC) (int64, error) {
		return d.ReadTime()
	})
}

var _ domain.RTC = (*RTCProxy)(nil)
