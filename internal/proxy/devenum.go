package proxy

import (
	"context"

	"github.com/oriys/domaincore/internal/domain"
)

// DeviceEnumerationProxy guards the domain that lists the static
// device-space table.
type DeviceEnumerationProxy struct {
	slot *Slot[domain.DeviceEnumeration]
	ctx  context.Context
}

func NewDeviceEnumerationProxy(ctx context.Context, slot *Slot[domain.DeviceEnumeration]) *DeviceEnumerationProxy {
	return &DeviceEnumerationProxy{slot: slot, ctx: ctx}
}

func (p *DeviceEnumerationProxy) Slot() *Slot[domain.DeviceEnumeration] { return p.slot }

func (p *DeviceEnumerationProxy) IsActive() bool { return p.slot.IsActive() }

func (p *DeviceEnumerationProxy) HandleIRQ() error {
	return Do(p.ctx, p.slot, "devices.handle_irq", func(d domain.DeviceEnumeration) error {
		return d.HandleIRQ()
	})
}

func (p *DeviceEnumerationProxy) Enumerate() ([]domain.DeviceSpaceEntry, error) {
	return Get(p.ctx, p.slot, "devices.enumerate", func(d domain.DeviceEnumeration) ([]domain.DeviceSpaceEntry, error) {
		return d.Enumerate()
	})
}

var _ domain.DeviceEnumeration = (*DeviceEnumerationProxy)(nil)
