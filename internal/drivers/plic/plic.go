// Package plic is the reference platform-level interrupt controller
// domain: a fixed-size IRQ-to-owner table with no real interrupt
// delivery, since this core does not run in S-mode.
package plic

import (
	"fmt"
	"sync"

	"github.com/oriys/domaincore/internal/capsurface"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/loader"
)

func init() {
	loader.RegisterDriver("plic.table", New)
}

const maxIRQ = 64

// Device implements domain.PLIC over an in-memory owner table.
type Device struct {
	*domain.ActiveFlag
	surface *capsurface.Surface

	mu      sync.Mutex
	owners  map[uint32]domain.ID
}

// New is the loader.Constructor registered under "plic.table".
func New(id domain.ID, image domain.Image, shims loader.Shims) (domain.Base, error) {
	surface, ok := shims.Syscall.(*capsurface.Surface)
	if !ok {
		return nil, fmt.Errorf("plic: syscall shim is not a *capsurface.Surface")
	}
	return &Device{
		ActiveFlag: domain.NewActiveFlag(),
		surface:    surface,
		owners:     make(map[uint32]domain.ID),
	}, nil
}

func (d *Device) HandleIRQ() error { return nil }

// RegisterIRQ binds irq to owner, failing if it is already claimed by a
// different domain or out of range.
func (d *Device) RegisterIRQ(irq uint32, owner domain.ID) error {
	if irq >= maxIRQ {
		return fmt.Errorf("plic: irq %d out of range (max %d)", irq, maxIRQ)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.owners[irq]; ok && existing != owner {
		return fmt.Errorf("plic: irq %d already owned by domain %d", irq, existing)
	}
	d.owners[irq] = owner
	return nil
}

// DeliverIRQ is a no-op delivery acknowledgment: this reference device
// has no real interrupt line to assert, so delivery just validates the
// IRQ is registered.
func (d *Device) DeliverIRQ(irq uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.owners[irq]; !ok {
		return fmt.Errorf("plic: irq %d has no registered owner", irq)
	}
	return nil
}

// Info reports the controller's static shape.
func (d *Device) Info() (domain.PLICInfo, error) {
	return domain.PLICInfo{MaxIRQ: maxIRQ, Contexts: 1}, nil
}

var _ domain.PLIC = (*Device)(nil)
