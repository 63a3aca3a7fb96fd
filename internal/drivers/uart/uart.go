// Package uart is the reference serial-console domain: a byte-oriented
// FIFO with an IRQ mask, in-memory rather than backed by a real 16550
// UART register block.
package uart

import (
	"fmt"
	"sync"

	"github.com/oriys/domaincore/internal/capsurface"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/loader"
)

func init() {
	loader.RegisterDriver("uart.fifo", New)
}

// rxFlagReady and rxFlagMasked mirror the two status bits a real UART's
// line-status register exposes for "data ready" and "interrupts masked".
const (
	rxFlagReady  uint8 = 1 << 0
	rxFlagMasked uint8 = 1 << 1
)

// Device implements domain.UART over an in-memory byte queue.
type Device struct {
	*domain.ActiveFlag
	surface *capsurface.Surface

	mu       sync.Mutex
	rx       []byte
	irqMask  uint8
}

// New is the loader.Constructor registered under "uart.fifo".
func New(id domain.ID, image domain.Image, shims loader.Shims) (domain.Base, error) {
	surface, ok := shims.Syscall.(*capsurface.Surface)
	if !ok {
		return nil, fmt.Errorf("uart: syscall shim is not a *capsurface.Surface")
	}
	return &Device{ActiveFlag: domain.NewActiveFlag(), surface: surface}, nil
}

func (d *Device) HandleIRQ() error { return nil }

// PutC writes b to the kernel console, the reference device's only
// "output" side effect.
func (d *Device) PutC(b byte) error {
	d.surface.WriteConsole(string(rune(b)))
	return nil
}

// GetC pops the oldest queued byte, if any. A real UART's rx FIFO is fed
// by hardware; this reference device is fed only by InjectByte, used by
// tests to simulate incoming serial traffic.
func (d *Device) GetC() (byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rx) == 0 {
		return 0, false, nil
	}
	b := d.rx[0]
	d.rx = d.rx[1:]
	return b, true, nil
}

// Flag reports the device's current status bits.
func (d *Device) Flag() (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var f uint8
	if len(d.rx) > 0 {
		f |= rxFlagReady
	}
	if d.irqMask != 0 {
		f |= rxFlagMasked
	}
	return f, nil
}

// SetIRQMask installs the interrupt mask.
func (d *Device) SetIRQMask(mask uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.irqMask = mask
	return nil
}

// InjectByte appends b to the receive queue, for test code simulating an
// incoming byte of serial traffic.
func (d *Device) InjectByte(b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rx = append(d.rx, b)
}

var _ domain.UART = (*Device)(nil)
