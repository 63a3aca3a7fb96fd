// Package devenum is the reference devices-enumeration domain: it hands
// back the static device-space table installed in the registry at boot
// from internal/config, exercising get_dtb's sibling operation for
// listing the platform's fixed (name, base, size) device regions.
package devenum

import (
	"fmt"

	"github.com/oriys/domaincore/internal/capsurface"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/loader"
)

func init() {
	loader.RegisterDriver("devenum.static", New)
}

// Device implements domain.DeviceEnumeration by reading back the
// registry's device-space table through the syscall surface.
type Device struct {
	*domain.ActiveFlag
	surface *capsurface.Surface
}

// New is the loader.Constructor registered under "devenum.static".
func New(id domain.ID, image domain.Image, shims loader.Shims) (domain.Base, error) {
	surface, ok := shims.Syscall.(*capsurface.Surface)
	if !ok {
		return nil, fmt.Errorf("devenum: syscall shim is not a *capsurface.Surface")
	}
	return &Device{ActiveFlag: domain.NewActiveFlag(), surface: surface}, nil
}

func (d *Device) HandleIRQ() error { return nil }

// Enumerate returns the static device-space table installed in the
// registry at boot: this reference domain has no state of its own beyond
// what the registry already holds.
func (d *Device) Enumerate() ([]domain.DeviceSpaceEntry, error) {
	return d.surface.DeviceSpace(), nil
}

var _ domain.DeviceEnumeration = (*Device)(nil)
