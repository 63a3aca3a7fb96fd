// Package rtc is the reference real-time-clock domain, grounded on
// domains/drivers/goldfish/src/lib.rs's GoldFishRtc: a single read_time
// operation with no persisted state of its own, backed here by the wall
// clock rather than a memory-mapped goldfish-rtc register.
package rtc

import (
	"fmt"
	"time"

	"github.com/oriys/domaincore/internal/capsurface"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/loader"
)

func init() {
	loader.RegisterDriver("rtc.wallclock", New)
}

// Device implements domain.RTC by reading the host wall clock.
type Device struct {
	*domain.ActiveFlag
	surface *capsurface.Surface
}

// New is the loader.Constructor registered under "rtc.wallclock".
func New(id domain.ID, image domain.Image, shims loader.Shims) (domain.Base, error) {
	surface, ok := shims.Syscall.(*capsurface.Surface)
	if !ok {
		return nil, fmt.Errorf("rtc: syscall shim is not a *capsurface.Surface")
	}
	surface.WriteConsole(fmt.Sprintf("rtc domain %d online\n", id))
	return &Device{ActiveFlag: domain.NewActiveFlag(), surface: surface}, nil
}

func (d *Device) HandleIRQ() error { return nil }

// ReadTime returns the current wall-clock time as Unix nanoseconds.
func (d *Device) ReadTime() (int64, error) {
	return time.Now().UnixNano(), nil
}

var _ domain.RTC = (*Device)(nil)
