// Package shadowblock is the reference shadow block-storage domain: it
// implements the same domain.BlockDevice shape as internal/drivers/blockdev
// but delegates every call to a peer block domain looked up by name
// through the syscall surface, the way a write-buffering or
// replication shadow would sit in front of a real backing store.
package shadowblock

import (
	"fmt"

	"github.com/oriys/domaincore/internal/capsurface"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/loader"
)

func init() {
	loader.RegisterDriver("shadowblock.delegate", New)
}

// Device delegates every BlockDevice call to a peer resolved by name. The
// peer's name is the domain image's own opaque payload (Image.Bytes, as
// a plain UTF-8 string), mirroring the loader's "image content is config
// the registered driver interprets itself" contract.
type Device struct {
	*domain.ActiveFlag
	surface  *capsurface.Surface
	peerName string
}

// New is the loader.Constructor registered under "shadowblock.delegate".
func New(id domain.ID, image domain.Image, shims loader.Shims) (domain.Base, error) {
	surface, ok := shims.Syscall.(*capsurface.Surface)
	if !ok {
		return nil, fmt.Errorf("shadowblock: syscall shim is not a *capsurface.Surface")
	}
	peerName := string(image.Bytes)
	if peerName == "" {
		return nil, fmt.Errorf("shadowblock: image carries no peer domain name")
	}
	return &Device{
		ActiveFlag: domain.NewActiveFlag(),
		surface:    surface,
		peerName:   peerName,
	}, nil
}

func (d *Device) peer() (domain.BlockDevice, error) {
	bd, ok := d.surface.GetBlockDomain(d.peerName)
	if !ok {
		return nil, fmt.Errorf("shadowblock: peer domain %q not found or not a block device", d.peerName)
	}
	return bd, nil
}

func (d *Device) HandleIRQ() error {
	p, err := d.peer()
	if err != nil {
		return err
	}
	return p.HandleIRQ()
}

func (d *Device) ReadBlock(block uint64) ([]byte, error) {
	p, err := d.peer()
	if err != nil {
		return nil, err
	}
	return p.ReadBlock(block)
}

func (d *Device) WriteBlock(block uint64, data []byte) error {
	p, err := d.peer()
	if err != nil {
		return err
	}
	return p.WriteBlock(block, data)
}

func (d *Device) Flush() error {
	p, err := d.peer()
	if err != nil {
		return err
	}
	return p.Flush()
}

func (d *Device) Capacity() (uint64, error) {
	p, err := d.peer()
	if err != nil {
		return 0, err
	}
	return p.Capacity()
}

var _ domain.ShadowBlockDevice = (*Device)(nil)
