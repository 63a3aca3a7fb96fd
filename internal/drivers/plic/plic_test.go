package plic

import (
	"testing"
	"time"

	"github.com/oriys/domaincore/internal/capsurface"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/klog"
	"github.com/oriys/domaincore/internal/ledger"
	"github.com/oriys/domaincore/internal/loader"
	"github.com/oriys/domaincore/internal/pages"
	"github.com/oriys/domaincore/internal/registry"
)

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	alloc, err := pages.NewAllocator(64)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	t.Cleanup(func() { alloc.Close() })
	surface := capsurface.New(1, "plic0", capsurface.Deps{
		Registry: registry.New(),
		Ledger:   ledger.New(),
		Pages:    alloc,
		Console:  klog.Default(),
		BootTime: time.Now(),
	})
	base, err := New(1, domain.Image{}, loader.Shims{Syscall: surface})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return base.(*Device)
}

func TestRegisterAndDeliver(t *testing.T) {
	d := newTestDevice(t)
	if err := d.RegisterIRQ(5, domain.ID(2)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.DeliverIRQ(5); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := d.DeliverIRQ(6); err == nil {
		t.Fatalf("expected error delivering unregistered irq")
	}
}

func TestRegisterRejectsConflictingOwner(t *testing.T) {
	d := newTestDevice(t)
	if err := d.RegisterIRQ(1, domain.ID(1)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.RegisterIRQ(1, domain.ID(2)); err == nil {
		t.Fatalf("expected conflict registering irq 1 to a different owner")
	}
	if err := d.RegisterIRQ(1, domain.ID(1)); err != nil {
		t.Fatalf("re-registering same owner should be idempotent: %v", err)
	}
}

func TestRegisterRejectsOutOfRange(t *testing.T) {
	d := newTestDevice(t)
	if err := d.RegisterIRQ(maxIRQ, domain.ID(1)); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestInfoReportsStaticShape(t *testing.T) {
	d := newTestDevice(t)
	info, err := d.Info()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.MaxIRQ != maxIRQ || info.Contexts != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}
}
