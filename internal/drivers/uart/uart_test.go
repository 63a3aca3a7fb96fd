package uart

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
	surface := capsurface.New(1, "uart0", capsurface.Deps{
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

func TestFlagReflectsQueueState(t *testing.T) {
	d := newTestDevice(t)

	flag, err := d.Flag()
	if err != nil {
		t.Fatalf("flag: %v", err)
	}
	if flag&rxFlagReady != 0 {
		t.Fatalf("expected no data-ready bit on empty queue")
	}

	d.InjectByte('A')
	flag, err = d.Flag()
	if err != nil {
		t.Fatalf("flag: %v", err)
	}
	if flag&rxFlagReady == 0 {
		t.Fatalf("expected data-ready bit after injecting a byte")
	}
}

func TestGetCDrainsInOrder(t *testing.T) {
	d := newTestDevice(t)
	d.InjectByte('x')
	d.InjectByte('y')

	b, ok, err := d.GetC()
	if err != nil || !ok || b != 'x' {
		t.Fatalf("expected ('x', true, nil), got (%q, %v, %v)", b, ok, err)
	}
	b, ok, err = d.GetC()
	if err != nil || !ok || b != 'y' {
		t.Fatalf("expected ('y', true, nil), got (%q, %v, %v)", b, ok, err)
	}
	_, ok, err = d.GetC()
	if err != nil || ok {
		t.Fatalf("expected empty queue to report ok=false, got ok=%v err=%v", ok, err)
	}
}

func TestSetIRQMaskPersists(t *testing.T) {
	d := newTestDevice(t)
	if err := d.SetIRQMask(0x3); err != nil {
		t.Fatalf("set irq mask: %v", err)
	}
	flag, err := d.Flag()
	if err != nil {
		t.Fatalf("flag: %v", err)
	}
	if flag&rxFlagMasked == 0 {
		t.Fatalf("expected masked bit set after SetIRQMask")
	}
}

func TestPutCWritesConsole(t *testing.T) {
	d := newTestDevice(t)
	if err := d.PutC('z'); err != nil {
		t.Fatalf("putc: %v", err)
	}
}
