package shadowblock

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

func TestNewRejectsEmptyPeerName(t *testing.T) {
	alloc, err := pages.NewAllocator(64)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	t.Cleanup(func() { alloc.Close() })
	surface := capsurface.New(1, "shadow0", capsurface.Deps{
		Registry: registry.New(),
		Ledger:   ledger.New(),
		Pages:    alloc,
		Console:  klog.Default(),
		BootTime: time.Now(),
	})
	if _, err := New(1, domain.Image{}, loader.Shims{Syscall: surface}); err == nil {
		t.Fatalf("expected error for image with no peer name")
	}
}

func TestCallsFailWhenPeerUnregistered(t *testing.T) {
	alloc, err := pages.NewAllocator(64)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	t.Cleanup(func() { alloc.Close() })
	surface := capsurface.New(1, "shadow0", capsurface.Deps{
		Registry: registry.New(),
		Ledger:   ledger.New(),
		Pages:    alloc,
		Console:  klog.Default(),
		BootTime: time.Now(),
	})
	base, err := New(1, domain.Image{Bytes: []byte("blk0")}, loader.Shims{Syscall: surface})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	dev := base.(domain.ShadowBlockDevice)

	if _, err := dev.Capacity(); err == nil {
		t.Fatalf("expected error since blk0 is not registered")
	}
}
