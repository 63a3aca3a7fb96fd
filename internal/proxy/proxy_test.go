package proxy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/oriys/domaincore/internal/continuation"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/kerrors"
	"github.com/oriys/domaincore/internal/ledger"
	"github.com/oriys/domaincore/internal/loader"
	"github.com/oriys/domaincore/internal/pages"
)

// fakeCap is a minimal domain.BlockDevice double that can be told to
// panic (with an arbitrary value, or with kerrors.UnwoundPanic) on its
// next call, for exercising proxy.Do's recover path without a real
// driver or syscall surface.
type fakeCap struct {
	*domain.ActiveFlag
	panicWith     any
	writeCalls    int
	replayMarker  string
}

func (f *fakeCap) HandleIRQ() error { return nil }
func (f *fakeCap) ReadBlock(block uint64) ([]byte, error) {
	if f.panicWith != nil {
		p := f.panicWith
		f.panicWith = nil
		panic(p)
	}
	return []byte("ok"), nil
}
func (f *fakeCap) WriteBlock(block uint64, data []byte) error {
	f.writeCalls++
	return nil
}
func (f *fakeCap) Flush() error               { return nil }
func (f *fakeCap) Capacity() (uint64, error)   { return 10, nil }

const driverName = "proxytest.fake"

func init() {
	loader.RegisterDriver(driverName, func(id domain.ID, image domain.Image, shims loader.Shims) (domain.Base, error) {
		marker, _ := shims.Allocator.(string)
		return &fakeCap{ActiveFlag: domain.NewActiveFlag(), replayMarker: marker}, nil
	})
}

func newTestSlot(t *testing.T) (*Slot[domain.BlockDevice], *ledger.Ledger, *pages.Allocator) {
	t.Helper()
	alloc, err := pages.NewAllocator(64)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	t.Cleanup(func() { alloc.Close() })
	led := ledger.New()

	slot, err := NewSlot[domain.BlockDevice](
		domain.ID(1), "fake0",
		domain.Image{Driver: driverName, Kind: domain.KindBlockDevice},
		led, alloc,
		func(id domain.ID) loader.Shims { return loader.Shims{} },
		func(b domain.Base) (domain.BlockDevice, bool) {
			bd, ok := b.(domain.BlockDevice)
			return bd, ok
		},
	)
	if err != nil {
		t.Fatalf("new slot: %v", err)
	}
	return slot, led, alloc
}

func TestDoReturnsResultOnSuccess(t *testing.T) {
	slot, _, _ := newTestSlot(t)
	data, err := Get(context.Background(), slot, "block.read_block", func(d domain.BlockDevice) ([]byte, error) {
		return d.ReadBlock(0)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "ok" {
		t.Fatalf("got %q, want ok", data)
	}
}

func TestDoShortCircuitsWhenInactive(t *testing.T) {
	slot, _, _ := newTestSlot(t)
	slot.forceCrash()

	err := Do(context.Background(), slot, "block.flush", func(d domain.BlockDevice) error {
		t.Fatalf("fn should not be invoked against an inactive domain")
		return nil
	})
	if !kerrors.Is(err, kerrors.DomainCrashed) {
		t.Fatalf("expected a domain-crashed error, got %v", err)
	}
}

func TestDoRecoversUnexpectedPanicAndForcesCrash(t *testing.T) {
	slot, led, _ := newTestSlot(t)
	slot.Capability().(*fakeCap).panicWith = errors.New("unexpected fault")

	_, err := Get(context.Background(), slot, "block.read_block", func(d domain.BlockDevice) ([]byte, error) {
		return d.ReadBlock(0)
	})
	if err == nil {
		t.Fatalf("expected an error from the recovered panic")
	}
	if slot.IsActive() {
		t.Fatalf("slot should be inactive after an unrecovered domain panic")
	}
	if led.Count() != 0 {
		t.Fatalf("expected ledger entry to be reclaimed by forceCrash")
	}
}

func TestDoPropagatesUnwoundPanicWithoutDoubleReclaim(t *testing.T) {
	slot, led, _ := newTestSlot(t)
	wantErr := kerrors.Crashed("block.read_block", "fake0")
	slot.Capability().(*fakeCap).panicWith = kerrors.UnwoundPanic{Err: wantErr}

	_, err := Get(context.Background(), slot, "block.read_block", func(d domain.BlockDevice) ([]byte, error) {
		return d.ReadBlock(0)
	})
	if !errors.Is(err, wantErr) && err.Error() != wantErr.Error() {
		t.Fatalf("expected the unwound error to propagate unchanged, got %v", err)
	}
	// Do leaves reclaim to whoever raised the UnwoundPanic (in a real
	// domain, capsurface.Backtrace), so the entry NewSlot registered is
	// still present: Do did not reclaim it a second time.
	if led.Count() != 1 {
		t.Fatalf("expected Do not to reclaim the ledger entry on an unwound panic, count=%d", led.Count())
	}
}

func TestDoPushesAndPopsContinuationFrame(t *testing.T) {
	slot, _, _ := newTestSlot(t)
	hs := continuation.NewHartSet(1)
	hart := hs.Acquire()
	ctx := continuation.WithHart(context.Background(), hart)

	if _, err := Get(ctx, slot, "block.read_block", func(d domain.BlockDevice) ([]byte, error) {
		if hart.Depth() != 1 {
			t.Fatalf("expected depth 1 mid-call, got %d", hart.Depth())
		}
		return d.ReadBlock(0)
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hart.Depth() != 0 {
		t.Fatalf("expected frame popped on normal return, got depth %d", hart.Depth())
	}
}

func TestRestartReplaysRecordedCalls(t *testing.T) {
	slot, _, _ := newTestSlot(t)
	var replayed int
	slot.RecordReplay(func(d domain.BlockDevice) error {
		replayed++
		return d.WriteBlock(0, []byte("replay"))
	})

	if err := slot.Restart(nil); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if replayed != 1 {
		t.Fatalf("expected replay to run once, got %d", replayed)
	}
	if slot.Capability().(*fakeCap).writeCalls != 1 {
		t.Fatalf("expected the replayed write to reach the new capability")
	}
}

func TestRestartFailingReplayPropagatesError(t *testing.T) {
	slot, _, _ := newTestSlot(t)
	slot.RecordReplay(func(d domain.BlockDevice) error {
		return fmt.Errorf("replay boom")
	})

	if err := slot.Restart(nil); err == nil {
		t.Fatalf("expected restart to surface the replay error")
	}
}

func TestSlotSatisfiesControllable(t *testing.T) {
	slot, _, _ := newTestSlot(t)
	var c Controllable = slot
	if c.Name() != "fake0" {
		t.Fatalf("got %q, want fake0", c.Name())
	}
	if !c.IsActive() {
		t.Fatalf("expected freshly activated slot to be active")
	}
}
