package registry

import (
	"testing"

	"github.com/oriys/domaincore/internal/domain"
)

func TestNextIDIsMonotonicAndNeverReused(t *testing.T) {
	r := New()
	seen := map[domain.ID]bool{}
	for i := 0; i < 5; i++ {
		id := r.NextID()
		if seen[id] {
			t.Fatalf("NextID produced a repeated id %d", id)
		}
		seen[id] = true
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	if _, ok := r.Lookup("block0"); ok {
		t.Fatalf("expected lookup of an unregistered name to fail")
	}

	r.Register("block0", "capability-stub")
	v, ok := r.Lookup("block0")
	if !ok || v != "capability-stub" {
		t.Fatalf("expected lookup to return the registered capability, got %v, %v", v, ok)
	}
}

func TestRegisterOverwritesOnRestart(t *testing.T) {
	r := New()
	r.Register("block0", "v1")
	r.Register("block0", "v2")

	v, _ := r.Lookup("block0")
	if v != "v2" {
		t.Fatalf("expected re-registering a name to overwrite the previous value, got %v", v)
	}
}

func TestNames(t *testing.T) {
	r := New()
	r.Register("block0", "a")
	r.Register("rtc0", "b")

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(names))
	}
}

func TestDeviceSpaceRoundTrip(t *testing.T) {
	r := New()
	entries := []domain.DeviceSpaceEntry{
		{Type: domain.DeviceTypeBlock, Name: "block0"},
		{Type: domain.DeviceTypeRTC, Name: "rtc0"},
	}
	r.SetDeviceSpace(entries)

	got := r.DeviceSpace()
	if len(got) != 2 {
		t.Fatalf("expected 2 device-space entries, got %d", len(got))
	}

	e, ok := r.DeviceByType(domain.DeviceTypeRTC)
	if !ok || e.Name != "rtc0" {
		t.Fatalf("expected DeviceByType to find the rtc entry, got %+v, %v", e, ok)
	}

	if _, ok := r.DeviceByType(domain.DeviceTypeGPU); ok {
		t.Fatalf("expected DeviceByType to fail for a type with no entry")
	}
}

func TestDeviceSpaceReturnsACopy(t *testing.T) {
	r := New()
	r.SetDeviceSpace([]domain.DeviceSpaceEntry{{Type: domain.DeviceTypeBlock, Name: "block0"}})

	got := r.DeviceSpace()
	got[0].Name = "mutated"

	again := r.DeviceSpace()
	if again[0].Name != "block0" {
		t.Fatalf("expected DeviceSpace to return a defensive copy, got %q", again[0].Name)
	}
}

func TestDTBRoundTrip(t *testing.T) {
	r := New()
	if r.DTB() != nil {
		t.Fatalf("expected no DTB before SetDTB")
	}
	r.SetDTB([]byte{0xd0, 0x0d})
	if string(r.DTB()) != string([]byte{0xd0, 0x0d}) {
		t.Fatalf("expected DTB to round-trip")
	}
}
