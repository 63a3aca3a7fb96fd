package domain

import "testing"

func TestNewActiveFlagStartsActive(t *testing.T) {
	f := NewActiveFlag()
	if !f.IsActive() {
		t.Fatalf("expected a fresh ActiveFlag to start active")
	}
}

func TestMarkCrashedIsOneWayAndIdempotent(t *testing.T) {
	f := NewActiveFlag()
	f.MarkCrashed()
	if f.IsActive() {
		t.Fatalf("expected MarkCrashed to flip the flag inactive")
	}
	f.MarkCrashed()
	if f.IsActive() {
		t.Fatalf("expected a second MarkCrashed to remain a no-op, not flip back active")
	}
}

func TestImageContentHashIsStableAndSensitiveToBytes(t *testing.T) {
	a := Image{Bytes: []byte("hello")}
	b := Image{Bytes: []byte("hello")}
	c := Image{Bytes: []byte("world")}

	if a.ContentHash() != b.ContentHash() {
		t.Fatalf("expected identical bytes to hash identically")
	}
	if a.ContentHash() == c.ContentHash() {
		t.Fatalf("expected different bytes to hash differently")
	}
}

func TestImageContentHashIgnoresDriverAndKind(t *testing.T) {
	a := Image{Bytes: []byte("payload"), Driver: "blockdev.memory", Kind: KindBlockDevice}
	b := Image{Bytes: []byte("payload"), Driver: "other.driver", Kind: KindRTC}

	if a.ContentHash() != b.ContentHash() {
		t.Fatalf("expected ContentHash to depend only on Bytes")
	}
}
