package main

import (
	"testing"

	"github.com/oriys/domaincore/internal/domain"
)

type boolCap struct{ *domain.ActiveFlag }

func (b *boolCap) HandleIRQ() error { return nil }

func (b *boolCap) Flush() error                            { return nil }
func (b *boolCap) Fill(x, y, w, h int, color uint32) error { return nil }

func TestCastToSucceedsForMatchingKind(t *testing.T) {
	var base domain.Base = &boolCap{ActiveFlag: domain.NewActiveFlag()}
	gpu, ok := castTo[domain.GPU](base)
	if !ok {
		t.Fatalf("expected castTo to succeed for a domain.Base that implements domain.GPU")
	}
	if err := gpu.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestCastToFailsForMismatchedKind(t *testing.T) {
	var base domain.Base = &boolCap{ActiveFlag: domain.NewActiveFlag()}
	if _, ok := castTo[domain.RTC](base); ok {
		t.Fatalf("expected castTo to fail when the capability doesn't implement the target kind")
	}
}

func TestIsS3Ref(t *testing.T) {
	cases := map[string]bool{
		"s3://bucket/key.img": true,
		"/local/path/key.img": false,
		"s3":                  false,
		"":                    false,
	}
	for ref, want := range cases {
		if got := isS3Ref(ref); got != want {
			t.Errorf("isS3Ref(%q) = %v, want %v", ref, got, want)
		}
	}
}
