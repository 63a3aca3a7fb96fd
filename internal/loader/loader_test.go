package loader

import (
	"errors"
	"testing"

	"github.com/oriys/domaincore/internal/domain"
)

type stubCap struct{ *domain.ActiveFlag }

func (s *stubCap) HandleIRQ() error { return nil }

func init() {
	RegisterDriver("loadertest.ok", func(id domain.ID, image domain.Image, shims Shims) (domain.Base, error) {
		return &stubCap{ActiveFlag: domain.NewActiveFlag()}, nil
	})
	RegisterDriver("loadertest.fails", func(id domain.ID, image domain.Image, shims Shims) (domain.Base, error) {
		return nil, errors.New("constructor boom")
	})
}

func TestLoadUnregisteredDriverFails(t *testing.T) {
	if _, err := Load(domain.Image{Driver: "loadertest.nonexistent"}); err == nil {
		t.Fatalf("expected Load to fail for an unregistered driver")
	}
}

func TestLoadAndCallSucceeds(t *testing.T) {
	l, err := Load(domain.Image{Driver: "loadertest.ok"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cap, err := l.Call(domain.ID(1), Shims{})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !cap.IsActive() {
		t.Fatalf("expected the constructed capability to be active")
	}
}

func TestCallWrapsConstructorError(t *testing.T) {
	l, err := Load(domain.Image{Driver: "loadertest.fails"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := l.Call(domain.ID(1), Shims{}); err == nil {
		t.Fatalf("expected Call to surface the constructor's error")
	}
}

func TestReloadIsIdempotent(t *testing.T) {
	l, err := Load(domain.Image{Driver: "loadertest.ok"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := l.Reload(); err != nil {
		t.Fatalf("first reload: %v", err)
	}
	if err := l.Reload(); err != nil {
		t.Fatalf("second reload: %v", err)
	}
	if _, err := l.Call(domain.ID(1), Shims{}); err != nil {
		t.Fatalf("expected call to still succeed after reload: %v", err)
	}
}

func TestImageReturnsConstructedImage(t *testing.T) {
	img := domain.Image{Driver: "loadertest.ok", Bytes: []byte("cfg")}
	l, err := Load(img)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(l.Image().Bytes) != "cfg" {
		t.Fatalf("expected Image() to return the image the loader was built from")
	}
}
