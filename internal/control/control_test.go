package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/oriys/domaincore/internal/domain"
)

// fakeSlot is a minimal proxy.Controllable for exercising Manager without
// a real loaded domain.
type fakeSlot struct {
	id          domain.ID
	name        string
	active      bool
	restartErr  error
	restartHits int
}

func (f *fakeSlot) ID() domain.ID   { return f.id }
func (f *fakeSlot) Name() string    { return f.name }
func (f *fakeSlot) IsActive() bool  { return f.active }
func (f *fakeSlot) Restart(_ *domain.Image) error {
	f.restartHits++
	return f.restartErr
}

func TestManagerListSortedByName(t *testing.T) {
	m := NewManager()
	m.Register("zeta", domain.KindBlockDevice, &fakeSlot{id: 2, name: "zeta", active: true})
	m.Register("alpha", domain.KindRTC, &fakeSlot{id: 1, name: "alpha", active: false})

	got := m.List()
	if len(got) != 2 {
		t.Fatalf("expected 2 domains, got %d", len(got))
	}
	if got[0].Name != "alpha" || got[1].Name != "zeta" {
		t.Fatalf("expected alpha before zeta, got %v, %v", got[0].Name, got[1].Name)
	}
	if got[0].Active {
		t.Fatalf("alpha should be inactive")
	}
	if !got[1].Active {
		t.Fatalf("zeta should be active")
	}
}

func TestManagerRestartUnknownDomain(t *testing.T) {
	m := NewManager()
	if err := m.Restart("ghost"); err == nil {
		t.Fatalf("expected error restarting unregistered domain")
	}
}

func TestManagerRestartDelegates(t *testing.T) {
	m := NewManager()
	slot := &fakeSlot{id: 5, name: "blk0", active: true}
	m.Register("blk0", domain.KindBlockDevice, slot)

	if err := m.Restart("blk0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot.restartHits != 1 {
		t.Fatalf("expected Restart to be called once, got %d", slot.restartHits)
	}
}

func TestHTTPHandlerDomainsAndRestart(t *testing.T) {
	m := NewManager()
	m.Register("blk0", domain.KindBlockDevice, &fakeSlot{id: 1, name: "blk0", active: true})
	handler := m.HTTPHandler()

	req := httptest.NewRequest(http.MethodGet, "/domains", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /domains: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/domains/blk0/restart", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST restart: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/domains/ghost/restart", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("POST restart unknown: expected 404, got %d", rec.Code)
	}
}

func TestRestartResponseCarriesAParsableRequestID(t *testing.T) {
	m := NewManager()
	m.Register("blk0", domain.KindBlockDevice, &fakeSlot{id: 1, name: "blk0", active: true})

	req := httptest.NewRequest(http.MethodPost, "/domains/blk0/restart", nil)
	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, req)

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, err := uuid.Parse(body["request_id"]); err != nil {
		t.Fatalf("expected request_id to be a valid uuid, got %q: %v", body["request_id"], err)
	}
}

func TestRestartErrorResponseAlsoCarriesARequestID(t *testing.T) {
	m := NewManager()

	req := httptest.NewRequest(http.MethodPost, "/domains/ghost/restart", nil)
	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, req)

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, err := uuid.Parse(body["request_id"]); err != nil {
		t.Fatalf("expected request_id on error responses too, got %q: %v", body["request_id"], err)
	}
}

func TestHTTPHandlerStatus(t *testing.T) {
	m := NewManager()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status: expected 200, got %d", rec.Code)
	}
}
