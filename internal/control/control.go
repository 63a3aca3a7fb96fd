// Package control exposes the operator-facing surface for a running
// kernel core: a grpc_health_v1 liveness service for orchestrators that
// already speak the standard gRPC health-checking protocol, and a small
// net/http JSON API for the operations an orchestrator's health check
// alone cannot express (list loaded domains, inspect status, force a
// restart). The daemon command wires both up the way cmd/nova/daemon.go
// wires its own HTTP/gRPC listeners: constructed once at boot, handed a
// context, run until shutdown.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/metrics"
	"github.com/oriys/domaincore/internal/proxy"
)

// Manager tracks every guarded slot the control plane can act on, keyed
// by the peer-visible domain name. Wiring code registers each slot right
// after NewSlot succeeds.
type Manager struct {
	mu    sync.RWMutex
	slots map[string]proxy.Controllable
	kinds map[string]domain.Kind

	health *health.Server
}

// NewManager builds an empty manager. Its own grpc health status starts
// SERVING and is only ever set NOT_SERVING by an explicit Degrade call,
// since a kernel core with zero domains loaded yet is not itself unhealthy.
func NewManager() *Manager {
	m := &Manager{
		slots:  make(map[string]proxy.Controllable),
		kinds:  make(map[string]domain.Kind),
		health: health.NewServer(),
	}
	m.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return m
}

// Register adds a slot under name, so it appears in List and can
// be targeted by Restart.
func (m *Manager) Register(name string, kind domain.Kind, slot proxy.Controllable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[name] = slot
	m.kinds[name] = kind
}

// Degrade flips the gRPC health status to NOT_SERVING, for a boot
// sequence that wants the orchestrator to stop routing traffic here
// without killing the process (e.g. mid hot-swap of every domain at
// once).
func (m *Manager) Degrade() { m.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING) }

// Restore flips the gRPC health status back to SERVING.
func (m *Manager) Restore() { m.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING) }

// DomainStatus is one entry of the List result (and of GET /domains).
type DomainStatus struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	ID       uint64 `json:"id"`
	Active   bool   `json:"active"`
	Crashes  int64  `json:"crashes"`
	Restarts int64  `json:"restarts"`
}

// List returns the status of every registered domain, sorted by name so
// the JSON and CLI output is stable across calls.
func (m *Manager) List() []DomainStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]DomainStatus, 0, len(m.slots))
	perDomain := metrics.Global().PerDomainStats()
	for name, slot := range m.slots {
		st := DomainStatus{
			Name:   name,
			Kind:   string(m.kinds[name]),
			ID:     uint64(slot.ID()),
			Active: slot.IsActive(),
		}
		if raw, ok := perDomain[name]; ok {
			if dm, ok := raw.(map[string]any); ok {
				if c, ok := dm["crashes"].(int64); ok {
					st.Crashes = c
				}
				if r, ok := dm["restarts"].(int64); ok {
					st.Restarts = r
				}
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Restart reloads the named domain from its existing image. An unknown
// name is reported as a plain error rather than a typed *kerrors.Error,
// since callers here are operators, not peers.
func (m *Manager) Restart(name string) error {
	m.mu.RLock()
	slot, ok := m.slots[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("control: no such domain %q", name)
	}
	return slot.Restart(nil)
}

// HealthServer returns the grpc_health_v1 implementation backing a gRPC
// listener, for daemon wiring to register on a grpc.Server.
func (m *Manager) HealthServer() *health.Server { return m.health }

// ServeHealth runs a dedicated gRPC server exposing only health checking
// on addr, blocking until ctx is canceled. It is kept separate from any
// future domain-facing gRPC surface so a liveness probe never contends
// with real traffic.
func (m *Manager) ServeHealth(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", addr, err)
	}
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, m.health)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		srv.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// HTTPHandler returns the operator-facing JSON API: GET /status, GET
// /domains, POST /domains/{name}/restart.
func (m *Manager) HTTPHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		result := metrics.Global().Snapshot()
		active := 0
		for _, st := range m.List() {
			if st.Active {
				active++
			}
		}
		result["domains_active"] = active
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /domains", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.List())
	})

	mux.HandleFunc("POST /domains/{name}/restart", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		requestID := uuid.NewString()
		if err := m.Restart(name); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error(), "request_id": requestID})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "restarted", "domain": name, "request_id": requestID})
	})

	return mux
}

// ServeHTTP runs the JSON API on addr, blocking until ctx is canceled.
func (m *Manager) ServeHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: m.HTTPHandler()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
