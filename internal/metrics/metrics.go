// Package metrics collects and exposes domain-core observability data.
//
// Two metric stores coexist: a lightweight in-process Metrics struct for the
// unauthenticated JSON status endpoint internal/control exposes, and a
// Prometheus registry (prometheus.go) for scraping by external monitoring.
// Keeping both means a bare `curl` against the control plane works
// without a Prometheus sidecar, while a real deployment still gets
// dashboards and alerting for free.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects domain-core runtime counters. All fields are safe for
// concurrent use; the hot paths (proxy.Do, ledger.Reclaim) touch only
// atomics.
type Metrics struct {
	DomainsLoaded  atomic.Int64
	DomainCrashes  atomic.Int64
	DomainRestarts atomic.Int64
	RestartFailed  atomic.Int64
	CallsTotal     atomic.Int64
	CallsCrashed   atomic.Int64

	perDomain sync.Map // domain name -> *DomainMetrics

	startTime time.Time
}

// DomainMetrics tracks counters for a single domain across its lifetime,
// surviving restarts (it is keyed by name, not by domain.ID).
type DomainMetrics struct {
	Crashes     atomic.Int64
	Restarts    atomic.Int64
	LastCrashAt atomic.Int64 // unix nanos, 0 if never
}

var global = &Metrics{startTime: time.Now()}

// Global returns the process-wide metrics instance.
func Global() *Metrics { return global }

// StartTime returns when the metrics subsystem was initialized.
func StartTime() time.Time { return global.startTime }

// RecordDomainLoaded records a successful initial load.
func (m *Metrics) RecordDomainLoaded() {
	m.DomainsLoaded.Add(1)
	RecordDomainLoaded()
}

// RecordCrash records a crash for the named domain.
func (m *Metrics) RecordCrash(name, kind string) {
	m.DomainCrashes.Add(1)
	dm := m.domain(name)
	dm.Crashes.Add(1)
	dm.LastCrashAt.Store(time.Now().UnixNano())
	RecordDomainCrash(name, kind)
}

// RecordRestart records the outcome of a restart attempt.
func (m *Metrics) RecordRestart(name, kind string, ok bool, d time.Duration) {
	result := "ok"
	if ok {
		m.DomainRestarts.Add(1)
		m.domain(name).Restarts.Add(1)
	} else {
		m.RestartFailed.Add(1)
		result = "failed"
	}
	RecordDomainRestart(name, kind, result, d)
}

// RecordCall records one guarded proxy call.
func (m *Metrics) RecordCall(siteID string, d time.Duration, crashed bool) {
	m.CallsTotal.Add(1)
	if crashed {
		m.CallsCrashed.Add(1)
	}
	RecordCall(siteID, d, crashed)
}

func (m *Metrics) domain(name string) *DomainMetrics {
	if v, ok := m.perDomain.Load(name); ok {
		return v.(*DomainMetrics)
	}
	dm := &DomainMetrics{}
	actual, _ := m.perDomain.LoadOrStore(name, dm)
	return actual.(*DomainMetrics)
}

// Snapshot returns a point-in-time view of the global counters, for the
// JSON status endpoint.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"uptime_seconds":  int64(time.Since(m.startTime).Seconds()),
		"domains_loaded":  m.DomainsLoaded.Load(),
		"domain_crashes":  m.DomainCrashes.Load(),
		"domain_restarts": m.DomainRestarts.Load(),
		"restart_failed":  m.RestartFailed.Load(),
		"calls_total":     m.CallsTotal.Load(),
		"calls_crashed":   m.CallsCrashed.Load(),
	}
}

// PerDomainStats returns per-domain crash/restart counters keyed by name.
func (m *Metrics) PerDomainStats() map[string]any {
	out := make(map[string]any)
	m.perDomain.Range(func(key, value any) bool {
		name := key.(string)
		dm := value.(*DomainMetrics)
		out[name] = map[string]any{
			"crashes":       dm.Crashes.Load(),
			"restarts":      dm.Restarts.Load(),
			"last_crash_at": dm.LastCrashAt.Load(),
		}
		return true
	})
	return out
}

// JSONHandler exposes the current snapshot as JSON.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		result := m.Snapshot()
		result["domains"] = m.PerDomainStats()
		json.NewEncoder(w).Encode(result)
	})
}
