package metrics

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecordDomainLoadedIncrementsCounter(t *testing.T) {
	m := &Metrics{startTime: time.Now()}
	m.RecordDomainLoaded()
	m.RecordDomainLoaded()

	if got := m.DomainsLoaded.Load(); got != 2 {
		t.Fatalf("expected 2 domains loaded, got %d", got)
	}
}

func TestRecordCrashUpdatesGlobalAndPerDomainCounters(t *testing.T) {
	m := &Metrics{startTime: time.Now()}
	m.RecordCrash("block0", "block")
	m.RecordCrash("block0", "block")

	if got := m.DomainCrashes.Load(); got != 2 {
		t.Fatalf("expected 2 total crashes, got %d", got)
	}
	stats := m.PerDomainStats()
	dm, ok := stats["block0"].(map[string]any)
	if !ok {
		t.Fatalf("expected per-domain stats for block0, got %+v", stats)
	}
	if dm["crashes"].(int64) != 2 {
		t.Fatalf("expected 2 crashes recorded for block0, got %+v", dm)
	}
}

func TestRecordRestartSplitsOkAndFailed(t *testing.T) {
	m := &Metrics{startTime: time.Now()}
	m.RecordRestart("block0", "block", true, 5*time.Millisecond)
	m.RecordRestart("block0", "block", false, 5*time.Millisecond)

	if m.DomainRestarts.Load() != 1 {
		t.Fatalf("expected 1 successful restart, got %d", m.DomainRestarts.Load())
	}
	if m.RestartFailed.Load() != 1 {
		t.Fatalf("expected 1 failed restart, got %d", m.RestartFailed.Load())
	}
}

func TestSnapshotReportsUptimeAndCounters(t *testing.T) {
	m := &Metrics{startTime: time.Now().Add(-time.Minute)}
	m.RecordDomainLoaded()

	snap := m.Snapshot()
	if snap["domains_loaded"].(int64) != 1 {
		t.Fatalf("expected domains_loaded=1 in snapshot, got %+v", snap)
	}
	if snap["uptime_seconds"].(int64) < 1 {
		t.Fatalf("expected a positive uptime in snapshot, got %+v", snap)
	}
}

func TestJSONHandlerServesSnapshotAsJSON(t *testing.T) {
	m := &Metrics{startTime: time.Now()}
	m.RecordDomainLoaded()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics/json", nil)
	m.JSONHandler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json content type, got %q", ct)
	}
}
