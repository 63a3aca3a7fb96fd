package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps the prometheus collectors exposed for external
// scraping alongside the lightweight in-process Metrics (metrics.go).
type PrometheusMetrics struct {
	registry *prometheus.Registry

	domainsLoaded   prometheus.Counter
	domainCrashes   *prometheus.CounterVec
	domainRestarts  *prometheus.CounterVec
	restartDuration *prometheus.HistogramVec
	callDuration    *prometheus.HistogramVec
	callsCrashed    *prometheus.CounterVec

	activeDomains  prometheus.Gauge
	ledgerEntries  prometheus.Gauge
	pagesFree      prometheus.Gauge
	hartDepth      *prometheus.GaugeVec
	uptime         prometheus.GaugeFunc
}

var defaultBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000}

var promMetrics *PrometheusMetrics

// InitPrometheus installs the domain-core collectors under namespace.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		domainsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "domains_loaded_total",
			Help: "Total domain images laid out by the loader",
		}),
		domainCrashes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "domain_crashes_total",
			Help: "Total crashes observed per domain",
		}, []string{"domain", "kind"}),
		domainRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "domain_restarts_total",
			Help: "Total restarts completed per domain",
		}, []string{"domain", "kind", "result"}),
		restartDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "domain_restart_milliseconds",
			Help: "Time to reload, re-activate, and replay a domain", Buckets: buckets,
		}, []string{"domain"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "proxy_call_milliseconds",
			Help: "Latency of guarded cross-domain calls", Buckets: buckets,
		}, []string{"site"}),
		callsCrashed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "proxy_calls_crashed_total",
			Help: "Guarded calls that returned a domain-crashed error",
		}, []string{"site"}),
		activeDomains: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_domains",
			Help: "Number of domains currently marked active",
		}),
		ledgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ledger_entries",
			Help: "Number of live resource-ledger entries",
		}),
		pagesFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pages_free",
			Help: "Free pages remaining in the page allocator",
		}),
		hartDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "hart_continuation_depth",
			Help: "Current continuation stack depth per hart",
		}, []string{"hart"}),
	}

	pm.uptime = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: "uptime_seconds",
		Help: "Time since the kernel core started",
	}, func() float64 { return time.Since(StartTime()).Seconds() })

	registry.MustRegister(
		pm.domainsLoaded, pm.domainCrashes, pm.domainRestarts,
		pm.restartDuration, pm.callDuration, pm.callsCrashed,
		pm.activeDomains, pm.ledgerEntries, pm.pagesFree, pm.hartDepth, pm.uptime,
	)
	promMetrics = pm
}

// RecordDomainLoaded increments the domains-loaded counter.
func RecordDomainLoaded() {
	if promMetrics == nil {
		return
	}
	promMetrics.domainsLoaded.Inc()
}

// RecordDomainCrash records a crash for a domain.
func RecordDomainCrash(domainName, kind string) {
	if promMetrics == nil {
		return
	}
	promMetrics.domainCrashes.WithLabelValues(domainName, kind).Inc()
}

// RecordDomainRestart records a restart attempt's outcome and duration.
func RecordDomainRestart(domainName, kind, result string, d time.Duration) {
	if promMetrics == nil {
		return
	}
	promMetrics.domainRestarts.WithLabelValues(domainName, kind, result).Inc()
	promMetrics.restartDuration.WithLabelValues(domainName).Observe(float64(d.Milliseconds()))
}

// RecordCall records one guarded proxy call's latency and whether it
// returned a domain-crashed error.
func RecordCall(siteID string, d time.Duration, crashed bool) {
	if promMetrics == nil {
		return
	}
	promMetrics.callDuration.WithLabelValues(siteID).Observe(float64(d.Milliseconds()))
	if crashed {
		promMetrics.callsCrashed.WithLabelValues(siteID).Inc()
	}
}

// SetActiveDomains sets the active-domains gauge.
func SetActiveDomains(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.activeDomains.Set(float64(n))
}

// SetLedgerEntries sets the live-ledger-entries gauge.
func SetLedgerEntries(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.ledgerEntries.Set(float64(n))
}

// SetPagesFree sets the free-pages gauge.
func SetPagesFree(n uint64) {
	if promMetrics == nil {
		return
	}
	promMetrics.pagesFree.Set(float64(n))
}

// SetHartDepth sets the continuation-depth gauge for one hart.
func SetHartDepth(hartID string, depth int) {
	if promMetrics == nil {
		return
	}
	promMetrics.hartDepth.WithLabelValues(hartID).Set(float64(depth))
}

// PrometheusHandler returns an HTTP handler for metrics scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the underlying registry, for tests that want
// to assert a collector was registered.
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
