package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "obrawatch"

// Metrics owns a private registry so tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	sourceRequests  *prometheus.CounterVec
	sourceLatency   *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	projects        prometheus.Gauge
	attention       prometheus.Gauge
	orphanedAlerts  prometheus.Gauge
	changes         *prometheus.GaugeVec
	published       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.sourceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Upstream API requests by source and outcome (ok, error, fallback).",
		},
		[]string{"source", "outcome"},
	)
	m.sourceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_seconds",
			Help:      "Upstream API request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unified_cache_lookups_total",
			Help:      "Unified data cache lookups by result (hit, miss, forced).",
		},
		[]string{"result"},
	)
	m.projects = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "unified_projects",
		Help:      "Unified projects produced by the last refresh.",
	})
	m.attention = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "unified_projects_requiring_attention",
		Help:      "Unified projects flagged as requiring attention.",
	})
	m.orphanedAlerts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "orphaned_alerts",
		Help:      "Alerts whose work id is missing from the works collection.",
	})
	m.changes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "significant_changes",
			Help:      "Works with a significant change by kind.",
		},
		[]string{"kind"},
	)
	m.published = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_events_total",
			Help:      "Events written to the broker by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	m.refreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "refresh_seconds",
		Help:      "Duration of a full refresh cycle.",
		Buckets:   prometheus.DefBuckets,
	})
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sourceRequests,
		m.sourceLatency,
		m.cacheLookups,
		m.projects,
		m.attention,
		m.orphanedAlerts,
		m.changes,
		m.published,
		m.refreshDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSource(source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.sourceRequests.WithLabelValues(source, outcome).Inc()
	m.sourceLatency.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) SetProjects(total, attention, orphaned int) {
	if m == nil {
		return
	}
	m.projects.Set(float64(total))
	m.attention.Set(float64(attention))
	m.orphanedAlerts.Set(float64(orphaned))
}

func (m *Metrics) SetChanges(kind string, n int) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(kind).Set(float64(n))
}

func (m *Metrics) Published(kind, outcome string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(d.Seconds())
}
