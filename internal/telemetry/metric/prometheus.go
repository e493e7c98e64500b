package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "diagsave"

// Write results used as the "result" label of writes_total.
const (
	ResultOK    = "ok"
	ResultQuota = "quota_exceeded"
	ResultError = "error"
)

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	Backup *BackupMetrics
	HTTP   *HTTPMetrics
}

// NewRegistry creates a registry with Go runtime, process, backup and
// HTTP metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		reg:    reg,
		Backup: NewBackupMetrics(reg),
		HTTP:   NewHTTPMetrics(reg),
	}
}

// Registerer exposes the underlying registry for other components
// (storage engines, collectors).
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Gatherer exposes the underlying registry for scraping.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// BackupMetrics instruments backup buffers.
type BackupMetrics struct {
	requests        prometheus.Counter
	coalesced       prometheus.Counter
	droppedDisabled prometheus.Counter
	writes          *prometheus.CounterVec
	writeDuration   prometheus.Histogram
	evictions       prometheus.Counter
	corruptEntries  prometheus.Counter
}

// NewBackupMetrics creates and registers backup metrics with reg.
func NewBackupMetrics(reg prometheus.Registerer) *BackupMetrics {
	m := &BackupMetrics{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "requests_total",
			Help:      "Debounced save requests accepted while autosave was enabled",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "coalesced_total",
			Help:      "Pending snapshots superseded before their debounce window elapsed",
		}),
		droppedDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "dropped_disabled_total",
			Help:      "Save requests or pending snapshots dropped because autosave was disabled",
		}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "writes_total",
			Help:      "Snapshot write attempts by result",
		}, []string{"result"}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "write_duration_seconds",
			Help:      "Latency of snapshot persistence including retention",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "evictions_total",
			Help:      "Snapshots deleted by the retention cap",
		}),
		corruptEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "corrupt_entries_total",
			Help:      "Corrupt snapshot records skipped while reading",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.requests,
			m.coalesced,
			m.droppedDisabled,
			m.writes,
			m.writeDuration,
			m.evictions,
			m.corruptEntries,
		)
	}
	return m
}

// Requested records an accepted RequestSave.
func (m *BackupMetrics) Requested() {
	if m != nil {
		m.requests.Inc()
	}
}

// Coalesced records a pending snapshot replaced by a newer one.
func (m *BackupMetrics) Coalesced() {
	if m != nil {
		m.coalesced.Inc()
	}
}

// DroppedDisabled records a request or pending write dropped while
// autosave was disabled.
func (m *BackupMetrics) DroppedDisabled() {
	if m != nil {
		m.droppedDisabled.Inc()
	}
}

// Write records one persistence attempt.
func (m *BackupMetrics) Write(result string, elapsed time.Duration) {
	if m != nil {
		m.writes.WithLabelValues(result).Inc()
		m.writeDuration.Observe(elapsed.Seconds())
	}
}

// Evicted records n snapshots removed by retention.
func (m *BackupMetrics) Evicted(n int) {
	if m != nil && n > 0 {
		m.evictions.Add(float64(n))
	}
}

// Corrupt records a skipped corrupt record.
func (m *BackupMetrics) Corrupt() {
	if m != nil {
		m.corruptEntries.Inc()
	}
}

// HTTPMetrics instruments the HTTP API.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates and registers HTTP metrics with reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

// Observe records one HTTP request. route is the matched mux pattern,
// never the raw path.
func (m *HTTPMetrics) Observe(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
