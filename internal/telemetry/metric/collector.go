package metric

import "github.com/prometheus/client_golang/prometheus"

// BufferStats is a point-in-time view of the buffer registry.
type BufferStats struct {
	Active   int
	Pending  int
	Disabled int
}

// BufferStatsSource is implemented by the buffer registry.
type BufferStatsSource interface {
	BufferStats() BufferStats
}

// Collector reports buffer registry state at scrape time.
type Collector struct {
	source BufferStatsSource

	active   *prometheus.Desc
	pending  *prometheus.Desc
	disabled *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source BufferStatsSource) *Collector {
	return &Collector{
		source: source,
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "buffers", "active"),
			"Backup buffers currently open", nil, nil),
		pending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "buffers", "pending"),
			"Backup buffers with a debounced write scheduled", nil, nil),
		disabled: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "buffers", "disabled"),
			"Backup buffers with autosave disabled", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.pending
	ch <- c.disabled
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.BufferStats()
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(s.Active))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(s.Pending))
	ch <- prometheus.MustNewConstMetric(c.disabled, prometheus.GaugeValue, float64(s.Disabled))
}
