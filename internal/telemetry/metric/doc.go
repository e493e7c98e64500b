// Package metric provides Prometheus metrics for diagsave.
//
//   - prometheus.go: backup and HTTP metrics, registry and /metrics handler
//   - collector.go: scrape-time collector for buffer registry state
//
// All recording methods are safe on a nil receiver, so components can
// run without metrics in tests.
package metric
