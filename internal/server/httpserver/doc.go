// Package httpserver provides the HTTP/HTTPS server for diagsave.
//
// Routes use net/http ServeMux patterns:
//
//   - Backups: /v1/diagrams/{ns}/backups, .../latest, .../{id}, .../requests
//   - Autosave: /v1/diagrams/{ns}/autosave, .../enable, .../disable
//   - Operations: /health, /ready, /version, /metrics
//
// Every route runs behind Recover, RequestID, per-IP RateLimit, Audit
// and Metrics middleware.
package httpserver
