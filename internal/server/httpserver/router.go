package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/diagsave-go/internal/server/httpserver/handler"
	"github.com/yndnr/diagsave-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Buffers resolves per-namespace backup buffers.
	Buffers handler.Buffers

	// Logger for request logging.
	Logger *slog.Logger

	// Metrics records per-route request metrics. Optional.
	Metrics *metric.HTTPMetrics

	// MetricsHandler serves GET /metrics. Optional.
	MetricsHandler http.Handler

	// RateLimit is the sustained requests per second per client IP.
	// Zero disables rate limiting.
	RateLimit float64
	RateBurst int

	// MaxBodyBytes caps snapshot uploads.
	MaxBodyBytes int64

	// Ready backs GET /ready. Optional.
	Ready func() bool

	// EnableAudit enables one log line per request.
	EnableAudit bool
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		RateLimit:    50,
		RateBurst:    100,
		MaxBodyBytes: handler.DefaultMaxBodyBytes,
		EnableAudit:  true,
	}
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := handler.New(cfg.Buffers, log,
		handler.WithMaxBodyBytes(cfg.MaxBodyBytes),
		handler.WithReadiness(cfg.Ready))

	var limiter *RateLimiter
	if cfg.RateLimit > 0 {
		limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	mux := http.NewServeMux()

	// Order: RequestID -> Metrics -> Audit -> Recover -> RateLimit -> handler
	handle := func(pattern string, fn http.HandlerFunc, limited bool) {
		mws := []Middleware{RequestID(), Metrics(cfg.Metrics, pattern)}
		if cfg.EnableAudit {
			mws = append(mws, Audit(log))
		}
		mws = append(mws, Recover(log))
		if limited && limiter != nil {
			mws = append(mws, limiter.Middleware())
		}
		mux.Handle(pattern, Chain(fn, mws...))
	}

	// Operational endpoints are not rate limited.
	handle("GET /health", h.HandleHealth, false)
	handle("GET /ready", h.HandleReady, false)
	handle("GET /version", h.HandleVersion, false)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	handle("GET /v1/diagrams", h.HandleListNamespaces, true)

	// Backups
	handle("POST /v1/diagrams/{ns}/backups/requests", h.HandleRequestSave, true)
	handle("POST /v1/diagrams/{ns}/backups", h.HandleForceSave, true)
	handle("GET /v1/diagrams/{ns}/backups", h.HandleListBackups, true)
	handle("DELETE /v1/diagrams/{ns}/backups", h.HandleClearBackups, true)
	handle("GET /v1/diagrams/{ns}/backups/latest", h.HandleLatest, true)
	handle("GET /v1/diagrams/{ns}/backups/{id}", h.HandleGetBackup, true)

	// Autosave
	handle("GET /v1/diagrams/{ns}/autosave", h.HandleAutosaveStatus, true)
	handle("POST /v1/diagrams/{ns}/autosave/enable", h.HandleEnableAutosave, true)
	handle("POST /v1/diagrams/{ns}/autosave/disable", h.HandleDisableAutosave, true)

	return mux
}
