package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/diagsave-go/internal/core/domain"
	"github.com/yndnr/diagsave-go/internal/core/service"
	"github.com/yndnr/diagsave-go/internal/telemetry/logger"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 8 << 20

// Buffers resolves the backup buffer of a namespace.
type Buffers interface {
	Get(namespace string) (*service.Buffer, error)
	Namespaces() []string
}

// Handler serves the diagsave API.
type Handler struct {
	buffers      Buffers
	logger       *slog.Logger
	maxBodyBytes int64
	ready        func() bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxBodyBytes limits the size of snapshot uploads.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithReadiness sets the check behind GET /ready.
func WithReadiness(ready func() bool) Option {
	return func(h *Handler) {
		h.ready = ready
	}
}

// New creates a Handler.
func New(buffers Buffers, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		buffers:      buffers,
		logger:       logger,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// buffer resolves the {ns} path value, writing the error response itself
// when it cannot.
func (h *Handler) buffer(w http.ResponseWriter, r *http.Request) (*service.Buffer, bool) {
	b, err := h.buffers.Get(r.PathValue("ns"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return nil, false
	}
	return b, true
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	// Quota rejections arrive wrapped in a write error.
	if errors.Is(err, domain.ErrQuotaExceeded) {
		h.writeError(w, r, http.StatusInsufficientStorage, domain.ErrQuotaExceeded.Code, err.Error(), nil)
		return
	}

	ctx := r.Context()
	if ns := r.PathValue("ns"); ns != "" {
		ctx = logger.WithNamespace(ctx, ns)
	}

	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		status := errorCodeToHTTPStatus(code)
		if status >= 500 {
			logger.L(ctx).Error("request failed", "error", err, "code", code)
		}
		h.writeError(w, r, status, code, err.Error(), nil)
		return
	}

	logger.L(ctx).Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, "internal server error", nil)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4100"):
		return http.StatusGone
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4001"), strings.HasSuffix(code, "-4002"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-5070"):
		return http.StatusInsufficientStorage
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
