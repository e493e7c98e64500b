package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/yndnr/diagsave-go/internal/core/domain"
	"github.com/yndnr/diagsave-go/internal/storage"
	"github.com/yndnr/diagsave-go/internal/telemetry/metric"
	"github.com/yndnr/diagsave-go/pkg/cmap"
)

// Registry owns one Buffer per diagram namespace over a shared store.
type Registry struct {
	cfg    BufferConfig
	store  storage.Store
	logger *slog.Logger
	opts   []Option

	buffers *cmap.Map[string, *Buffer]

	mu      sync.RWMutex
	enabled bool
	closed  bool
}

// NewRegistry creates a Registry. cfg is the template for every buffer;
// its Namespace is ignored.
func NewRegistry(cfg BufferConfig, logger *slog.Logger, store storage.Store, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Namespace = ""
	cfg.applyDefaults()

	return &Registry{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		opts:    opts,
		buffers: cmap.New[string, *Buffer](),
		enabled: !cfg.StartDisabled,
	}
}

// Get returns the buffer for namespace, creating it on first use.
func (r *Registry) Get(namespace string) (*Buffer, error) {
	if err := domain.ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, domain.ErrBufferClosed
	}

	b, created, err := r.buffers.GetOrCreate(namespace, func() (*Buffer, error) {
		cfg := r.cfg
		cfg.Namespace = namespace
		cfg.StartDisabled = !r.enabled
		return NewBuffer(cfg, r.logger, r.store, r.opts...)
	})
	if err != nil {
		return nil, err
	}
	if created {
		r.logger.Debug("backup buffer created", "namespace", namespace)
	}
	return b, nil
}

// Lookup returns an existing buffer without creating one.
func (r *Registry) Lookup(namespace string) (*Buffer, bool) {
	return r.buffers.Get(namespace)
}

// Namespaces returns the namespaces with an open buffer, sorted.
func (r *Registry) Namespaces() []string {
	return r.buffers.SortedKeys(func(a, b string) bool { return a < b })
}

// SetEnabled toggles autosave on every buffer and sets the default for
// buffers created later.
func (r *Registry) SetEnabled(on bool) {
	r.mu.Lock()
	r.enabled = on
	r.mu.Unlock()

	r.buffers.Range(func(_ string, b *Buffer) bool {
		if on {
			b.Enable()
		} else {
			b.Disable()
		}
		return true
	})
	r.logger.Info("autosave default changed", "enabled", on)
}

// Enabled reports the autosave default for new buffers.
func (r *Registry) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// FlushAll writes every pending snapshot.
func (r *Registry) FlushAll(ctx context.Context) error {
	var errs []error
	for _, b := range r.buffers.Values() {
		if err := b.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BufferStats implements metric.BufferStatsSource.
func (r *Registry) BufferStats() metric.BufferStats {
	var s metric.BufferStats
	r.buffers.Range(func(_ string, b *Buffer) bool {
		st := b.Status()
		s.Active++
		if st.Pending {
			s.Pending++
		}
		if !st.Enabled {
			s.Disabled++
		}
		return true
	})
	return s
}

// Close closes every buffer. Pending snapshots are dropped, so call
// FlushAll first on graceful shutdown.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.buffers.Range(func(_ string, b *Buffer) bool {
		b.Close()
		return true
	})
	r.logger.Info("backup buffers closed", "count", r.buffers.Count())
	return nil
}
