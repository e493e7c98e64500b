package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/diagsave-go/internal/core/domain"
	"github.com/yndnr/diagsave-go/internal/storage"
	"github.com/yndnr/diagsave-go/internal/storage/snapshot"
	"github.com/yndnr/diagsave-go/internal/telemetry/metric"
)

const (
	// DefaultDebounce is the quiet period before a requested save is
	// written.
	DefaultDebounce = 5 * time.Second

	// DefaultRetentionCount is the number of snapshots kept per namespace.
	DefaultRetentionCount = snapshot.DefaultRetentionCount

	// DefaultWriteTimeout bounds a debounced write.
	DefaultWriteTimeout = 10 * time.Second
)

// BufferConfig configures a Buffer.
type BufferConfig struct {
	// Namespace is the diagram key namespace this buffer owns.
	Namespace string

	// Debounce is the quiet period after the last RequestSave.
	Debounce time.Duration

	// RetentionCount is the maximum number of persisted snapshots.
	RetentionCount int

	// KeyPrefix is shared by every namespace in the store.
	KeyPrefix string

	// StartDisabled creates the buffer with autosave off.
	StartDisabled bool

	// WriteTimeout bounds debounced writes, which have no caller context.
	WriteTimeout time.Duration
}

func (c *BufferConfig) applyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.RetentionCount <= 0 {
		c.RetentionCount = DefaultRetentionCount
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = snapshot.DefaultKeyPrefix
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// BufferStatus is a point-in-time view of a Buffer.
type BufferStatus struct {
	Namespace   string    `json:"namespace" yaml:"namespace"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	Pending     bool      `json:"pending" yaml:"pending"`
	Debounce    string    `json:"debounce" yaml:"debounce"`
	Retention   int       `json:"retention" yaml:"retention"`
	LastWriteAt time.Time `json:"last_write_at,omitempty" yaml:"last_write_at,omitempty"`
	LastError   string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Buffer debounces and persists snapshots of one diagram.
//
// All methods are safe for concurrent use. RequestSave, Enable, Disable
// and Pending never block on storage.
type Buffer struct {
	cfg     BufferConfig
	log     *snapshot.Log
	clock   Clock
	logger  *slog.Logger
	metrics *metric.BackupMetrics
	onError ErrorHandler

	mu          sync.Mutex
	enabled     bool
	closed      bool
	pending     *domain.Snapshot
	timer       Timer
	gen         uint64
	clears      uint64
	lastErr     error
	lastWriteAt time.Time

	// writeMu serializes append+prune and clear.
	writeMu sync.Mutex
}

// NewBuffer creates a Buffer persisting into store under cfg.Namespace.
func NewBuffer(cfg BufferConfig, logger *slog.Logger, store storage.Store, opts ...Option) (*Buffer, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)

	cipher := o.cipher
	if cipher == nil && o.keyring != nil {
		c, err := o.keyring.CipherFor(cfg.Namespace)
		if err != nil {
			return nil, fmt.Errorf("backup: derive cipher: %w", err)
		}
		cipher = c
	}

	b := &Buffer{
		cfg:     cfg,
		clock:   o.clock,
		logger:  logger.With("namespace", cfg.Namespace),
		metrics: o.metrics,
		onError: o.errorHandler,
		enabled: !cfg.StartDisabled,
	}

	log, err := snapshot.NewLog(store, snapshot.Config{
		KeyPrefix:      cfg.KeyPrefix,
		Namespace:      cfg.Namespace,
		RetentionCount: cfg.RetentionCount,
		Cipher:         cipher,
		Now:            o.clock.Now,
		OnCorrupt:      b.onCorrupt,
	})
	if err != nil {
		return nil, err
	}
	b.log = log

	return b, nil
}

// Namespace returns the namespace this buffer owns.
func (b *Buffer) Namespace() string {
	return b.cfg.Namespace
}

// ============================================================================
// Save Operations
// ============================================================================

// RequestSave schedules snap to be written once no newer request arrives
// within the debounce interval. A pending snapshot is superseded. It is a
// no-op while the buffer is disabled or closed.
func (b *Buffer) RequestSave(snap domain.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if !b.enabled {
		b.metrics.DroppedDisabled()
		return
	}

	if b.timer != nil {
		b.timer.Stop()
	}
	if b.pending != nil {
		b.metrics.Coalesced()
	}

	b.gen++
	gen := b.gen
	b.pending = &snap
	b.timer = b.clock.AfterFunc(b.cfg.Debounce, func() { b.fire(gen) })
	b.metrics.Requested()
}

// fire runs when the debounce timer of generation gen elapses.
func (b *Buffer) fire(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || b.pending == nil {
		// Superseded, flushed or closed since scheduling.
		b.mu.Unlock()
		return
	}
	snap := *b.pending
	b.pending = nil
	b.timer = nil
	enabled := b.enabled
	clears := b.clears
	b.mu.Unlock()

	if !enabled {
		b.metrics.DroppedDisabled()
		b.logger.Debug("autosave disabled, pending snapshot dropped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.WriteTimeout)
	defer cancel()
	// The failure is already reported; nobody waits on a debounced write.
	_, _ = b.persistPending(ctx, snap, clears)
}

// ForceSave writes snap immediately, ignoring the debounce interval and
// the enable flag, and returns the info of the new record. A pending
// debounced snapshot stays scheduled.
func (b *Buffer) ForceSave(ctx context.Context, snap domain.Snapshot) (*snapshot.Info, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, domain.ErrBufferClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.persist(ctx, snap)
}

// Flush writes the pending snapshot now, if there is one and the buffer
// is enabled.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.pending == nil || !b.enabled {
		b.mu.Unlock()
		return nil
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	snap := *b.pending
	b.pending = nil
	clears := b.clears
	b.mu.Unlock()

	_, err := b.persistPending(ctx, snap, clears)
	return err
}

// persistPending writes a snapshot taken from the pending slot when the
// clear count was clears. It returns a nil info and no error when a Clear
// ran in between, so the snapshot is dropped.
func (b *Buffer) persistPending(ctx context.Context, snap domain.Snapshot, clears uint64) (*snapshot.Info, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	stale := b.clears != clears
	b.mu.Unlock()
	if stale {
		b.logger.Debug("backups cleared, pending snapshot dropped")
		return nil, nil
	}
	return b.persist(ctx, snap)
}

// persist appends snap and applies retention. Prior snapshots are left
// untouched when the append fails. The caller holds writeMu.
func (b *Buffer) persist(ctx context.Context, snap domain.Snapshot) (*snapshot.Info, error) {
	start := time.Now()
	info, err := b.log.Append(ctx, snap)
	if err != nil {
		return nil, b.writeFailed(err, time.Since(start))
	}

	evicted, err := b.log.Prune(ctx)
	b.metrics.Evicted(evicted)
	if err != nil {
		// The new snapshot is durable; a later prune catches up.
		b.logger.Warn("retention prune failed", "error", err, "evicted", evicted)
	}
	b.metrics.Write(metric.ResultOK, time.Since(start))

	b.mu.Lock()
	b.lastErr = nil
	b.lastWriteAt = info.WrittenAt
	b.mu.Unlock()

	b.logger.Debug("snapshot persisted",
		"id", info.ID,
		"size", info.Size,
		"evicted", evicted)
	return info, nil
}

func (b *Buffer) writeFailed(cause error, elapsed time.Duration) error {
	result := metric.ResultError
	err := domain.ErrPersistenceWrite.WithCause(cause)
	switch {
	case errors.Is(cause, storage.ErrQuotaExceeded):
		result = metric.ResultQuota
		err = domain.ErrPersistenceWrite.WithCause(domain.ErrQuotaExceeded.WithCause(cause))
	case domain.IsDomainError(cause, ""):
		err = domain.ErrPersistenceWrite.WithDetails(cause.Error()).WithCause(cause)
	}
	b.metrics.Write(result, elapsed)

	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()

	b.logger.Error("snapshot write failed", "error", cause, "result", result)
	if b.onError != nil {
		b.onError(b.cfg.Namespace, err)
	}
	return err
}

// ============================================================================
// Enable / Disable
// ============================================================================

// Enable turns autosave on.
func (b *Buffer) Enable() {
	b.setEnabled(true)
}

// Disable turns autosave off. A pending snapshot is not flushed; it is
// dropped when its timer fires.
func (b *Buffer) Disable() {
	b.setEnabled(false)
}

func (b *Buffer) setEnabled(on bool) {
	b.mu.Lock()
	changed := b.enabled != on
	b.enabled = on
	b.mu.Unlock()

	if changed {
		b.logger.Info("autosave toggled", "enabled", on)
	}
}

// Enabled reports whether autosave is on.
func (b *Buffer) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Pending reports whether a debounced write is scheduled.
func (b *Buffer) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending != nil
}

// LastError returns the error of the most recent failed write, or nil
// once a later write succeeded.
func (b *Buffer) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Status returns a point-in-time view of the buffer.
func (b *Buffer) Status() BufferStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := BufferStatus{
		Namespace:   b.cfg.Namespace,
		Enabled:     b.enabled,
		Pending:     b.pending != nil,
		Debounce:    b.cfg.Debounce.String(),
		Retention:   b.cfg.RetentionCount,
		LastWriteAt: b.lastWriteAt,
	}
	if b.lastErr != nil {
		s.LastError = b.lastErr.Error()
	}
	return s
}

// ============================================================================
// Read Operations
// ============================================================================

// Latest returns the most recently persisted snapshot that decodes
// cleanly. ok is false when none exists or the store cannot be read.
func (b *Buffer) Latest(ctx context.Context) (domain.Snapshot, bool) {
	snap, _, err := b.LatestInfo(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrBackupNotFound) {
			b.logger.Warn("latest snapshot unreadable", "error", err)
		}
		return domain.Snapshot{}, false
	}
	return snap, true
}

// LatestInfo is Latest with the record info. It returns
// domain.ErrBackupNotFound when no valid snapshot exists and
// domain.ErrPersistenceRead when the store fails.
func (b *Buffer) LatestInfo(ctx context.Context) (domain.Snapshot, *snapshot.Info, error) {
	snap, info, err := b.log.Latest(ctx)
	switch {
	case err == nil:
		return snap, info, nil
	case errors.Is(err, snapshot.ErrNoSnapshots):
		return domain.Snapshot{}, nil, domain.ErrBackupNotFound
	default:
		return domain.Snapshot{}, nil, domain.ErrPersistenceRead.WithCause(err)
	}
}

// Load returns the snapshot with the given ID. It returns
// domain.ErrBackupNotFound for unknown or corrupt IDs.
func (b *Buffer) Load(ctx context.Context, id string) (domain.Snapshot, *snapshot.Info, error) {
	snap, info, err := b.log.Load(ctx, id)
	switch {
	case err == nil:
		return snap, info, nil
	case errors.Is(err, snapshot.ErrNotFound), errors.Is(err, snapshot.ErrCorrupt):
		return domain.Snapshot{}, nil, domain.ErrBackupNotFound.WithDetails(id)
	default:
		return domain.Snapshot{}, nil, domain.ErrPersistenceRead.WithCause(err)
	}
}

// History lists persisted snapshots, newest first.
func (b *Buffer) History(ctx context.Context) ([]*snapshot.Info, error) {
	infos, err := b.log.List(ctx)
	if err != nil {
		return nil, domain.ErrPersistenceRead.WithCause(err)
	}
	return infos, nil
}

// Clear deletes every persisted snapshot of the namespace and drops a
// pending one. A debounced write that already left the pending slot is
// dropped too, so nothing older than the clear is written after it.
func (b *Buffer) Clear(ctx context.Context) (int, error) {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	b.clears++
	b.pending = nil
	b.mu.Unlock()

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	n, err := b.log.Clear(ctx)
	if err != nil {
		return n, domain.ErrPersistenceWrite.WithCause(err)
	}
	b.logger.Info("backups cleared", "deleted", n)
	return n, nil
}

// Close stops the pending timer. Later RequestSave calls are ignored and
// ForceSave returns domain.ErrBufferClosed. Call Flush first to keep the
// pending snapshot.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	if b.pending != nil {
		b.logger.Warn("buffer closed with a pending snapshot")
		b.pending = nil
	}
}

func (b *Buffer) onCorrupt(key string, err error) {
	b.metrics.Corrupt()
	b.logger.Warn("skipping corrupt snapshot", "key", key, "error", err)
}
