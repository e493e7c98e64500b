package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// BadgerStore implements Store using Badger v3.
type BadgerStore struct {
	db       *badger.DB
	cfg      BadgerConfig
	quota    int64
	maxEntry int64
	logger   *slog.Logger

	// quotaMu serializes writes so used matches the committed data.
	quotaMu sync.Mutex
	used    int64

	closed atomic.Bool

	lastGCTime       atomic.Int64  // Unix milliseconds
	gcBytesReclaimed atomic.Uint64 // Total bytes reclaimed by GC

	// Prometheus metrics
	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge
	metricsGCReclaimed  prometheus.Counter
	metricsUsed         prometheus.Gauge
	reportedReclaimed   uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewBadgerStore opens a Badger-backed store in cfg.Dir.
func NewBadgerStore(cfg Config, logger *slog.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: logger}

	badgerCfg := cfg.Badger
	if badgerCfg.CacheSize > 0 {
		opts.BlockCacheSize = badgerCfg.CacheSize
	}
	if badgerCfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = badgerCfg.ValueLogFileSize
	}
	if badgerCfg.NumMemtables > 0 {
		opts.NumMemtables = badgerCfg.NumMemtables
	}
	opts.SyncWrites = badgerCfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerStore{
		db:       db,
		cfg:      badgerCfg,
		quota:    cfg.QuotaBytes,
		maxEntry: cfg.MaxEntryBytes,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	used, err := s.scanUsed()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("badger: measure usage: %w", err)
	}
	s.used = used

	go s.gcLoop()

	logger.Info("badger store started",
		"dir", cfg.Dir,
		"cache_size", opts.BlockCacheSize,
		"gc_interval", badgerCfg.GCInterval,
		"quota_bytes", cfg.QuotaBytes,
		"max_entry_bytes", cfg.MaxEntryBytes,
		"used_bytes", used)

	return s, nil
}

// Put stores a key-value pair. It fails with ErrQuotaExceeded when the
// entry is larger than MaxEntryBytes or the store would grow past
// QuotaBytes.
func (s *BadgerStore) Put(ctx context.Context, key, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	size := int64(len(key) + len(value))
	if s.maxEntry > 0 && size > s.maxEntry {
		return fmt.Errorf("%w: entry of %d bytes exceeds %d", ErrQuotaExceeded, size, s.maxEntry)
	}

	s.quotaMu.Lock()
	defer s.quotaMu.Unlock()

	var delta int64
	err := s.db.Update(func(txn *badger.Txn) error {
		delta = size
		item, err := txn.Get(key)
		switch {
		case err == nil:
			delta -= entrySize(item)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if s.quota > 0 && s.used+delta > s.quota {
			return fmt.Errorf("%w: %d of %d bytes used, write needs %d more",
				ErrQuotaExceeded, s.used, s.quota, delta)
		}
		return txn.Set(key, value)
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	if err != nil {
		return err
	}
	s.used += delta
	return nil
}

// Get retrieves a value by key.
func (s *BadgerStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Delete removes a key.
func (s *BadgerStore) Delete(ctx context.Context, key []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.quotaMu.Lock()
	defer s.quotaMu.Unlock()

	var freed int64
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case err == nil:
			freed = entrySize(item)
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}
	s.used -= freed
	return nil
}

// Used returns the bytes charged against the quota. Values kept in the
// value log are counted from badger's size estimate.
func (s *BadgerStore) Used() int64 {
	s.quotaMu.Lock()
	defer s.quotaMu.Unlock()
	return s.used
}

func (s *BadgerStore) scanUsed() (int64, error) {
	var used int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			used += entrySize(it.Item())
		}
		return nil
	})
	return used, err
}

func entrySize(item *badger.Item) int64 {
	return item.KeySize() + item.ValueSize()
}

// ListKeys returns keys with the given prefix in ascending order.
// Values are not fetched.
func (s *BadgerStore) ListKeys(ctx context.Context, prefix []byte) ([][]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// GC runs value-log garbage collection until nothing more can be
// rewritten. Returns bytes reclaimed (approximate).
func (s *BadgerStore) GC(ctx context.Context) (uint64, error) {
	startTime := time.Now()

	var totalReclaimed uint64
	for {
		if err := ctx.Err(); err != nil {
			return totalReclaimed, err
		}
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return totalReclaimed, fmt.Errorf("gc: %w", err)
		}

		// Badger does not report an exact count; one rewritten
		// value-log file is assumed to free ~1MB.
		totalReclaimed += 1 << 20
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	s.gcBytesReclaimed.Add(totalReclaimed)

	s.logger.Debug("gc completed",
		"bytes_reclaimed", totalReclaimed,
		"elapsed", time.Since(startTime))

	return totalReclaimed, nil
}

// Stats returns storage statistics.
func (s *BadgerStore) Stats(ctx context.Context) (*Stats, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	lsm, vlog := s.db.Size()

	return &Stats{
		TotalSize:        uint64(lsm + vlog),
		LSMSize:          uint64(lsm),
		ValueLogSize:     uint64(vlog),
		LastGCTime:       s.lastGCTime.Load(),
		GCBytesReclaimed: s.gcBytesReclaimed.Load(),
	}, nil
}

// Close stops background loops and closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("shutting down badger store")

	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	s.logger.Info("badger store shutdown complete")
	return nil
}

// RegisterMetrics registers Badger metrics with Prometheus and starts the
// updater loop. Call once during initialization.
func (s *BadgerStore) RegisterMetrics(registry prometheus.Registerer) *BadgerStore {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "diagsave",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})

	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "diagsave",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})

	s.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "diagsave",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger GC run",
	})

	s.metricsGCReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "diagsave",
		Subsystem: "badger",
		Name:      "gc_bytes_reclaimed_total",
		Help:      "Total bytes reclaimed by Badger garbage collection",
	})

	s.metricsUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "diagsave",
		Subsystem: "badger",
		Name:      "quota_used_bytes",
		Help:      "Bytes of keys and values charged against the storage quota",
	})

	registry.MustRegister(
		s.metricsLSMSize,
		s.metricsValueLogSize,
		s.metricsLastGCTime,
		s.metricsGCReclaimed,
		s.metricsUsed,
	)

	go s.metricsUpdateLoop()

	return s
}

// metricsUpdateLoop periodically updates Prometheus metrics.
func (s *BadgerStore) metricsUpdateLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateMetrics()
		case <-s.stopCh:
			return
		}
	}
}

func (s *BadgerStore) updateMetrics() {
	stats, err := s.Stats(context.Background())
	if err != nil {
		// Store is closing.
		return
	}

	s.metricsLSMSize.Set(float64(stats.LSMSize))
	s.metricsValueLogSize.Set(float64(stats.ValueLogSize))
	s.metricsUsed.Set(float64(s.Used()))
	if stats.LastGCTime > 0 {
		s.metricsLastGCTime.Set(float64(stats.LastGCTime) / 1000.0)
	}

	// Counters only move forward, so feed the delta since the last tick.
	if delta := stats.GCBytesReclaimed - s.reportedReclaimed; delta > 0 {
		s.metricsGCReclaimed.Add(float64(delta))
		s.reportedReclaimed = stats.GCBytesReclaimed
	}
}

// gcLoop runs periodic garbage collection.
func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	interval, err := time.ParseDuration(s.cfg.GCInterval)
	if err != nil || interval <= 0 {
		s.logger.Error("invalid gc_interval, using default 10m", "value", s.cfg.GCInterval, "error", err)
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := s.GC(ctx); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
