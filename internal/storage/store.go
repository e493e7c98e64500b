package storage

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrClosed        = errors.New("kv store closed")
	ErrQuotaExceeded = errors.New("kv store quota exceeded")
)

// Engine names accepted by Config.Engine.
const (
	EngineBadger = "badger"
	EngineMemory = "memory"
)

// Store is a durable key-value persistence surface.
//
// Implementations must be safe for concurrent use. Writes may fail with
// ErrQuotaExceeded when the store is capacity-bounded.
type Store interface {
	// Put stores a key-value pair, replacing any existing value.
	Put(ctx context.Context, key, value []byte) error

	// Get retrieves a value by key.
	// Returns ErrKeyNotFound if key doesn't exist.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error

	// ListKeys returns all keys starting with prefix in ascending
	// byte order.
	ListKeys(ctx context.Context, prefix []byte) ([][]byte, error)

	// Close releases the store.
	Close() error
}

// Stats contains storage engine statistics.
type Stats struct {
	// TotalSize is the total disk usage in bytes.
	TotalSize uint64

	// LSMSize is the LSM tree size (Badger).
	LSMSize uint64

	// ValueLogSize is the value log size (Badger).
	ValueLogSize uint64

	// LastGCTime is the last GC run timestamp (Unix milliseconds).
	LastGCTime int64

	// GCBytesReclaimed is the total bytes reclaimed by GC.
	GCBytesReclaimed uint64
}

// Config configures the persistence engine.
type Config struct {
	// Engine specifies the engine type ("badger" or "memory").
	// Default: "badger"
	Engine string

	// Dir is the storage directory (badger only).
	Dir string

	// QuotaBytes caps the total size of keys plus values held by the
	// store. Zero disables the limit.
	QuotaBytes int64

	// MaxEntryBytes caps the size of a single key plus value. Zero
	// disables the limit.
	MaxEntryBytes int64

	// Badger-specific configuration
	Badger BadgerConfig
}

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between automatic GC runs.
	// Default: 10m
	GCInterval string

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5 (run GC when 50% of data is stale)
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 16MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 64MB
	ValueLogFileSize int64

	// NumMemtables is the number of memtables.
	// Default: 2
	NumMemtables int

	// SyncWrites enables fsync after each write. Backups are small and
	// infrequent, so this defaults to true.
	SyncWrites bool
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Engine: EngineBadger,
		Dir:    dir,
		Badger: DefaultBadgerConfig(),
	}
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       "10m",
		GCThreshold:      0.5,
		CacheSize:        16 << 20, // 16MB
		ValueLogFileSize: 64 << 20, // 64MB
		NumMemtables:     2,
		SyncWrites:       true,
	}
}
