package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/yndnr/diagsave-go/internal/core/service"
	"github.com/yndnr/diagsave-go/internal/storage"
	"github.com/yndnr/diagsave-go/internal/storage/snapshot"
)

// ServerConfig is the root configuration for diagsave-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Backup   BackupSection   `koanf:"backup"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`

	// ShutdownTimeout bounds the whole graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// RateLimit is the sustained requests per second allowed per client
	// IP. Zero disables rate limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// MaxBodyBytes caps snapshot upload size.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// StorageSection configures the key-value store.
type StorageSection struct {
	Engine  string `koanf:"engine"`
	DataDir string `koanf:"data_dir"`

	// QuotaBytes caps the whole store; MaxEntryBytes caps one snapshot
	// record. Zero disables either limit.
	QuotaBytes    int64         `koanf:"quota_bytes"`
	MaxEntryBytes int64         `koanf:"max_entry_bytes"`
	Badger        BadgerSection `koanf:"badger"`
}

// BadgerSection tunes the badger engine.
type BadgerSection struct {
	GCInterval string `koanf:"gc_interval"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// BackupSection configures backup buffers.
type BackupSection struct {
	// Enabled is the autosave default. Reloadable.
	Enabled      bool          `koanf:"enabled"`
	Debounce     time.Duration `koanf:"debounce"`
	Retention    int           `koanf:"retention"`
	KeyPrefix    string        `koanf:"key_prefix"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// SecuritySection configures at-rest encryption of snapshots.
type SecuritySection struct {
	// EncryptionKey is a hex encoded 32-byte master key.
	EncryptionKey string `koanf:"encryption_key"`

	// Passphrase derives the master key with Argon2id; Salt (hex) is
	// required with it.
	Passphrase string `koanf:"passphrase"`
	Salt       string `koanf:"salt"`

	// Algorithm is aes-gcm, chacha20-poly1305 or empty for automatic.
	Algorithm string `koanf:"algorithm"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StoreConfig converts the section to a storage.Config.
func (s StorageSection) StoreConfig() storage.Config {
	cfg := storage.DefaultConfig(s.DataDir)
	cfg.Engine = s.Engine
	cfg.QuotaBytes = s.QuotaBytes
	cfg.MaxEntryBytes = s.MaxEntryBytes
	if s.Badger.GCInterval != "" {
		cfg.Badger.GCInterval = s.Badger.GCInterval
	}
	cfg.Badger.SyncWrites = s.Badger.SyncWrites
	return cfg
}

// BufferConfig converts the section to a buffer template.
func (b BackupSection) BufferConfig() service.BufferConfig {
	return service.BufferConfig{
		Debounce:       b.Debounce,
		RetentionCount: b.Retention,
		KeyPrefix:      b.KeyPrefix,
		StartDisabled:  !b.Enabled,
		WriteTimeout:   b.WriteTimeout,
	}
}

// EncryptionConfig decodes the section into a snapshot.EncryptionConfig.
func (s SecuritySection) EncryptionConfig() (snapshot.EncryptionConfig, error) {
	cfg := snapshot.EncryptionConfig{Algorithm: s.Algorithm}

	if s.EncryptionKey != "" {
		key, err := hex.DecodeString(s.EncryptionKey)
		if err != nil {
			return cfg, fmt.Errorf("security.encryption_key: not hex: %w", err)
		}
		cfg.Key = key
	}
	if s.Passphrase != "" {
		cfg.Passphrase = []byte(s.Passphrase)
	}
	if s.Salt != "" {
		salt, err := hex.DecodeString(s.Salt)
		if err != nil {
			return cfg, fmt.Errorf("security.salt: not hex: %w", err)
		}
		cfg.Salt = salt
	}
	return cfg, nil
}
