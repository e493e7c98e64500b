package config

import (
	"time"

	"github.com/yndnr/diagsave-go/internal/core/service"
	"github.com/yndnr/diagsave-go/internal/storage"
	"github.com/yndnr/diagsave-go/internal/storage/memory"
	"github.com/yndnr/diagsave-go/internal/storage/snapshot"
)

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5480"
	DefaultRateLimit       = 50.0
	DefaultRateBurst       = 100
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultMaxBodyBytes    = 8 << 20
	DefaultShutdownTimeout = 30 * time.Second

	DefaultEngine     = storage.EngineBadger
	DefaultDataDir    = "/var/lib/diagsave/data"
	DefaultQuotaBytes    = memory.DefaultQuotaBytes
	DefaultMaxEntryBytes = 2 << 20
	DefaultGCInterval    = "10m"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:         DefaultHTTPAddr,
				RateLimit:    DefaultRateLimit,
				RateBurst:    DefaultRateBurst,
				ReadTimeout:  DefaultReadTimeout,
				WriteTimeout: DefaultWriteTimeout,
				MaxBodyBytes: DefaultMaxBodyBytes,
			},
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: StorageSection{
			Engine:     DefaultEngine,
			DataDir:    DefaultDataDir,
			QuotaBytes:    DefaultQuotaBytes,
			MaxEntryBytes: DefaultMaxEntryBytes,
			Badger: BadgerSection{
				GCInterval: DefaultGCInterval,
				SyncWrites: true,
			},
		},
		Backup: BackupSection{
			Enabled:      true,
			Debounce:     service.DefaultDebounce,
			Retention:    service.DefaultRetentionCount,
			KeyPrefix:    snapshot.DefaultKeyPrefix,
			WriteTimeout: service.DefaultWriteTimeout,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// DefaultMap returns the defaults as dotted keys for confloader.
// Durations are rendered as strings so env and file values of the same
// shape override them cleanly.
func DefaultMap() map[string]any {
	d := Default()
	return map[string]any{
		"server.http.addr":           d.Server.HTTP.Addr,
		"server.http.tls_cert_file":  "",
		"server.http.tls_key_file":   "",
		"server.http.rate_limit":     d.Server.HTTP.RateLimit,
		"server.http.rate_burst":     d.Server.HTTP.RateBurst,
		"server.http.read_timeout":   d.Server.HTTP.ReadTimeout.String(),
		"server.http.write_timeout":  d.Server.HTTP.WriteTimeout.String(),
		"server.http.max_body_bytes": d.Server.HTTP.MaxBodyBytes,
		"server.shutdown_timeout":    d.Server.ShutdownTimeout.String(),
		"storage.engine":             d.Storage.Engine,
		"storage.data_dir":           d.Storage.DataDir,
		"storage.quota_bytes":        d.Storage.QuotaBytes,
		"storage.max_entry_bytes":    d.Storage.MaxEntryBytes,
		"storage.badger.gc_interval": d.Storage.Badger.GCInterval,
		"storage.badger.sync_writes": d.Storage.Badger.SyncWrites,
		"backup.enabled":             d.Backup.Enabled,
		"backup.debounce":            d.Backup.Debounce.String(),
		"backup.retention":           d.Backup.Retention,
		"backup.key_prefix":          d.Backup.KeyPrefix,
		"backup.write_timeout":       d.Backup.WriteTimeout.String(),
		"security.encryption_key":    "",
		"security.passphrase":        "",
		"security.salt":              "",
		"security.algorithm":         "",
		"log.level":                  d.Log.Level,
		"log.format":                 d.Log.Format,
	}
}
