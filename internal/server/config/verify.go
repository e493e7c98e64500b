package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/yndnr/diagsave-go/internal/storage"
	"github.com/yndnr/diagsave-go/internal/storage/snapshot"
	"github.com/yndnr/diagsave-go/internal/telemetry/logger"
)

// Verify validates the configuration and reports every problem found.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStorage(&cfg.Storage),
		verifyBackup(&cfg.Backup),
		verifySecurity(&cfg.Security),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error

	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.http.addr: %w", err))
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.http: tls_cert_file and tls_key_file must be set together"))
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("server.http: %w", err))
		}
	}
	if cfg.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("server.http.rate_limit must not be negative"))
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst < 1 {
		errs = append(errs, errors.New("server.http.rate_burst must be at least 1 when rate limiting"))
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.http.max_body_bytes must be positive"))
	}

	return errors.Join(errs...)
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.QuotaBytes < 0 {
		return errors.New("storage.quota_bytes must not be negative")
	}
	if cfg.MaxEntryBytes < 0 {
		return errors.New("storage.max_entry_bytes must not be negative")
	}
	if cfg.QuotaBytes > 0 && cfg.MaxEntryBytes > cfg.QuotaBytes {
		return errors.New("storage.max_entry_bytes must not exceed storage.quota_bytes")
	}

	switch cfg.Engine {
	case storage.EngineMemory:
		return nil
	case storage.EngineBadger:
	default:
		return fmt.Errorf("storage.engine: unknown engine %q (want %s or %s)", cfg.Engine, storage.EngineBadger, storage.EngineMemory)
	}

	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("storage.data_dir: cannot create: %w", err)
	}
	if d, err := time.ParseDuration(cfg.Badger.GCInterval); err != nil || d <= 0 {
		return fmt.Errorf("storage.badger.gc_interval: invalid duration %q", cfg.Badger.GCInterval)
	}
	return nil
}

func verifyBackup(cfg *BackupSection) error {
	var errs []error
	if cfg.Debounce <= 0 {
		errs = append(errs, errors.New("backup.debounce must be positive"))
	}
	if cfg.Retention < 1 {
		errs = append(errs, errors.New("backup.retention must be at least 1"))
	}
	if strings.Trim(cfg.KeyPrefix, "/") == "" {
		errs = append(errs, errors.New("backup.key_prefix is required"))
	}
	return errors.Join(errs...)
}

func verifySecurity(cfg *SecuritySection) error {
	enc, err := cfg.EncryptionConfig()
	if err != nil {
		return err
	}
	if cfg.EncryptionKey != "" && len(enc.Key) != 32 {
		return fmt.Errorf("security.encryption_key must be 32 bytes (64 hex characters), got %d bytes", len(enc.Key))
	}
	if err := snapshot.ValidateConfig(enc); err != nil {
		return fmt.Errorf("security: %w", err)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if !logger.ValidLevel(cfg.Level) {
		return fmt.Errorf("log.level: unknown level %q", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
		return nil
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
}
