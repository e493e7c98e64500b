package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/yndnr/diagsave-go/internal/core/service"
	"github.com/yndnr/diagsave-go/internal/infra/buildinfo"
	"github.com/yndnr/diagsave-go/internal/infra/confloader"
	"github.com/yndnr/diagsave-go/internal/infra/shutdown"
	"github.com/yndnr/diagsave-go/internal/server/config"
	"github.com/yndnr/diagsave-go/internal/server/httpserver"
	"github.com/yndnr/diagsave-go/internal/storage"
	"github.com/yndnr/diagsave-go/internal/storage/memory"
	"github.com/yndnr/diagsave-go/internal/storage/snapshot"
	"github.com/yndnr/diagsave-go/internal/telemetry/logger"
	"github.com/yndnr/diagsave-go/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.String("diagsave-server"))
		return nil
	}

	loader, cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slogLogger := log.Slog()

	info := buildinfo.Get()
	log.Info("starting diagsave-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile,
		"settings", config.Sanitize(cfg))

	metrics := metric.NewRegistry()

	store, err := openStore(cfg.Storage, slogLogger, metrics)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	encCfg, err := cfg.Security.EncryptionConfig()
	if err != nil {
		store.Close()
		return err
	}
	keyring, err := snapshot.NewKeyring(encCfg)
	if err != nil {
		store.Close()
		return fmt.Errorf("init keyring: %w", err)
	}

	registry := service.NewRegistry(cfg.Backup.BufferConfig(), slogLogger, store,
		service.WithMetrics(metrics.Backup),
		service.WithKeyring(keyring),
		service.WithErrorHandler(func(namespace string, err error) {
			slogLogger.Error("backup persistence failed", "namespace", namespace, "error", err)
		}),
	)
	metrics.Registerer().MustRegister(metric.NewCollector(registry))

	var ready atomic.Bool
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Buffers:        registry,
		Logger:         slogLogger,
		Metrics:        metrics.HTTP,
		MetricsHandler: metrics.Handler(),
		RateLimit:      cfg.Server.HTTP.RateLimit,
		RateBurst:      cfg.Server.HTTP.RateBurst,
		MaxBodyBytes:   cfg.Server.HTTP.MaxBodyBytes,
		Ready:          ready.Load,
		EnableAudit:    true,
	})

	httpServer := httpserver.New(httpserver.Config{
		Addr:         cfg.Server.HTTP.Addr,
		TLSCertFile:  cfg.Server.HTTP.TLSCertFile,
		TLSKeyFile:   cfg.Server.HTTP.TLSKeyFile,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
	}, router, slogLogger)

	if _, err := httpServer.Listen(); err != nil {
		registry.Close()
		store.Close()
		return err
	}

	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout, slogLogger)

	// Hooks run newest first: HTTP, then buffers, then store.
	shutdownHandler.OnShutdown("store", func(ctx context.Context) error {
		keyring.Close()
		return store.Close()
	})
	shutdownHandler.OnShutdown("backup buffers", func(ctx context.Context) error {
		flushErr := registry.FlushAll(ctx)
		if err := registry.Close(); err != nil {
			return err
		}
		return flushErr
	})
	shutdownHandler.OnShutdown("http", func(ctx context.Context) error {
		ready.Store(false)
		return httpServer.Shutdown(ctx)
	})

	if path := loader.FilePath(); path != "" {
		watcher, err := watchConfig(path, loader, registry, slogLogger)
		if err != nil {
			log.Warn("config hot reload disabled", "path", path, "error", err)
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	go func() {
		if err := httpServer.Serve(); err != nil {
			log.Error("http server error", "error", err)
			cancel(err)
		}
	}()

	ready.Store(true)
	log.Info("server started, press Ctrl+C to stop")

	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from defaults, file and environment.
func loadConfig(configFile string) (*confloader.Loader, *config.ServerConfig, error) {
	opts := []confloader.Option{confloader.WithDefaults(config.DefaultMap())}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)

	var cfg config.ServerConfig
	if err := loader.Load(&cfg); err != nil {
		return nil, nil, err
	}
	if err := config.Verify(&cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, &cfg, nil
}

// initLogger builds the process logger and makes it the default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// openStore opens the configured storage engine.
func openStore(cfg config.StorageSection, log *slog.Logger, metrics *metric.Registry) (storage.Store, error) {
	switch cfg.Engine {
	case storage.EngineMemory:
		log.Warn("memory storage engine selected, backups do not survive restarts")
		return memory.New(
			memory.WithQuota(cfg.QuotaBytes),
			memory.WithMaxEntry(cfg.MaxEntryBytes),
		), nil
	case storage.EngineBadger, "":
		s, err := storage.NewBadgerStore(cfg.StoreConfig(), log)
		if err != nil {
			return nil, err
		}
		return s.RegisterMetrics(metrics.Registerer()), nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}
}

// watchConfig applies reloadable settings when the config file changes.
// Only log.level and backup.enabled take effect without a restart.
func watchConfig(path string, loader *confloader.Loader, registry *service.Registry, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(string) {
		var next config.ServerConfig
		if err := loader.Reload(&next); err != nil {
			log.Error("config reload failed", "path", path, "error", err)
			return
		}
		if err := config.Verify(&next); err != nil {
			log.Error("reloaded config rejected", "path", path, "error", err)
			return
		}

		if next.Log.Level != logger.GetLevel() {
			logger.SetLevel(next.Log.Level)
			log.Info("log level changed", "level", next.Log.Level)
		}
		if next.Backup.Enabled != registry.Enabled() {
			registry.SetEnabled(next.Backup.Enabled)
		}
	})
	watcher.StartAsync()

	return watcher, nil
}
