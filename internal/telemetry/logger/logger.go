package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the application logger interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger

	// Slog returns the underlying *slog.Logger.
	Slog() *slog.Logger
}

// Config holds logger configuration.
type Config struct {
	// Level is debug, info, warn or error. Unknown names mean info.
	Level string
	// Format is json (default) or text. "console" is an alias of text.
	Format string
	// Output defaults to os.Stderr.
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns JSON at info level on stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// level is shared by every logger built with New so that SetLevel
// applies process-wide.
var level = new(slog.LevelVar)

type slogLogger struct {
	sl  *slog.Logger
	ctx context.Context
}

// New builds a logger writing through a redacting slog handler.
func New(cfg Config) (Logger, error) {
	level.Set(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	var h slog.Handler
	if f := strings.ToLower(cfg.Format); f == "text" || f == "console" {
		h = slog.NewTextHandler(out, hopts)
	} else {
		h = slog.NewJSONHandler(out, hopts)
	}
	return &slogLogger{sl: slog.New(h), ctx: context.Background()}, nil
}

// SetLevel changes the level of every logger. The config watcher calls
// it when log.level changes.
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

// GetLevel returns the canonical name of the current level.
func GetLevel() string {
	switch level.Level() {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	}
	return "info"
}

// ValidLevel reports whether name is a recognised level name.
func ValidLevel(name string) bool {
	_, ok := levelNames[strings.ToLower(name)]
	return ok
}

func parseLevel(name string) slog.Level {
	if l, ok := levelNames[strings.ToLower(name)]; ok {
		return l
	}
	return slog.LevelInfo
}

func (l *slogLogger) Debug(msg string, args ...any) { l.sl.DebugContext(l.ctx, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.sl.InfoContext(l.ctx, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.sl.WarnContext(l.ctx, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.sl.ErrorContext(l.ctx, msg, args...) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{sl: l.sl.With(args...), ctx: l.ctx}
}

func (l *slogLogger) WithContext(ctx context.Context) Logger {
	return &slogLogger{sl: l.sl, ctx: ctx}
}

func (l *slogLogger) Slog() *slog.Logger { return l.sl }

var std atomic.Pointer[slogLogger]

func init() {
	l, _ := New(DefaultConfig())
	std.Store(l.(*slogLogger))
}

// SetDefault replaces the package logger and installs it as the slog
// default, so code using slog.Default() shares the redacting handler.
func SetDefault(l Logger) {
	sl, ok := l.(*slogLogger)
	if !ok {
		return
	}
	std.Store(sl)
	slog.SetDefault(sl.sl)
}

// Default returns the package logger.
func Default() Logger { return std.Load() }

// Debug logs with the package logger.
func Debug(msg string, args ...any) { std.Load().Debug(msg, args...) }

// Info logs with the package logger.
func Info(msg string, args ...any) { std.Load().Info(msg, args...) }

// Warn logs with the package logger.
func Warn(msg string, args ...any) { std.Load().Warn(msg, args...) }

// Error logs with the package logger.
func Error(msg string, args ...any) { std.Load().Error(msg, args...) }
