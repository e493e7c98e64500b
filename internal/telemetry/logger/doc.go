// Package logger provides structured logging for diagsave.
//
// It wraps log/slog:
//
//   - logger.go: configuration, dynamic level and the package default
//   - context.go: request ID and namespace propagation through context.Context
//   - redact.go: masking of key material and raw diagram content
//
// Components that only need to log take a *slog.Logger; use Slog() to
// obtain one that shares the redacting handler and the global level.
package logger
