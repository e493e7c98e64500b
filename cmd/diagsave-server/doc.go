// Package main provides the entry point for diagsave-server.
//
// The server keeps debounced, retention-bounded backups of diagram
// snapshots and exposes them over HTTP/HTTPS.
//
// Usage:
//
//	diagsave-server [flags]
//	diagsave-server --config /etc/diagsave/config.yaml
//
// Configuration is read from defaults, the optional YAML file and
// DIAGSAVE_* environment variables, in that order. Changes to log.level
// and backup.enabled in the file are applied without a restart.
package main
