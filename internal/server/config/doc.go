// Package config defines the diagsave-server configuration.
//
//   - spec.go: ServerConfig struct definition and conversions
//   - default.go: default values, also fed to the loader as a flat map
//   - verify.go: validation
//   - sanitize.go: masking of secrets for logging
//
// Configuration is loaded through internal/infra/confloader.
package config
