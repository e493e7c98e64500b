// Package domain defines the core domain models for diagsave.
//
// Domain models are pure value objects without any IO dependencies
// or framework coupling. This package contains:
//
//   - Snapshot: immutable capture of a diagram and its editor metadata
//   - Namespace: validated per-diagram key namespace
//   - Errors: domain-specific error definitions
package domain
