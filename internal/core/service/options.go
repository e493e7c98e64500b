package service

import (
	"github.com/yndnr/diagsave-go/internal/storage/snapshot"
	"github.com/yndnr/diagsave-go/internal/telemetry/metric"
	"github.com/yndnr/diagsave-go/pkg/crypto/adaptive"
)

// ErrorHandler receives persistence failures of a namespace.
type ErrorHandler func(namespace string, err error)

type options struct {
	clock        Clock
	metrics      *metric.BackupMetrics
	cipher       adaptive.Cipher
	keyring      *snapshot.Keyring
	errorHandler ErrorHandler
}

// Option configures a Buffer or Registry.
type Option func(*options)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMetrics records buffer activity in m.
func WithMetrics(m *metric.BackupMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCipher seals records with c. Takes precedence over WithKeyring.
func WithCipher(c adaptive.Cipher) Option {
	return func(o *options) { o.cipher = c }
}

// WithKeyring derives a per-namespace cipher from kr.
func WithKeyring(kr *snapshot.Keyring) Option {
	return func(o *options) { o.keyring = kr }
}

// WithErrorHandler installs a hook for persistence failures.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) { o.errorHandler = h }
}

func buildOptions(opts []Option) options {
	o := options{clock: realClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
