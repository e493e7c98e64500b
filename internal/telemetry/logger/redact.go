package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// Attribute keys whose values are secrets. Matched against the lower-cased
// key as a suffix, so "security.encryption_key" and "encryption_key" both
// hit.
var sensitiveKeySuffixes = []string{
	"password",
	"passphrase",
	"secret",
	"encryption_key",
	"master_key",
	"api_key",
	"token",
	"authorization",
}

// Attribute keys that carry raw diagram content. Their values are
// replaced with their length.
var contentKeys = map[string]bool{
	"content":  true,
	"diagram":  true,
	"metadata": true,
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	if a.Value.Kind() != slog.KindString {
		return a
	}
	v := a.Value.String()
	if v == "" {
		return a
	}

	key := strings.ToLower(a.Key)
	if contentKeys[key] {
		return slog.String(a.Key, fmt.Sprintf("[%d bytes]", len(v)))
	}
	if IsSensitiveKey(key) {
		return slog.String(a.Key, redactedValue)
	}
	return a
}

// IsSensitiveKey reports whether an attribute or config key names a
// secret.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, suffix := range sensitiveKeySuffixes {
		if strings.HasSuffix(k, suffix) {
			return true
		}
	}
	return false
}

// RedactString masks value keeping the first and last three characters.
// Short values are fully masked.
func RedactString(value string) string {
	if len(value) <= 12 {
		if value == "" {
			return ""
		}
		return "***"
	}
	return value[:3] + "..." + value[len(value)-3:]
}
