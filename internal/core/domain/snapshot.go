package domain

import (
	"bytes"
	"encoding/json"
	"regexp"
	"time"
)

// timeNow is swapped in tests to pin capture timestamps.
var timeNow = time.Now

// MaxNamespaceLength bounds the length of a diagram namespace.
const MaxNamespaceLength = 128

var unixEpoch = time.Unix(0, 0)

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Snapshot is an immutable capture of diagram state plus editor metadata.
//
// The zero value is an empty snapshot and reports IsZero() == true.
// Accessors return copies, so a Snapshot can be shared freely between
// goroutines once constructed.
type Snapshot struct {
	content    string
	metadata   json.RawMessage
	capturedAt time.Time
}

// NewSnapshot captures content and metadata, stamping the current time.
//
// content is opaque (usually BPMN XML) and is not validated. metadata,
// when non-empty, must be a JSON document.
func NewSnapshot(content string, metadata []byte) (Snapshot, error) {
	return NewSnapshotAt(content, metadata, timeNow())
}

// NewSnapshotAt is NewSnapshot with an explicit capture time. It is used
// when decoding persisted records and by callers that stamp edits themselves.
// capturedAt must be set and not before the Unix epoch.
func NewSnapshotAt(content string, metadata []byte, capturedAt time.Time) (Snapshot, error) {
	if capturedAt.IsZero() {
		return Snapshot{}, ErrSnapshotValidation.WithDetails("capture time is required")
	}
	if capturedAt.Before(unixEpoch) {
		return Snapshot{}, ErrSnapshotValidation.WithDetails("capture time before 1970")
	}

	md := bytes.TrimSpace(metadata)
	if len(md) > 0 && !json.Valid(md) {
		return Snapshot{}, ErrSnapshotValidation.WithDetails("metadata is not valid JSON")
	}

	var owned json.RawMessage
	if len(md) > 0 {
		owned = make(json.RawMessage, len(md))
		copy(owned, md)
	}

	return Snapshot{
		content:    content,
		metadata:   owned,
		capturedAt: capturedAt,
	}, nil
}

// Content returns the serialized diagram state.
func (s Snapshot) Content() string {
	return s.content
}

// Metadata returns a copy of the auxiliary metadata (nil when absent).
func (s Snapshot) Metadata() json.RawMessage {
	if s.metadata == nil {
		return nil
	}
	out := make(json.RawMessage, len(s.metadata))
	copy(out, s.metadata)
	return out
}

// CapturedAt returns the capture timestamp.
func (s Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

// IsZero reports whether s is the zero Snapshot.
func (s Snapshot) IsZero() bool {
	return s.content == "" && s.metadata == nil && s.capturedAt.IsZero()
}

// Equal reports whether two snapshots carry the same content, metadata
// and capture time.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.content == o.content &&
		bytes.Equal(s.metadata, o.metadata) &&
		s.capturedAt.Equal(o.capturedAt)
}

// ValidateNamespace checks a per-diagram key namespace.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return ErrNamespaceInvalid.WithDetails("namespace is required")
	}
	if len(ns) > MaxNamespaceLength {
		return ErrNamespaceInvalid.WithDetails("namespace too long")
	}
	if !namespacePattern.MatchString(ns) {
		return ErrNamespaceInvalid.WithDetails("namespace may only contain letters, digits, '.', '_' and '-'")
	}
	return nil
}
