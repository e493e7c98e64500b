package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewSnapshot_StampsCaptureTime(t *testing.T) {
	pinned := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := timeNow
	timeNow = func() time.Time { return pinned }
	defer func() { timeNow = orig }()

	s, err := NewSnapshot("<bpmn:definitions/>", []byte(`{"panel":"general"}`))
	if err != nil {
		t.Fatalf("NewSnapshot() error = %v", err)
	}
	if !s.CapturedAt().Equal(pinned) {
		t.Errorf("CapturedAt() = %v, want %v", s.CapturedAt(), pinned)
	}
	if s.Content() != "<bpmn:definitions/>" {
		t.Errorf("Content() = %q", s.Content())
	}
	if string(s.Metadata()) != `{"panel":"general"}` {
		t.Errorf("Metadata() = %s", s.Metadata())
	}
}

func TestNewSnapshot_RejectsInvalidMetadata(t *testing.T) {
	_, err := NewSnapshot("x", []byte("{not json"))
	if !errors.Is(err, ErrSnapshotValidation) {
		t.Fatalf("expected ErrSnapshotValidation, got %v", err)
	}
}

func TestNewSnapshotAt_CaptureTime(t *testing.T) {
	tests := []struct {
		name    string
		at      time.Time
		wantErr bool
	}{
		{"zero", time.Time{}, true},
		{"before epoch", time.Date(1969, 12, 31, 23, 59, 59, 0, time.UTC), true},
		{"epoch", time.Unix(0, 0), false},
		{"recent", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSnapshotAt("x", nil, tt.at)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSnapshotAt(%v) error = %v, wantErr %v", tt.at, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrSnapshotValidation) {
					t.Errorf("expected ErrSnapshotValidation, got %v", err)
				}
				return
			}
			if !s.CapturedAt().Equal(tt.at) {
				t.Errorf("CapturedAt() = %v, want %v", s.CapturedAt(), tt.at)
			}
		})
	}
}

func TestNewSnapshot_EmptyMetadata(t *testing.T) {
	s, err := NewSnapshot("x", []byte("   "))
	if err != nil {
		t.Fatal(err)
	}
	if s.Metadata() != nil {
		t.Errorf("Metadata() = %s, want nil", s.Metadata())
	}
}

func TestSnapshot_Immutable(t *testing.T) {
	md := []byte(`{"a":1}`)
	s, err := NewSnapshotAt("content", md, time.Unix(1, 0))
	if err != nil {
		t.Fatal(err)
	}

	md[2] = 'b'
	if string(s.Metadata()) != `{"a":1}` {
		t.Errorf("snapshot shares caller buffer: %s", s.Metadata())
	}

	out := s.Metadata()
	out[2] = 'c'
	if string(s.Metadata()) != `{"a":1}` {
		t.Errorf("Metadata() exposes internal buffer: %s", s.Metadata())
	}
}

func TestSnapshot_EqualAndIsZero(t *testing.T) {
	at := time.Unix(100, 0)
	a, _ := NewSnapshotAt("c", []byte(`{}`), at)
	b, _ := NewSnapshotAt("c", []byte(`{}`), at)
	c, _ := NewSnapshotAt("c", []byte(`{}`), at.Add(time.Millisecond))

	if !a.Equal(b) {
		t.Error("identical snapshots should be equal")
	}
	if a.Equal(c) {
		t.Error("snapshots with different capture times should differ")
	}
	if !(Snapshot{}).IsZero() {
		t.Error("zero Snapshot should report IsZero")
	}
	if a.IsZero() {
		t.Error("populated snapshot should not report IsZero")
	}
}

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		name    string
		ns      string
		wantErr bool
	}{
		{"simple", "order-process", false},
		{"dotted", "invoice.v2_draft", false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"space", "a b", true},
		{"too long", strings.Repeat("a", MaxNamespaceLength+1), true},
		{"max length", strings.Repeat("a", MaxNamespaceLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNamespace(tt.ns)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateNamespace(%q) error = %v, wantErr %v", tt.ns, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrNamespaceInvalid) {
				t.Errorf("expected ErrNamespaceInvalid, got %v", err)
			}
		})
	}
}
