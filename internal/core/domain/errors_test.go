package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("DS-TEST-1000", "test message"),
			expected: "[DS-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("DS-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[DS-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("DS-TEST-1000", "message 1")
	err2 := NewDomainError("DS-TEST-1000", "message 2")
	err3 := NewDomainError("DS-TEST-1001", "message 1")

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := ErrPersistenceWrite.WithCause(cause)

	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause through the chain")
	}
	if errors.Unwrap(ErrPersistenceWrite) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestDomainError_CopiesDoNotMutateOriginal(t *testing.T) {
	original := NewDomainError("DS-TEST-1000", "original message")
	_ = original.WithDetails("details")
	_ = original.Wrap(fmt.Errorf("cause"))

	if original.Details != "" || original.Cause != nil {
		t.Errorf("original mutated: %+v", original)
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"domain error", ErrBackupNotFound, "DS-BKP-4040"},
		{"wrapped domain error", fmt.Errorf("wrapped: %w", ErrPersistenceWrite), "DS-BKP-5001"},
		{"regular error", fmt.Errorf("regular error"), ""},
		{"nil error", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestIsDomainError(t *testing.T) {
	wrapped := fmt.Errorf("wrapped: %w", ErrQuotaExceeded)

	if !IsDomainError(wrapped, "DS-BKP-5070") {
		t.Error("IsDomainError should work with wrapped errors")
	}
	if !IsDomainError(wrapped, "") {
		t.Error("IsDomainError with empty code should match any DomainError")
	}
	if IsDomainError(fmt.Errorf("plain"), "") {
		t.Error("IsDomainError should return false for non-DomainError")
	}
}
