// Package domain defines the core domain models for diagsave.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes follow the format DS-<AREA>-<NNNN>, where the leading digit mirrors
// the HTTP status class the error maps to.
type DomainError struct {
	Code    string // Error code (e.g., "DS-BKP-5001")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Backup Errors (BKP)
// ============================================================================

var (
	// ErrSnapshotValidation indicates the submitted snapshot is malformed
	// (e.g. metadata that is not a JSON document).
	ErrSnapshotValidation = NewDomainError("DS-BKP-4001", "snapshot validation failed")

	// ErrNamespaceInvalid indicates the diagram namespace is malformed.
	ErrNamespaceInvalid = NewDomainError("DS-BKP-4002", "invalid namespace")

	// ErrBackupNotFound indicates no durable snapshot exists.
	ErrBackupNotFound = NewDomainError("DS-BKP-4040", "no backup available")

	// ErrBufferClosed indicates the buffer has been shut down.
	ErrBufferClosed = NewDomainError("DS-BKP-4100", "backup buffer closed")

	// ErrPersistenceWrite indicates the store rejected a snapshot write.
	// Prior snapshots remain untouched.
	ErrPersistenceWrite = NewDomainError("DS-BKP-5001", "snapshot write failed")

	// ErrQuotaExceeded indicates the store capacity is exhausted.
	ErrQuotaExceeded = NewDomainError("DS-BKP-5070", "storage quota exceeded")

	// ErrPersistenceRead indicates persisted snapshots could not be read.
	ErrPersistenceRead = NewDomainError("DS-BKP-5002", "snapshot read failed")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("DS-SYS-5000", "internal server error")

	// ErrRateLimited indicates the caller exceeded the request rate.
	ErrRateLimited = NewDomainError("DS-SYS-4290", "rate limit exceeded")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	ErrServiceUnavailable = NewDomainError("DS-SYS-5030", "service unavailable")
)
