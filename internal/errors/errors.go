package errors

import (
	"errors"
	"fmt"
)

// SyncError is the structured error type for embedsync.
// It carries the code, category, and severity used by the scheduler to decide
// between continuing with the next item and aborting the batch.
type SyncError struct {
	// Code is the unique error code (e.g., "ERR_303_AUTH_EXPIRED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Network, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *SyncError) Is(target error) bool {
	if t, ok := target.(*SyncError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new SyncError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SyncError {
	return &SyncError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SyncError from an existing error.
// Returns nil when err is nil.
func Wrap(code string, err error) *SyncError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SyncError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a local-store error.
func StorageError(message string, cause error) *SyncError {
	return New(ErrCodeStoreQuery, message, cause)
}

// AuthExpiredError creates a session-fatal authentication error.
func AuthExpiredError(cause error) *SyncError {
	return New(ErrCodeAuthExpired, "authentication session expired", cause)
}

// NetworkUnreachableError creates a session-fatal connectivity error.
func NetworkUnreachableError(cause error) *SyncError {
	return New(ErrCodeNetworkUnreachable, "network unreachable", cause)
}

// DimensionMismatchError creates a validation error for wrong-length vectors.
func DimensionMismatchError(got, want int) *SyncError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("embedding has %d dimensions, expected %d", got, want), nil)
}

// EmbeddingError creates a transient inference error.
func EmbeddingError(message string, cause error) *SyncError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// IsSessionFatal reports whether err must abort the remaining batch.
// Per-item (transient, validation) errors never abort; only session-level
// failures such as expired authentication or an unreachable network do.
func IsSessionFatal(err error) bool {
	if err == nil {
		return false
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCode extracts the error code from a SyncError.
// Returns empty string for other error types.
func GetCode(err error) string {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
