// Package errors provides structured error handling for embedsync.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (local store, filesystem)
//   - 3XX: Network and session errors (remote store, inference backends)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates local store and filesystem errors.
	CategoryStorage Category = "STORAGE"
	// CategoryNetwork indicates network and remote-session errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input and inference-output validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates a session-fatal error; the remaining batch
	// must be aborted and the error surfaced to the sync caller.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates a per-item failure; processing continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreOpen     = "ERR_201_STORE_OPEN"
	ErrCodeStoreQuery    = "ERR_202_STORE_QUERY"
	ErrCodeContentRead   = "ERR_203_CONTENT_READ"
	ErrCodeStoreLocked   = "ERR_204_STORE_LOCKED"
	ErrCodeStoreCorrupt  = "ERR_205_STORE_CORRUPT"

	// Network and session errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnreachable = "ERR_302_NETWORK_UNREACHABLE"
	ErrCodeAuthExpired        = "ERR_303_AUTH_EXPIRED"
	ErrCodeRemoteRejected     = "ERR_304_REMOTE_REJECTED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeIndexFailed     = "ERR_503_INDEX_FAILED"
)

// sessionFatalCodes are codes that abort the remaining batch when seen.
// Already-completed items are preserved; the error escapes to the sync caller.
var sessionFatalCodes = map[string]bool{
	ErrCodeNetworkUnreachable: true,
	ErrCodeAuthExpired:        true,
}

// retryableCodes are codes where retrying the same operation may succeed.
var retryableCodes = map[string]bool{
	ErrCodeNetworkTimeout:  true,
	ErrCodeStoreLocked:     true,
	ErrCodeEmbeddingFailed: true,
}

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
func severityFromCode(code string) Severity {
	if sessionFatalCodes[code] {
		return SeverityFatal
	}
	return SeverityError
}

// isRetryableCode reports whether the code is retryable.
func isRetryableCode(code string) bool {
	return retryableCodes[code]
}
