// Package errors provides structured error handling for the retrieval engine.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (fail fast, never retried)
//   - 2XX: IO / storage errors
//   - 3XX: Network errors (retryable at the provider boundary)
//   - 4XX: Data errors (handled locally with a fallback value)
//   - 5XX: Model errors (degrade to a deterministic alternative)
//   - 6XX: Validation / programmer errors
package errors

// Category classifies errors by how the pipeline must handle them.
type Category string

const (
	// CategoryConfig indicates missing credentials or endpoints. Detected at
	// provider construction; the provider is marked unusable for the process
	// lifetime.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates object storage and local file errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates transient service blips, retried with
	// bounded backoff before degrading to empty.
	CategoryNetwork Category = "NETWORK"
	// CategoryData indicates malformed metadata or missing blobs, handled
	// locally and never propagated.
	CategoryData Category = "DATA"
	// CategoryModel indicates embedding or rerank service failures; the
	// pipeline falls back to a deterministic alternative.
	CategoryModel Category = "MODEL"
	// CategoryValidation indicates programmer errors such as a negative
	// top_k. These are the only errors that propagate to callers.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates an unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the pipeline continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound    = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "ERR_102_CONFIG_INVALID"
	ErrCodeCredentialMissing = "ERR_103_CREDENTIAL_MISSING"

	// IO errors (200-299)
	ErrCodeBlobNotFound = "ERR_201_BLOB_NOT_FOUND"
	ErrCodeIndexLoad    = "ERR_202_INDEX_LOAD"
	ErrCodeIndexCorrupt = "ERR_203_INDEX_CORRUPT"
	ErrCodeCacheStore   = "ERR_204_CACHE_STORE"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeServiceStatus      = "ERR_303_SERVICE_STATUS"

	// Data errors (400-499)
	ErrCodeMalformedMetadata = "ERR_401_MALFORMED_METADATA"
	ErrCodeMissingParentDoc  = "ERR_402_MISSING_PARENT_DOC"
	ErrCodeEmptyChunkText    = "ERR_403_EMPTY_CHUNK_TEXT"

	// Model errors (500-599)
	ErrCodeEmbeddingFailed  = "ERR_501_EMBEDDING_FAILED"
	ErrCodeRerankFailed     = "ERR_502_RERANK_FAILED"
	ErrCodeModelUnavailable = "ERR_503_MODEL_UNAVAILABLE"

	// Validation errors (600-699)
	ErrCodeInvalidInput = "ERR_601_INVALID_INPUT"
	ErrCodeInvalidTopK  = "ERR_602_INVALID_TOP_K"
	ErrCodeQueryEmpty   = "ERR_603_QUERY_EMPTY"

	// Internal errors (900-999)
	ErrCodeInternal = "ERR_901_INTERNAL"
)

// categoryFromCode extracts the category from an error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryData
	case '5':
		return CategoryModel
	case '6':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	if code == ErrCodeIndexCorrupt {
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Only transient network failures qualify; config errors never retry.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeServiceStatus:
		return true
	default:
		return false
	}
}
