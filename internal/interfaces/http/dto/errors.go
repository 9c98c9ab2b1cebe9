package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeStorageUnavailable is used when a transient store failure persists past retries
	ErrCodeStorageUnavailable = "ERR_STORAGE_UNAVAILABLE"
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
)

// Input error codes
const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	ErrCodeTooLarge     = "ERR_REQUEST_TOO_LARGE"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeRecordMergedAway    = "ERR_RECORD_MERGED_AWAY"
)

// Resolution error codes
const (
	ErrCodeInvalidState             = "ERR_INVALID_STATE"
	ErrCodeMergeNotPermitted        = "ERR_MERGE_NOT_PERMITTED"
	ErrCodeUnresolved               = "ERR_UNRESOLVED"
	ErrCodeReconciliationInProgress = "ERR_RECONCILIATION_IN_PROGRESS"
	ErrCodeReconcileQueueFull       = "ERR_RECONCILE_QUEUE_FULL"
	ErrCodeReconciliationDeferred   = "ERR_RECONCILIATION_DEFERRED"
	ErrCodeExportStorageDisabled    = "ERR_EXPORT_STORAGE_DISABLED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:            http.StatusInternalServerError,
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeStorageUnavailable: http.StatusServiceUnavailable,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodeTooLarge:     http.StatusRequestEntityTooLarge,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeRecordMergedAway:    http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:      http.StatusUnprocessableEntity,
	ErrCodeMergeNotPermitted: http.StatusUnprocessableEntity,
	ErrCodeUnresolved:        http.StatusUnprocessableEntity,

	ErrCodeReconciliationInProgress: http.StatusConflict,
	ErrCodeReconcileQueueFull:       http.StatusServiceUnavailable,
	ErrCodeReconciliationDeferred:   http.StatusServiceUnavailable,
	ErrCodeExportStorageDisabled:    http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":                  ErrCodeNotFound,
	"INVALID_INPUT":              ErrCodeInvalidInput,
	"INVALID_STATE":              ErrCodeInvalidState,
	"OPTIMISTIC_LOCK_FAILED":     ErrCodeConcurrencyConflict,
	"MERGE_NOT_PERMITTED":        ErrCodeMergeNotPermitted,
	"RECONCILIATION_IN_PROGRESS": ErrCodeReconciliationInProgress,
	"RECORD_MERGED_AWAY":         ErrCodeRecordMergedAway,
	"UNRESOLVED":                 ErrCodeUnresolved,
	"EXPORT_STORAGE_DISABLED":    ErrCodeExportStorageDisabled,
	"RECONCILE_QUEUE_FULL":       ErrCodeReconcileQueueFull,
	"RECONCILIATION_DEFERRED":    ErrCodeReconciliationDeferred,
	"SCHEDULER_NOT_RUNNING":      ErrCodeServiceUnavailable,
	"REQUEST_TOO_LARGE":          ErrCodeTooLarge,
	"VALIDATION_ERROR":           ErrCodeValidation,
	"INTERNAL_ERROR":             ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format or unknown pass through unchanged.
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
