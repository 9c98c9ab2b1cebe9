package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError carrying the same code
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound                 = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput             = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState             = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrOptimisticLock           = NewDomainError("OPTIMISTIC_LOCK_FAILED", "Record was modified by another process")
	ErrMergeNotPermitted        = NewDomainError("MERGE_NOT_PERMITTED", "Records cannot be merged")
	ErrReconciliationInProgress = NewDomainError("RECONCILIATION_IN_PROGRESS", "A reconciliation pass is already running for this scope")
	ErrReconciliationDeferred   = NewDomainError("RECONCILIATION_DEFERRED", "Background reconciliation is disabled; run the pass with itddctl")
)

// ErrUnresolved is the user-visible outcome for an item that failed after retries.
var ErrUnresolved = NewDomainError("UNRESOLVED", "Item could not be resolved automatically; flagged for review")

// ValidationError is returned when an inbound event is missing or has a malformed
// scope, deal, name or confidence. It is raised before any repository call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError reports a unique-key violation on create. Repositories resolve
// it internally by re-reading the winning row, so callers only see it in logs.
type ConflictError struct {
	Entity string
	Key    string
	Err    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists: %v", e.Entity, e.Key, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// MergeConflictReason classifies why a candidate pair was not merged automatically.
type MergeConflictReason string

const (
	MergeConflictBoundaryScore  MergeConflictReason = "boundary_score"
	MergeConflictVendorMismatch MergeConflictReason = "vendor_mismatch"
	MergeConflictAmbiguousTie   MergeConflictReason = "ambiguous_tie"
)

// MergeConflict describes a pair sent to manual review instead of being merged.
type MergeConflict struct {
	RecordA     string
	RecordB     string
	Score       float64
	VendorScore float64
	Reason      MergeConflictReason
}

func (e *MergeConflict) Error() string {
	return fmt.Sprintf("merge of %s and %s needs review (%s, score %.3f)", e.RecordA, e.RecordB, e.Reason, e.Score)
}

// StorageError wraps a failure of the underlying store. Transient errors
// (timeouts, lost connections, serialization failures, lock conflicts) may be retried.
type StorageError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *StorageError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("storage %s failed (%s): %v", e.Op, kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a StorageError marked as retryable.
func IsTransient(err error) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}
