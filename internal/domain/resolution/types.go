package resolution

import (
	"strings"

	"github.com/itdd/backend/internal/domain/shared"
)

// RecordType is the fixed category of an inventory record
type RecordType string

const (
	RecordTypeApplication        RecordType = "application"
	RecordTypeInfrastructure     RecordType = "infrastructure"
	RecordTypeOrganizationalRole RecordType = "organizational_role"
)

// AllRecordTypes lists record types in presentation order
var AllRecordTypes = []RecordType{
	RecordTypeApplication,
	RecordTypeInfrastructure,
	RecordTypeOrganizationalRole,
}

var recordTypeAliases = map[string]RecordType{
	"application":         RecordTypeApplication,
	"app":                 RecordTypeApplication,
	"software":            RecordTypeApplication,
	"infrastructure":      RecordTypeInfrastructure,
	"infra":               RecordTypeInfrastructure,
	"server":              RecordTypeInfrastructure,
	"hardware":            RecordTypeInfrastructure,
	"organizational_role": RecordTypeOrganizationalRole,
	"organisational_role": RecordTypeOrganizationalRole,
	"org_role":            RecordTypeOrganizationalRole,
	"role":                RecordTypeOrganizationalRole,
	"position":            RecordTypeOrganizationalRole,
}

// ParseRecordType resolves a record type, accepting common aliases
func ParseRecordType(s string) (RecordType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	if t, ok := recordTypeAliases[key]; ok {
		return t, nil
	}
	return "", shared.NewValidationError("type", "unknown record type "+`"`+s+`"`)
}

// IsValid returns true if the type is one of the known categories
func (t RecordType) IsValid() bool {
	switch t {
	case RecordTypeApplication, RecordTypeInfrastructure, RecordTypeOrganizationalRole:
		return true
	}
	return false
}

// Tag returns the identifier prefix for the type
func (t RecordType) Tag() string {
	switch t {
	case RecordTypeApplication:
		return "APP"
	case RecordTypeInfrastructure:
		return "INF"
	case RecordTypeOrganizationalRole:
		return "ORG"
	}
	return "UNK"
}

// RecordTypeFromID recovers the record type from an identifier prefix
func RecordTypeFromID(id string) (RecordType, bool) {
	prefix, _, found := strings.Cut(id, "-")
	if !found {
		return "", false
	}
	for _, t := range AllRecordTypes {
		if t.Tag() == prefix {
			return t, true
		}
	}
	return "", false
}

// OwnershipScope is the side of the deal a record belongs to
type OwnershipScope string

const (
	ScopeTarget   OwnershipScope = "target"
	ScopeAcquirer OwnershipScope = "acquirer"
)

// ParseOwnershipScope validates an ownership scope; it never guesses a default
func ParseOwnershipScope(s string) (OwnershipScope, error) {
	switch OwnershipScope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeTarget:
		return ScopeTarget, nil
	case ScopeAcquirer:
		return ScopeAcquirer, nil
	}
	if strings.TrimSpace(s) == "" {
		return "", shared.NewValidationError("ownership_scope", "is required")
	}
	return "", shared.NewValidationError("ownership_scope", `must be "target" or "acquirer"`)
}

// IsValid returns true for target or acquirer
func (s OwnershipScope) IsValid() bool {
	return s == ScopeTarget || s == ScopeAcquirer
}

// LifecycleStatus is the lifecycle state of a record
type LifecycleStatus string

const (
	StatusActive     LifecycleStatus = "active"
	StatusMergedAway LifecycleStatus = "merged_away"
	StatusRemoved    LifecycleStatus = "removed"
)

// ExtractionKind identifies the pipeline that produced an observation
type ExtractionKind string

const (
	ExtractionStructured ExtractionKind = "structured"
	ExtractionNarrative  ExtractionKind = "narrative"
)

// CostStatus records where a cost figure came from
type CostStatus string

const (
	CostKnown          CostStatus = "known"
	CostEstimated      CostStatus = "estimated"
	CostInternalNoCost CostStatus = "internal_no_cost"
	CostUnknown        CostStatus = "unknown"
)

// ParseCostStatus returns the status and whether it was recognised
func ParseCostStatus(s string) (CostStatus, bool) {
	switch CostStatus(strings.ToLower(strings.TrimSpace(s))) {
	case CostKnown:
		return CostKnown, true
	case CostEstimated:
		return CostEstimated, true
	case CostInternalNoCost:
		return CostInternalNoCost, true
	case CostUnknown:
		return CostUnknown, true
	}
	return "", false
}
