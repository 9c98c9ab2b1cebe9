package resolution

import (
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/shopspring/decimal"
)

// StructuredEvent is a row produced by deterministic table parsing
type StructuredEvent struct {
	Type            string         `json:"type" validate:"notblank"`
	Name            string         `json:"name" validate:"notblank,max=512"`
	OwnershipScope  string         `json:"ownership_scope" validate:"notblank"`
	DealScope       string         `json:"deal_scope" validate:"notblank,uuid"`
	Attributes      map[string]any `json:"attributes"`
	SourceReference string         `json:"source_reference" validate:"notblank"`
}

// NarrativeEvent is an item extracted from prose. Type is optional and falls
// back to extracted_fields.type, then to application.
type NarrativeEvent struct {
	ItemText        string         `json:"item_text" validate:"notblank,max=512"`
	Type            string         `json:"type,omitempty"`
	OwnershipScope  string         `json:"ownership_scope" validate:"notblank"`
	DealScope       string         `json:"deal_scope" validate:"notblank,uuid"`
	ExtractedFields map[string]any `json:"extracted_fields"`
	Confidence      float64        `json:"confidence" validate:"gt=0,lt=1"`
	SourceReference string         `json:"source_reference" validate:"notblank"`
}

// Batch is one ingestion run. Structured events are processed before narrative ones.
type Batch struct {
	Structured []StructuredEvent `json:"structured" yaml:"structured"`
	Narrative  []NarrativeEvent  `json:"narrative" yaml:"narrative"`
}

// Size returns the number of events in the batch
func (b Batch) Size() int {
	return len(b.Structured) + len(b.Narrative)
}

// ItemOutcome is what happened to one event
type ItemOutcome string

const (
	OutcomeCreated    ItemOutcome = "created"
	OutcomeAppended   ItemOutcome = "appended"
	OutcomeDuplicate  ItemOutcome = "duplicate"
	OutcomeInvalid    ItemOutcome = "invalid"
	OutcomeUnresolved ItemOutcome = "unresolved"
)

// ItemResult reports the resolution of one event
type ItemResult struct {
	Index           int                       `json:"index"`
	Kind            resolution.ExtractionKind `json:"kind"`
	SourceReference string                    `json:"source_reference"`
	RecordID        string                    `json:"record_id,omitempty"`
	Outcome         ItemOutcome               `json:"outcome"`
	Attempts        int                       `json:"attempts"`
	ErrorCode       string                    `json:"error_code,omitempty"`
	Error           string                    `json:"error,omitempty"`
	Field           string                    `json:"field,omitempty"`
}

// Failed reports whether the item was rejected or could not be resolved
func (r ItemResult) Failed() bool {
	return r.Outcome == OutcomeInvalid || r.Outcome == OutcomeUnresolved
}

// BatchResult summarises an ingestion run
type BatchResult struct {
	Items         []ItemResult          `json:"items"`
	Created       int                   `json:"created"`
	Appended      int                   `json:"appended"`
	Duplicates    int                   `json:"duplicates"`
	Failed        int                   `json:"failed"`
	TouchedScopes []resolution.ScopeKey `json:"-"`
	Reconcile     []string              `json:"reconcile_triggered,omitempty"`
}

func (r *BatchResult) add(item ItemResult) {
	r.Items = append(r.Items, item)
	switch item.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeAppended:
		r.Appended++
	case OutcomeDuplicate:
		r.Duplicates++
	default:
		r.Failed++
	}
}

// CostView is the projected cost value object
type CostView struct {
	Amount   *decimal.Decimal `json:"amount,omitempty" yaml:"amount,omitempty"`
	Currency string           `json:"currency,omitempty" yaml:"currency,omitempty"`
	Status   string           `json:"status" yaml:"status"`
}

// RecordView is the read projection of an inventory record
type RecordView struct {
	ID               string         `json:"id" yaml:"id"`
	Type             string         `json:"type" yaml:"type"`
	OwnershipScope   string         `json:"ownership_scope" yaml:"ownership_scope"`
	DealScope        uuid.UUID      `json:"deal_scope" yaml:"deal_scope"`
	NormalizedName   string         `json:"normalized_name" yaml:"normalized_name"`
	DisplayName      string         `json:"display_name" yaml:"display_name"`
	Vendor           string         `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Version          string         `json:"version,omitempty" yaml:"version,omitempty"`
	Category         string         `json:"category,omitempty" yaml:"category,omitempty"`
	Details          map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	Cost             CostView       `json:"cost" yaml:"cost"`
	LifecycleStatus  string         `json:"lifecycle_status" yaml:"lifecycle_status"`
	MergedInto       string         `json:"merged_into,omitempty" yaml:"merged_into,omitempty"`
	ObservationCount int            `json:"observation_count" yaml:"observation_count"`
	Sources          []string       `json:"sources" yaml:"sources"`
	UpdatedAt        time.Time      `json:"updated_at" yaml:"updated_at"`
}

// ToRecordView projects a domain record
func ToRecordView(r *resolution.InventoryRecord) RecordView {
	v := RecordView{
		ID:               r.ID,
		Type:             string(r.Type),
		OwnershipScope:   string(r.OwnershipScope),
		DealScope:        r.DealID,
		NormalizedName:   r.NormalizedName,
		DisplayName:      r.Attributes.DisplayName,
		Vendor:           r.Attributes.Vendor,
		Version:          r.Attributes.Version,
		Category:         r.Attributes.Category,
		Details:          detailsOf(r),
		Cost:             CostView{Status: string(r.Cost.Status)},
		LifecycleStatus:  string(r.Status),
		MergedInto:       r.MergedInto,
		ObservationCount: len(r.Observations),
		Sources:          make([]string, 0, len(r.Observations)),
		UpdatedAt:        r.UpdatedAt,
	}
	if r.Cost.HasValue() {
		amount := r.Cost.Value.Amount()
		v.Cost.Amount = &amount
		v.Cost.Currency = string(r.Cost.Value.Currency())
	}
	for _, o := range r.Observations {
		v.Sources = append(v.Sources, o.SourceReference)
	}
	return v
}

func detailsOf(r *resolution.InventoryRecord) map[string]any {
	d := map[string]any{}
	put := func(k, s string) {
		if s != "" {
			d[k] = s
		}
	}
	putInt := func(k string, n *int) {
		if n != nil {
			d[k] = *n
		}
	}
	switch {
	case r.Application != nil:
		put(resolution.AttrHostingModel, r.Application.HostingModel)
		putInt(resolution.AttrUserCount, r.Application.UserCount)
		put(resolution.AttrLicenseModel, r.Application.LicenseModel)
	case r.Infrastructure != nil:
		put(resolution.AttrEnvironment, r.Infrastructure.Environment)
		put(resolution.AttrLocation, r.Infrastructure.Location)
		putInt(resolution.AttrQuantity, r.Infrastructure.Quantity)
	case r.Role != nil:
		put(resolution.AttrDepartment, r.Role.Department)
		putInt(resolution.AttrHeadcount, r.Role.Headcount)
		put(resolution.AttrReportsTo, r.Role.ReportsTo)
	}
	if len(d) == 0 {
		return nil
	}
	return d
}

// EvidenceChain is the full observation list of one record
type EvidenceChain struct {
	RecordID        string                   `json:"record_id"`
	LifecycleStatus string                   `json:"lifecycle_status"`
	MergedInto      string                   `json:"merged_into,omitempty"`
	Observations    []resolution.Observation `json:"observations"`
}

// SimilarView is one fuzzy match
type SimilarView struct {
	Record RecordView `json:"record"`
	Score  float64    `json:"score"`
}

// ScopeSnapshot is the export projection of one scope
type ScopeSnapshot struct {
	DealScope      uuid.UUID    `json:"deal_scope" yaml:"deal_scope"`
	OwnershipScope string       `json:"ownership_scope" yaml:"ownership_scope"`
	GeneratedAt    time.Time    `json:"generated_at" yaml:"generated_at"`
	RecordCount    int          `json:"record_count" yaml:"record_count"`
	PendingReviews int64        `json:"pending_reviews" yaml:"pending_reviews"`
	CostTotals     []CostTotal  `json:"cost_totals" yaml:"cost_totals"`
	Records        []RecordView `json:"records" yaml:"records"`
}

// CostTotal is the summed cost of one currency within a scope.
// Records without an amount (unknown, internal) are not counted.
type CostTotal struct {
	Currency  string          `json:"currency" yaml:"currency"`
	Amount    decimal.Decimal `json:"amount" yaml:"amount"`
	Records   int             `json:"records" yaml:"records"`
	Estimated int             `json:"estimated" yaml:"estimated"`
}
