package resolution

import (
	"encoding/json"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itdd/backend/internal/domain/shared"
)

// StructuredConfidence is the implicit confidence of deterministic table extraction
const StructuredConfidence = 1.0

// Observation is one immutable piece of evidence contributing to a record.
// Fields is the raw extracted payload; it is the only free-form map in the model.
type Observation struct {
	ID              uuid.UUID      `json:"id"`
	SourceReference string         `json:"source_reference"`
	Kind            ExtractionKind `json:"extraction_kind"`
	Fields          map[string]any `json:"fields"`
	Confidence      float64        `json:"confidence"`
	HumanConfirmed  bool           `json:"human_confirmed"`
	Reviewer        string         `json:"reviewer,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// NewStructuredObservation creates evidence from table parsing (confidence 1.0)
func NewStructuredObservation(source string, fields map[string]any, at time.Time) (Observation, error) {
	return newObservation(source, ExtractionStructured, fields, StructuredConfidence, false, "", at)
}

// NewNarrativeObservation creates evidence from prose extraction; confidence must be in (0, 1)
func NewNarrativeObservation(source string, fields map[string]any, confidence float64, at time.Time) (Observation, error) {
	if math.IsNaN(confidence) || confidence <= 0 || confidence >= 1 {
		return Observation{}, shared.NewValidationError("confidence", "narrative confidence must be greater than 0 and less than 1")
	}
	return newObservation(source, ExtractionNarrative, fields, confidence, false, "", at)
}

// NewConfirmedObservation creates a human-confirmed observation from a review action
func NewConfirmedObservation(reviewer string, fields map[string]any, at time.Time) (Observation, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return Observation{}, shared.NewValidationError("reviewer", "is required")
	}
	source := "review:" + reviewer + ":" + uuid.NewString()
	return newObservation(source, ExtractionStructured, fields, StructuredConfidence, true, reviewer, at)
}

func newObservation(source string, kind ExtractionKind, fields map[string]any, confidence float64, confirmed bool, reviewer string, at time.Time) (Observation, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Observation{}, shared.NewValidationError("source_reference", "is required")
	}
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return Observation{
		ID:              uuid.New(),
		SourceReference: source,
		Kind:            kind,
		Fields:          copied,
		Confidence:      confidence,
		HumanConfirmed:  confirmed,
		Reviewer:        reviewer,
		Timestamp:       at.UTC(),
	}, nil
}

// attributeAliases maps attribute keys understood by the ledger to their accepted aliases
var attributeAliases = map[string][]string{
	AttrName:         {"name", "display_name", "item_text", "item_name"},
	AttrVendor:       {"vendor", "vendor_name", "publisher", "manufacturer"},
	AttrVersion:      {"version"},
	AttrCategory:     {"category"},
	AttrCost:         {"cost", "cost_amount", "annual_cost"},
	AttrCurrency:     {"currency"},
	AttrCostStatus:   {"cost_status"},
	AttrHostingModel: {"hosting_model", "hosting"},
	AttrUserCount:    {"user_count", "users"},
	AttrLicenseModel: {"license_model", "license"},
	AttrEnvironment:  {"environment", "env"},
	AttrLocation:     {"location", "site", "data_center"},
	AttrQuantity:     {"quantity", "count"},
	AttrDepartment:   {"department"},
	AttrHeadcount:    {"headcount"},
	AttrReportsTo:    {"reports_to", "manager"},
	AttrType:         {"type", "record_type"},
}

// Attribute keys
const (
	AttrName         = "name"
	AttrVendor       = "vendor"
	AttrVersion      = "version"
	AttrCategory     = "category"
	AttrCost         = "cost"
	AttrCurrency     = "currency"
	AttrCostStatus   = "cost_status"
	AttrHostingModel = "hosting_model"
	AttrUserCount    = "user_count"
	AttrLicenseModel = "license_model"
	AttrEnvironment  = "environment"
	AttrLocation     = "location"
	AttrQuantity     = "quantity"
	AttrDepartment   = "department"
	AttrHeadcount    = "headcount"
	AttrReportsTo    = "reports_to"
	AttrType         = "type"
)

func canonicalKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.ReplaceAll(k, " ", "_")
	return strings.ReplaceAll(k, "-", "_")
}

// String returns the first non-blank value for an attribute, trying its aliases in order
func (o Observation) String(attr string) (string, bool) {
	aliases, ok := attributeAliases[attr]
	if !ok {
		aliases = []string{attr}
	}
	keys := slices.Sorted(maps.Keys(o.Fields))
	for _, alias := range aliases {
		for _, k := range keys {
			if canonicalKey(k) != alias {
				continue
			}
			if s, ok := stringify(o.Fields[k]); ok {
				return s, true
			}
		}
	}
	return "", false
}

// FieldValue looks up an attribute in a raw payload the same way String does
func FieldValue(fields map[string]any, attr string) (string, bool) {
	return Observation{Fields: fields}.String(attr)
}

// Int returns an attribute as a non-negative integer
func (o Observation) Int(attr string) (int, bool) {
	s, ok := o.String(attr)
	if !ok {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
