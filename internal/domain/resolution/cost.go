package resolution

import (
	"github.com/itdd/backend/internal/domain/shared/valueobject"
)

// Cost is the cost value object of a record. Value is nil when no figure is known.
type Cost struct {
	Value  *valueobject.Money `json:"value,omitempty"`
	Status CostStatus         `json:"status"`
}

// UnknownCost is the cost of a record with no cost evidence
func UnknownCost() Cost {
	return Cost{Status: CostUnknown}
}

// HasValue returns true if an amount is present
func (c Cost) HasValue() bool {
	return c.Value != nil
}

// Equals compares two costs by status and amount
func (c Cost) Equals(other Cost) bool {
	if c.Status != other.Status || c.HasValue() != other.HasValue() {
		return false
	}
	return !c.HasValue() || c.Value.Equals(*other.Value)
}

// costFrom builds the cost carried by one observation, if it carries any
func costFrom(o Observation) (Cost, bool) {
	var value *valueobject.Money
	if raw, ok := o.String(AttrCost); ok {
		currency, _ := o.String(AttrCurrency)
		if m, err := valueobject.NewMoneyFromString(raw, valueobject.ParseCurrency(currency)); err == nil {
			value = &m
		}
	}

	statusRaw, hasStatus := o.String(AttrCostStatus)
	status, known := ParseCostStatus(statusRaw)
	if hasStatus && !known {
		hasStatus = false
	}

	switch {
	case value == nil && !hasStatus:
		return Cost{}, false
	case hasStatus:
		return Cost{Value: value, Status: status}, true
	case o.Kind == ExtractionNarrative:
		return Cost{Value: value, Status: CostEstimated}, true
	default:
		return Cost{Value: value, Status: CostKnown}, true
	}
}
