package resolution

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/itdd/backend/internal/domain/shared"
)

// NameSimilarity is the normalized edit-distance ratio of two normalized names:
// 1 - distance / max(len). Identical strings score 1, disjoint strings approach 0.
func NameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// MatchPolicy holds the weights and thresholds used to score candidate pairs
type MatchPolicy struct {
	Threshold          float64
	ReviewMargin       float64
	NameWeight         float64
	VendorWeight       float64
	VendorDisagreement float64
}

// DefaultMatchPolicy returns the standard weights: 0.7 name, 0.3 vendor, threshold 0.65
func DefaultMatchPolicy() MatchPolicy {
	return MatchPolicy{
		Threshold:          0.65,
		ReviewMargin:       0.02,
		NameWeight:         0.7,
		VendorWeight:       0.3,
		VendorDisagreement: 0.5,
	}
}

// PairScore is the similarity of two records
type PairScore struct {
	Name float64
	// Vendor is only meaningful when HasVendor is set
	Vendor    float64
	HasVendor bool
	Blended   float64
}

// Score compares two records by normalized name and, when both carry one, by vendor
func (p MatchPolicy) Score(a, b *InventoryRecord) PairScore {
	s := PairScore{Name: NameSimilarity(a.NormalizedName, b.NormalizedName)}
	s.Blended = s.Name

	va, vb := normalizeVendor(a.Attributes.Vendor), normalizeVendor(b.Attributes.Vendor)
	if va != "" && vb != "" {
		s.HasVendor = true
		s.Vendor = NameSimilarity(va, vb)
		s.Blended = p.NameWeight*s.Name + p.VendorWeight*s.Vendor
	}
	return s
}

// Decision is the outcome of scoring a pair
type Decision int

const (
	DecisionNoMatch Decision = iota
	DecisionMerge
	DecisionReview
)

// Decide classifies a pair score. The reason is set only for DecisionReview.
func (p MatchPolicy) Decide(s PairScore) (Decision, shared.MergeConflictReason) {
	low := p.Threshold - p.ReviewMargin
	high := p.Threshold + p.ReviewMargin
	switch {
	case s.Blended < low:
		return DecisionNoMatch, ""
	case s.HasVendor && s.Vendor < p.VendorDisagreement:
		return DecisionReview, shared.MergeConflictVendorMismatch
	case s.Blended < high:
		return DecisionReview, shared.MergeConflictBoundaryScore
	}
	return DecisionMerge, ""
}

// normalizeVendor keeps corporate suffixes out of vendor comparison
func normalizeVendor(v string) string {
	n := Normalize(v)
	if n == EmptyNameSentinel {
		return ""
	}
	return n
}
