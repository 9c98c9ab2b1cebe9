package persistence

import (
	"testing"

	"github.com/itdd/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "DESC"},
		{"asc", "ASC"},
		{"  ASC ", "ASC"},
		{"desc", "DESC"},
		{"ASC; DROP TABLE inventory_records;--", "DESC"},
	}

	for _, tt := range tests {
		t.Run("order "+tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty uses default", "", "created_at"},
		{"whitelisted", "score", "score"},
		{"trimmed", " vendor_score ", "vendor_score"},
		{"case sensitive", "SCORE", "created_at"},
		{"unknown column", "resolution_note", "created_at"},
		{"injection", "score, (SELECT 1)", "created_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, ReviewSortFields, "created_at"))
		})
	}
}

func TestReviewOrder(t *testing.T) {
	assert.Equal(t, "created_at DESC, id ASC", reviewOrder(shared.Filter{}))
	assert.Equal(t, "score ASC, id ASC", reviewOrder(shared.Filter{OrderBy: "score", OrderDir: "asc"}))
	assert.Equal(t, "created_at DESC, id ASC", reviewOrder(shared.Filter{OrderBy: "id' OR '1'='1"}))
}
