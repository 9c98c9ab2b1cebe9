package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/itdd/backend/internal/domain/shared"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), true},
		{"pgx", &pgconn.PgError{Code: "23505"}, true},
		{"pgx other code", &pgconn.PgError{Code: "23503"}, false},
		{"lib/pq", &pq.Error{Code: "23505"}, true},
		{"sqlite message", errors.New("UNIQUE constraint failed: applications.id"), true},
		{"unrelated", errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestStorageErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"connection exception class", &pgconn.PgError{Code: "08006"}, true},
		{"sqlite busy", errors.New("database is locked"), true},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, false},
		{"constraint", errors.New("CHECK constraint failed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storageError("op", tt.err)
			var se *shared.StorageError
			assert.ErrorAs(t, err, &se)
			assert.Equal(t, tt.transient, se.Transient)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, storageError("op", nil))

	stale := staleWrite("save")
	assert.Same(t, stale, storageError("outer", stale))
}
