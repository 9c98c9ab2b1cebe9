package shared

import "time"

// BaseEntity holds identity and timestamps. Identifiers are strings so
// content-derived record keys and review UUIDs share one shape.
type BaseEntity struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Touch moves UpdatedAt forward
func (e *BaseEntity) Touch(now time.Time) {
	e.UpdatedAt = now
}

// NewBaseEntity stamps both timestamps with now
func NewBaseEntity(id string, now time.Time) BaseEntity {
	return BaseEntity{ID: id, CreatedAt: now, UpdatedAt: now}
}
