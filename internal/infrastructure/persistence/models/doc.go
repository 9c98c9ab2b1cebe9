// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: shared aggregate columns (version, timestamps)
// - inventory_record.go: one table per record type plus the common record body
// - merge_review.go: the manual-review queue
package models
