// Package types provides common value types used across Daybook.
package types

import "time"

// Entity carries the bookkeeping timestamps shared by every stored record.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates an Entity stamped with the given instant.
// Callers pass the engine clock so that tests stay deterministic.
func NewEntity(now time.Time) Entity {
	now = now.UTC()
	return Entity{
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch moves UpdatedAt to the given instant.
func (e *Entity) Touch(now time.Time) {
	e.UpdatedAt = now.UTC()
}
