// Package uuidv7 mints time-ordered UUIDs for request correlation.
package uuidv7

import "github.com/google/uuid"

// New generates a fresh UUIDv7. Generation only fails when the system
// entropy source does, so failure panics.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString is New rendered in canonical string form.
func NewString() string {
	return New().String()
}
