package domain

import "github.com/google/uuid"

// NewID generates a new unique identifier for a record.
func NewID() string {
	return uuid.NewString()
}
