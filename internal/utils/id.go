package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new opaque document identifier.
func GenerateID() string {
	return uuid.NewString()
}
