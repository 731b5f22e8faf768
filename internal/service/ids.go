package service

import (
	"time"

	"github.com/google/uuid"
)

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}
