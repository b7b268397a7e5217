package common

import (
	"github.com/google/uuid"
)

// NewCorrelationID generates a unique correlation ID with the "cor_" prefix
// Format: cor_<uuid>
func NewCorrelationID() string {
	return "cor_" + uuid.New().String()
}
