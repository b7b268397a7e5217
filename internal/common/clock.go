package common

import (
	"time"

	"github.com/ternarybob/faber/internal/interfaces"
)

// systemClock reads the wall clock
type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock returns the production clock backed by time.Now
func SystemClock() interfaces.Clock {
	return systemClock{}
}
