package interfaces

import "time"

// Clock is the time source for job infrastructure. Tests inject a fake
// clock to control queue-wait and processing measurements.
type Clock interface {
	Now() time.Time
}
