package intake

import "time"

// Clock abstracts time retrieval so business logic is deterministic in tests.
// A Clock that cannot read the time returns the zero time.Time.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
