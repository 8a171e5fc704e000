package clock

import "time"

// SystemClock is the production clock. Times are UTC so stored timestamps
// compare equal across adapters; callers convert to a display zone.
type SystemClock struct{}

func NewSystemClock() SystemClock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC() }
