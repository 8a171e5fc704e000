package clock

import "time"

// Clock provides the current time to the application: "today" for age checks,
// token expiry, and store-assigned creation timestamps.
// Tests substitute a controllable implementation.
type Clock interface {
	Now() time.Time
}
