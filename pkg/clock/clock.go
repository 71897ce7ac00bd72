// Package clock abstracts the time operations used by the polling loop and
// the acknowledgment coordinator so tests can drive them deterministically.
//
// Production code uses Real(). Tests use NewFake() and call Advance().
package clock

import "time"

// Clock provides the subset of the time package eventwatch depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration

	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time
}
