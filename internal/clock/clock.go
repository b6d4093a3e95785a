// Package clock provides indirection for accessing current time and
// scheduling one-shot callbacks.
package clock

import "time"

// Timer is a scheduled one-shot callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

// Clock is a source of time that can schedule callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the wall clock.
var Real Clock = realClock{}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Until returns the duration between c's current time and t.
func Until(c Clock, t time.Time) time.Duration {
	return t.Sub(c.Now())
}
