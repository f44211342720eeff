// Package clock provides the time source used by the reservation engine.
package clock

import (
	"math"
	"time"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to a Clock. Handy in tests:
//
//	clock.Func(func() time.Time { return fixed })
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns a Clock backed by the wall clock, in UTC.
func System() Clock { return systemClock{} }

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}

// HoursBetween returns the absolute distance between a and b in fractional
// hours. The result carries no sign: callers that care about ordering must
// compare the instants themselves.
func HoursBetween(a, b time.Time) float64 {
	return math.Abs(a.Sub(b).Hours())
}
