// Package clock provides the cycle counter used to measure elapsed time.
package clock

import "time"

// Monotonic is a cycle counter backed by the Go runtime's monotonic clock.
// One cycle is one nanosecond.
type Monotonic struct {
	start time.Time
}

// NewMonotonic returns a counter that starts at zero.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Cycles returns the number of nanoseconds since the counter was created.
func (c *Monotonic) Cycles() uint64 {
	return uint64(time.Since(c.start))
}

// CyclesPerMs returns the number of cycles per millisecond.
func (c *Monotonic) CyclesPerMs() uint64 {
	return uint64(time.Millisecond)
}
