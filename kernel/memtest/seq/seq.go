// Package seq defines the standard sequence of memory tests.
package seq

import (
	"time"

	"memtest/kernel"
	"memtest/kernel/memtest/algo"
)

// CPUMode selects the processors that run a test.
type CPUMode uint8

const (
	// Parallel tests run on every processor, each one testing its own
	// slice of memory.
	Parallel CPUMode = iota

	// Single tests run on the master processor only.
	Single
)

// String implements fmt.Stringer for CPUMode.
func (m CPUMode) String() string {
	if m == Single {
		return "single"
	}
	return "parallel"
}

// Context exposes the services of the orchestrator that tests depend on.
type Context interface {
	// Pass returns the number of completed passes.
	Pass() int

	// Sleep waits for d while ticking once per second. It returns early
	// if the test is cancelled.
	Sleep(env *algo.Env, d time.Duration)

	// FadeDelay returns the time the bit fade test waits between filling
	// and checking memory.
	FadeDelay() time.Duration
}

// Estimate describes the amount of work performed by a test.
type Estimate struct {
	// Sliced is the number of full passes over sliced memory.
	Sliced uint64

	// Unsliced is the number of full passes over unsliced memory.
	Unsliced uint64

	// Seconds is the number of one-second ticks spent sleeping.
	Seconds uint64
}

// Ticks converts an estimate into a tick count given the number of ticks of
// a single pass over sliced and unsliced memory.
func (e Estimate) Ticks(sliced, unsliced uint64) uint64 {
	return e.Sliced*sliced + e.Unsliced*unsliced + e.Seconds
}

// Entry describes a test of the sequence.
type Entry struct {
	Name       string
	Enabled    bool
	Iterations int
	Mode       CPUMode

	// BadRAMSafe is true if failures found by the test can be used to
	// build BadRAM patterns. Address tests flag the address that was
	// disturbed rather than the failing cell.
	BadRAMSafe bool

	// Run executes the test on the calling processor.
	Run func(ctx Context, env *algo.Env, iter int) *kernel.Error

	// Estimate returns the work performed by Run for iter iterations.
	Estimate func(iter int, fade time.Duration) Estimate
}

// Iter returns the number of iterations to run during the given pass. The
// first pass runs a third of the iterations to get quick coverage. scale is
// a percentage applied to the configured iteration count.
func (e *Entry) Iter(pass, scale int) int {
	iter := e.Iterations
	if scale > 0 {
		iter = iter * scale / 100
	}
	if pass == 0 {
		iter /= 3
	}
	if iter < 1 {
		iter = 1
	}
	return iter
}

// Sequence is an ordered list of tests.
type Sequence []Entry

// BadRAMSafe returns the BadRAM safety flag of each test.
func (s Sequence) BadRAMSafe() []bool {
	flags := make([]bool, len(s))
	for i := range s {
		flags[i] = s[i].BadRAMSafe
	}
	return flags
}

// Enabled returns the number of enabled tests.
func (s Sequence) Enabled() int {
	var n int
	for i := range s {
		if s[i].Enabled {
			n++
		}
	}
	return n
}

// Select enables only the tests whose index appears in indices. An empty
// list enables every test. Unknown indices are reported via the returned
// error.
func (s Sequence) Select(indices []int) *kernel.Error {
	for _, index := range indices {
		if index < 0 || index >= len(s) {
			return errUnknownTest
		}
	}

	for i := range s {
		s[i].Enabled = len(indices) == 0
	}
	for _, index := range indices {
		s[index].Enabled = true
	}

	return nil
}

var errUnknownTest = &kernel.Error{Module: "seq", Message: "unknown test index"}
