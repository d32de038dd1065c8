// Package algo implements the memory test algorithms. Every algorithm writes
// patterns to the memory described by an Env, reads them back and reports
// any mismatch to the Env's reporter. Algorithms never stop because of a
// memory error; they only return early when the run is cancelled or when
// the chunking contract is violated.
package algo

import (
	"memtest/kernel"
	"memtest/kernel/mem"
	"memtest/kernel/mem/memmap"
	"memtest/kernel/memtest/chunk"
	"memtest/kernel/memtest/errinfo"
	"memtest/kernel/sync"
)

// Reporter receives the failures detected by an algorithm.
type Reporter interface {
	Record(errinfo.Event)
}

// PatternDisplay shows the pattern that an algorithm is currently using.
type PatternDisplay interface {
	ShowPattern(p uint32)
	ShowModuloPattern(p uint32, offset int)
	ClearPattern()
}

// Env describes the processor running an algorithm and the memory it tests.
type Env struct {
	// CPU is the ordinal of the running processor within the set of
	// processors participating in the test; NumCPUs is the size of that
	// set. The processor with ordinal 0 is the master.
	CPU     int
	NumCPUs int

	// Map lists the ranges under test.
	Map *memmap.Map

	// Window is the number of words processed between two ticks.
	Window uint64

	// Tick is invoked before every window.
	Tick func()

	// Cancel is raised to abort the running test.
	Cancel *sync.Flag

	// Barrier synchronizes the participating processors between the
	// phases of algorithms that need it.
	Barrier *sync.Barrier

	Report  Reporter
	Rand    RandSource
	Display PatternDisplay
}

// Master returns true if the processor is the master.
func (e *Env) Master() bool {
	return e.CPU == 0
}

// Cancelled returns true once the running test has been cancelled.
func (e *Env) Cancelled() bool {
	return e.Cancel.IsSet()
}

func (e *Env) hooks() chunk.Hooks {
	return chunk.Hooks{Tick: e.Tick, Cancel: e.Cancel}
}

func (e *Env) window() uint64 {
	if e.Window == 0 {
		return mem.SpinWindowWords
	}
	return e.Window
}

// segmentFn processes the words of a single window. base is the address of
// buf[0].
type segmentFn func(buf []uint32, base uintptr)

func overlay(fn segmentFn) chunk.Func {
	return func(c chunk.Chunk) {
		fn(mem.Words(c.Start, c.Words), c.Start)
	}
}

// sliced runs fn over the processor's slice of every range.
func (e *Env) sliced(fn segmentFn) *kernel.Error {
	numCPUs := e.NumCPUs
	if numCPUs < 1 {
		numCPUs = 1
	}
	return chunk.Sliced(e.Map, e.CPU, numCPUs, e.window(), e.hooks(), overlay(fn))
}

// unsliced runs fn over every range.
func (e *Env) unsliced(fn segmentFn) *kernel.Error {
	return chunk.Unsliced(e.Map, e.window(), e.hooks(), overlay(fn))
}

// wait blocks on the barrier. It returns false if the test was cancelled.
func (e *Env) wait() bool {
	if e.Barrier == nil {
		return !e.Cancelled()
	}
	return e.Barrier.Wait()
}

func (e *Env) dataError(base uintptr, index int, good, bad uint32) {
	e.Report.Record(errinfo.Event{
		Kind:     errinfo.KindData,
		Addr:     base + uintptr(index)<<mem.WordShift,
		Expected: good,
		Actual:   bad,
		Xor:      good ^ bad,
		CPU:      e.CPU,
	})
}

func (e *Env) showPattern(p uint32) {
	if e.Display != nil && e.Master() {
		e.Display.ShowPattern(p)
	}
}

// SlicedTicks returns the number of ticks emitted by one pass over the
// memory when it is sliced between the participating processors.
func (e *Env) SlicedTicks() uint64 {
	numCPUs := e.NumCPUs
	if numCPUs < 1 {
		numCPUs = 1
	}
	return chunk.SlicedTicks(e.Map, numCPUs, e.window())
}

// UnslicedTicks returns the number of ticks emitted by one pass over the
// memory by a single processor.
func (e *Env) UnslicedTicks() uint64 {
	return chunk.UnslicedTicks(e.Map, e.window())
}
