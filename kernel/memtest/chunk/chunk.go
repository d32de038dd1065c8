// Package chunk partitions test ranges into bounded windows and, when several
// processors share a test, into per-processor cache-line aligned slices.
//
// All addresses handled by this package are word addresses: a range is
// described by the address of its first word and the address of its last
// word (inclusive).
package chunk

import (
	"memtest/kernel"
	"memtest/kernel/mem"
	"memtest/kernel/mem/memmap"
	"memtest/kernel/sync"
)

var (
	// ErrInvalidRange is returned when a range start is not below its end.
	ErrInvalidRange = &kernel.Error{Module: "chunk", Message: "range start is not below range end"}

	// ErrMisaligned is returned when a range does not start on an 8-byte
	// boundary or does not end on the last word of an 8-byte unit.
	ErrMisaligned = &kernel.Error{Module: "chunk", Message: "range is not aligned to 8-byte units"}

	// ErrZeroWindow is returned when the window size is zero.
	ErrZeroWindow = &kernel.Error{Module: "chunk", Message: "window size must be non-zero"}

	// ErrBadCPU is returned when a processor ordinal is outside
	// [0, numCPUs).
	ErrBadCPU = &kernel.Error{Module: "chunk", Message: "processor ordinal out of range"}

	// ErrBadAlignment is returned when a slice alignment is not a power of
	// two multiple of 8 bytes.
	ErrBadAlignment = &kernel.Error{Module: "chunk", Message: "slice alignment must be a power of two >= 8"}

	// ErrSliceOrder is returned when consecutive slices handed to the same
	// processor are not strictly ascending.
	ErrSliceOrder = &kernel.Error{Module: "chunk", Message: "slices are not strictly ascending"}
)

// Chunk is a contiguous run of words handed to a test algorithm.
type Chunk struct {
	// Start is the address of the first word.
	Start uintptr

	// Words is the number of words in the chunk.
	Words uint64
}

// End returns the address of the last word in the chunk.
func (c Chunk) End() uintptr {
	return c.Start + uintptr(c.Words-1)<<mem.WordShift
}

// Func is invoked for each chunk produced by an iteration.
type Func func(Chunk)

// Hooks are invoked by the iterators before each chunk. Both fields are
// optional.
type Hooks struct {
	// Tick is called before every chunk and, for sliced iterations, once
	// more for every chunk that another processor processes in excess of
	// the caller.
	Tick func()

	// Cancel aborts the iteration once raised. It is checked after each
	// tick.
	Cancel *sync.Flag
}

func (h Hooks) tick() bool {
	if h.Tick != nil {
		h.Tick()
	}
	return !h.Cancel.IsSet()
}

// ForEach splits the range [start, end] into consecutive chunks of at most
// window words and invokes fn for each chunk in ascending order. Before each
// chunk the tick hook is invoked and the cancel flag is checked; a raised
// flag stops the iteration without an error.
//
// start must be 8-byte aligned and end must address the last word of an
// 8-byte unit.
func ForEach(start, end uintptr, window uint64, hooks Hooks, fn Func) *kernel.Error {
	switch {
	case start >= end:
		return ErrInvalidRange
	case start&7 != 0, end&7 != 4:
		return ErrMisaligned
	case window == 0:
		return ErrZeroWindow
	}

	var (
		segWord = uint64(start) >> mem.WordShift
		endWord = uint64(end)>>mem.WordShift + 1
	)

	for segWord < endWord {
		if !hooks.tick() {
			return nil
		}

		segEnd := segWord + window
		if segEnd > endWord || segEnd < segWord {
			segEnd = endWord
		}

		fn(Chunk{Start: uintptr(segWord << mem.WordShift), Words: segEnd - segWord})
		segWord = segEnd
	}

	return nil
}

// Count returns the number of chunks that ForEach produces for the range
// [start, end] or 0 if the range is empty.
func Count(start, end uintptr, window uint64) uint64 {
	if start >= end || window == 0 {
		return 0
	}

	words := uint64(end)>>mem.WordShift + 1 - uint64(start)>>mem.WordShift
	return (words + window - 1) / window
}

// Unsliced visits every range of m in order, splitting each one into windows
// via ForEach.
func Unsliced(m *memmap.Map, window uint64, hooks Hooks, fn Func) *kernel.Error {
	var err *kernel.Error
	m.Visit(func(_ int, r *memmap.Range) bool {
		err = ForEach(r.Start, r.End, window, hooks, fn)
		return err == nil && !hooks.Cancel.IsSet()
	})

	return err
}

// UnslicedTicks returns the number of ticks emitted by Unsliced.
func UnslicedTicks(m *memmap.Map, window uint64) uint64 {
	var ticks uint64
	m.Visit(func(_ int, r *memmap.Range) bool {
		ticks += Count(r.Start, r.End, window)
		return true
	})
	return ticks
}
