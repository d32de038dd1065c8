package errinfo

import "memtest/kernel/mem"

// Addr locates a failure as a physical page and the byte offset within it.
type Addr struct {
	Page   uint64 `yaml:"page"`
	Offset uint64 `yaml:"offset"`
}

func (a Addr) less(b Addr) bool {
	return a.Page < b.Page || (a.Page == b.Page && a.Offset < b.Offset)
}

// Bytes returns the physical byte address.
func (a Addr) Bytes() uint64 {
	return a.Page<<mem.PageShift | a.Offset
}

// HistogramBuckets is the number of equally sized regions that the tested
// physical memory is divided into when counting failures per region.
const HistogramBuckets = 64

// State is the running error aggregate.
type State struct {
	Pass int
	Test int

	// Errors counts every reported event; PassErrors counts the events
	// reported during the current pass.
	Errors     uint64
	PassErrors uint64

	// TestErrors holds the number of events reported by each test of the
	// sequence.
	TestErrors []uint64

	// Corrected counts corrected ECC events.
	Corrected uint64

	// Low and High bound the failing addresses.
	Low, High Addr

	// ErrorBits is the union of the failing bits of every event.
	ErrorBits uint32

	// TotalBits, MinBits and MaxBits track the number of failing bits per
	// event.
	TotalBits uint64
	MinBits   int
	MaxBits   int

	// MaxRun is the longest run of failures at adjacent words.
	MaxRun uint64

	// Confidence is the last computed confidence score.
	Confidence int

	// Histogram counts failures per region of the tested memory.
	Histogram [HistogramBuckets]uint64

	haveAddr bool
	run      uint64
	haveLast bool
	lastAddr uintptr
	lastXor  uint32
}

func (s *State) reset(numTests int) {
	*s = State{
		TestErrors: make([]uint64, numTests),
		MinBits:    32,
	}
}

// AvgBits returns the average number of failing bits per event.
func (s *State) AvgBits() uint64 {
	if s.Errors == 0 {
		return 0
	}
	return s.TotalBits / s.Errors
}

// clone returns a deep copy of s.
func (s *State) clone() State {
	c := *s
	c.TestErrors = append([]uint64(nil), s.TestErrors...)
	return c
}
