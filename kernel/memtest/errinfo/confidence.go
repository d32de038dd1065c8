package errinfo

import "math/bits"

// ConfidenceWeights parameterizes the confidence score.
type ConfidenceWeights struct {
	// Boundary is awarded when every failure lies more than BoundaryPages
	// away from both ends of the tested memory.
	Boundary      int    `mapstructure:"boundary" yaml:"boundary"`
	BoundaryPages uint64 `mapstructure:"boundary_pages" yaml:"boundary_pages"`

	// CleanTestPass is awarded per error-free test once a full pass has
	// completed; CleanTest is awarded per error-free test that has already
	// run in the first pass.
	CleanTestPass int `mapstructure:"clean_test_pass" yaml:"clean_test_pass"`
	CleanTest     int `mapstructure:"clean_test" yaml:"clean_test"`

	// CleanNibble is awarded per error-free nibble of the failing bits
	// mask.
	CleanNibble int `mapstructure:"clean_nibble" yaml:"clean_nibble"`

	// Divisor scales the sum of the awards to a percentage.
	Divisor int `mapstructure:"divisor" yaml:"divisor"`
}

// DefaultWeights returns the standard confidence weights.
func DefaultWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Boundary:      8,
		BoundaryPages: 0x100,
		CleanTestPass: 3,
		CleanTest:     2,
		CleanNibble:   2,
		Divisor:       22,
	}
}

// Confidence scores, from 0 to 100, how confident the failure pattern is
// attributable to a defective module. firstPage is the first tested page
// and lastPage is the page following the last tested page. currentTest is the index of the running test and
// afterPass is true once at least one full pass has completed.
func Confidence(s *State, w ConfidenceWeights, firstPage, lastPage uint64, currentTest int, afterPass bool) int {
	if w.Divisor <= 0 {
		w.Divisor = DefaultWeights().Divisor
	}

	var pct int

	// Failures near either end of the tested memory are often caused by
	// something other than the module.
	if s.Low.Page > firstPage+w.BoundaryPages && lastPage-firstPage > w.BoundaryPages && s.High.Page < lastPage-w.BoundaryPages {
		pct += w.Boundary
	}

	if afterPass {
		for _, n := range s.TestErrors {
			if n == 0 {
				pct += w.CleanTestPass
			}
		}
	} else {
		for i := 0; i < currentTest && i < len(s.TestErrors); i++ {
			if s.TestErrors[i] == 0 {
				pct += w.CleanTest
			}
		}
	}

	var failingNibbles int
	for n := s.ErrorBits; n != 0; n >>= 4 {
		if n&0xf != 0 {
			failingNibbles++
		}
	}
	pct += w.CleanNibble * (8 - failingNibbles)

	pct = pct * 100 / w.Divisor
	switch {
	case pct > 100:
		pct = 100
	case pct < 0:
		pct = 0
	}

	return pct
}

func popcount(v uint32) int {
	return bits.OnesCount32(v)
}
