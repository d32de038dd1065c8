package mem

import "strconv"

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Pages returns the number of pages that are required for storing this size.
func (s Size) Pages() uint64 {
	pageSizeMinus1 := PageSize - 1
	return uint64((s+pageSizeMinus1)&^pageSizeMinus1) >> PageShift
}

// Words returns the number of whole words that fit in this size.
func (s Size) Words() uint64 {
	return uint64(s) >> WordShift
}

// String returns a human readable representation of the size using the
// largest unit that divides it into a value >= 1.
func (s Size) String() string {
	switch {
	case s >= Gb:
		return strconv.FormatFloat(float64(s)/float64(Gb), 'f', 1, 64) + "G"
	case s >= Mb:
		return strconv.FormatFloat(float64(s)/float64(Mb), 'f', 1, 64) + "M"
	case s >= Kb:
		return strconv.FormatUint(uint64(s/Kb), 10) + "K"
	default:
		return strconv.FormatUint(uint64(s), 10) + "B"
	}
}
