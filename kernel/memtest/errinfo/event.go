// Package errinfo aggregates the failures reported by the test algorithms,
// renders them in the selected display mode and computes the confidence
// score shown while no errors have been found.
package errinfo

import "strings"

// Kind classifies an error event.
type Kind uint8

const (
	// KindData is a data mismatch: a word read back a value different
	// from the one that was written.
	KindData Kind = iota

	// KindAddress is an addressing fault detected by the address tests.
	KindAddress

	// KindECCCorrected is a corrected ECC error reported by the memory
	// controller.
	KindECCCorrected

	// KindECCUncorrected is an uncorrected ECC error reported by the
	// memory controller.
	KindECCUncorrected

	// KindParity is a parity error reported by the memory controller.
	KindParity
)

// String implements fmt.Stringer for Kind.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindAddress:
		return "address"
	case KindECCCorrected:
		return "ecc-corrected"
	case KindECCUncorrected:
		return "ecc-uncorrected"
	case KindParity:
		return "parity"
	default:
		return "unknown"
	}
}

// Event describes a single failure.
type Event struct {
	Kind Kind

	// Addr is the address of the failing word. ECC and parity events
	// report a physical page and offset instead.
	Addr uintptr

	// Expected and Actual hold the written and read back values.
	Expected uint32
	Actual   uint32

	// Xor holds the failing bits. For address events it holds the
	// address that aliased onto Addr.
	Xor uint32

	// Page and Offset locate ECC events.
	Page   uint64
	Offset uint64

	// Syndrome and Channel describe ECC events.
	Syndrome uint16
	Channel  uint8

	// CPU is the ordinal of the processor that detected the failure.
	CPU int
}

// Mode selects how errors are rendered.
type Mode uint8

const (
	// ModeSummary shows aggregate statistics.
	ModeSummary Mode = iota

	// ModeAddresses shows one scrolling line per failure.
	ModeAddresses

	// ModePatterns shows the BadRAM patterns that cover the failures.
	ModePatterns

	// ModeNone suppresses error output.
	ModeNone

	numModes
)

// String implements fmt.Stringer for Mode.
func (m Mode) String() string {
	switch m {
	case ModeSummary:
		return "summary"
	case ModeAddresses:
		return "addresses"
	case ModePatterns:
		return "patterns"
	case ModeNone:
		return "none"
	default:
		return "unknown"
	}
}

// Next returns the mode that follows m when cycling through the modes.
func (m Mode) Next() Mode {
	return (m + 1) % numModes
}

// ParseMode converts a mode name back into a Mode. The singular "address"
// is accepted for ModeAddresses.
func ParseMode(name string) (Mode, bool) {
	if strings.EqualFold(name, "address") {
		return ModeAddresses, true
	}
	for m := ModeSummary; m < numModes; m++ {
		if strings.EqualFold(name, m.String()) {
			return m, true
		}
	}
	return ModeSummary, false
}
