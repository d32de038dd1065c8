// Package badram condenses failing physical addresses into a bounded list of
// (address, mask) patterns suitable for a kernel "badram=" boot option. An
// address a is covered by a pattern p when a&p.Mask == p.Addr.
package badram

import (
	"math/bits"
	"strconv"
	"strings"
)

// MaxPatterns is the default number of patterns kept by a Builder.
const MaxPatterns = 10

const (
	// fullMask is the mask of a pattern that covers a single address.
	fullMask = ^uint64(0)

	mask32 = uint64(0xffffffff)
)

// OverflowPolicy selects what happens when an uncovered address arrives and
// every pattern slot is in use.
type OverflowPolicy uint8

const (
	// OverflowIgnore drops the address.
	OverflowIgnore OverflowPolicy = iota

	// OverflowMerge folds the address into the pattern whose coverage
	// grows the least.
	OverflowMerge
)

// String implements fmt.Stringer for OverflowPolicy.
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowMerge:
		return "merge"
	default:
		return "ignore"
	}
}

// ParseOverflowPolicy converts a policy name back into an OverflowPolicy.
func ParseOverflowPolicy(name string) (OverflowPolicy, bool) {
	switch strings.ToLower(name) {
	case "ignore", "":
		return OverflowIgnore, true
	case "merge":
		return OverflowMerge, true
	default:
		return OverflowIgnore, false
	}
}

// Pattern describes the set of addresses a with a&Mask == Addr.
type Pattern struct {
	Addr uint64
	Mask uint64
}

// Covers returns true if addr matches the pattern.
func (p Pattern) Covers(addr uint64) bool {
	return addr&p.Mask == p.Addr
}

// Addresses returns the number of addresses matched by the pattern. The
// result saturates at the largest uint64.
func (p Pattern) Addresses() uint64 {
	return addresses(p.Mask)
}

func addresses(mask uint64) uint64 {
	zeros := bits.OnesCount64(^mask)
	if zeros >= 64 {
		return ^uint64(0)
	}
	return uint64(1) << uint(zeros)
}

// combine returns the narrowest pattern that covers both inputs. Mask bits
// survive only where both patterns care about the bit and agree on its value.
func combine(a, b Pattern) Pattern {
	mask := (a.Addr & a.Mask & b.Addr & b.Mask) | (^a.Addr & a.Mask & ^b.Addr & b.Mask)
	return Pattern{
		Addr: (a.Addr | b.Addr) & mask,
		Mask: mask,
	}
}

// combineCost returns the number of additional addresses that p would cover
// after being combined with q.
func combineCost(p, q Pattern) uint64 {
	return addresses(combine(p, q).Mask) - addresses(p.Mask)
}

// Builder accumulates failing addresses into at most Max patterns.
type Builder struct {
	patterns []Pattern
	max      int
	policy   OverflowPolicy
}

// NewBuilder returns a Builder that keeps at most max patterns. A non
// positive max selects MaxPatterns.
func NewBuilder(max int, policy OverflowPolicy) *Builder {
	if max <= 0 {
		max = MaxPatterns
	}

	return &Builder{
		patterns: make([]Pattern, 0, max),
		max:      max,
		policy:   policy,
	}
}

// Reset discards all patterns.
func (b *Builder) Reset() {
	b.patterns = b.patterns[:0]
}

// Len returns the number of patterns.
func (b *Builder) Len() int {
	return len(b.patterns)
}

// Patterns returns a copy of the current pattern list.
func (b *Builder) Patterns() []Pattern {
	return append([]Pattern(nil), b.patterns...)
}

// Covers returns true if any pattern matches addr.
func (b *Builder) Covers(addr uint64) bool {
	for _, p := range b.patterns {
		if p.Covers(addr) {
			return true
		}
	}
	return false
}

// cheapest returns the index of the pattern that grows the least when
// combined with p, considering only growths strictly below limit. The
// pattern at index skip is not considered. It returns -1 if no pattern
// qualifies.
func (b *Builder) cheapest(p Pattern, limit uint64, skip int) int {
	best := -1
	for i := len(b.patterns) - 1; i >= 0; i-- {
		if i == skip {
			continue
		}

		if cost := combineCost(b.patterns[i], p); cost < limit {
			best, limit = i, cost
		}
	}
	return best
}

// relocateIfFree folds the pattern at index into another pattern if doing so
// adds no more addresses than the pattern itself covers. Merges cascade
// until no further free merge is possible.
func (b *Builder) relocateIfFree(index int) {
	for {
		p := b.patterns[index]

		limit := addresses(p.Mask)
		if limit != ^uint64(0) {
			limit++
		}

		target := b.cheapest(p, limit, index)
		if target == -1 {
			return
		}

		b.patterns[target] = combine(b.patterns[target], p)

		last := len(b.patterns) - 1
		b.patterns[index] = b.patterns[last]
		b.patterns = b.patterns[:last]
		if target == last {
			target = index
		}

		index = target
	}
}

// Insert records a failing address. It returns true if the pattern list
// changed and false if the address was already covered or was dropped by
// the overflow policy.
func (b *Builder) Insert(addr uint64) bool {
	single := Pattern{Addr: addr, Mask: fullMask}
	if b.cheapest(single, 1, -1) != -1 {
		return false
	}

	if len(b.patterns) < b.max {
		b.patterns = append(b.patterns, single)
		b.relocateIfFree(len(b.patterns) - 1)
		return true
	}

	if b.policy != OverflowMerge {
		return false
	}

	target := b.cheapest(single, ^uint64(0), -1)
	if target == -1 {
		target = 0
	}

	b.patterns[target] = combine(b.patterns[target], single)
	b.relocateIfFree(target)
	return true
}

// String returns the patterns as a single "badram=" option.
func (b *Builder) String() string {
	return "badram=" + strings.Join(b.entries(), ",")
}

// Lines renders the patterns as a "badram=" option wrapped to width columns.
// Continuation lines are indented so that entries line up with the first
// entry.
func (b *Builder) Lines(width int) []string {
	const prefix = "badram="

	var (
		lines   []string
		current = prefix
		entries = b.entries()
	)

	for i, entry := range entries {
		if i != len(entries)-1 {
			entry += ","
		}

		if len(current) > len(prefix) && len(current)+len(entry) > width {
			lines = append(lines, current)
			current = strings.Repeat(" ", len(prefix))
		}
		current += entry
	}

	return append(lines, current)
}

// entries renders each pattern as "0xADDR,0xMASK". Patterns that only match
// addresses below 4G are rendered with 32-bit masks.
func (b *Builder) entries() []string {
	entries := make([]string, 0, len(b.patterns))
	for _, p := range b.patterns {
		mask := p.Mask
		if p.Addr>>32 == 0 && mask>>32 == mask32 {
			mask &= mask32
		}
		entries = append(entries, "0x"+hex8(p.Addr)+",0x"+hex8(mask))
	}
	return entries
}

func hex8(v uint64) string {
	str := strconv.FormatUint(v, 16)
	if len(str) < 8 {
		str = strings.Repeat("0", 8-len(str)) + str
	}
	return str
}
