// Package memmap describes the physical memory segments that are available
// for testing and the window through which each one is currently mapped.
package memmap

import (
	"memtest/kernel"
	"memtest/kernel/mem"
)

var (
	errEmptyRange     = &kernel.Error{Module: "memmap", Message: "range start is not below range end"}
	errPageBounds     = &kernel.Error{Module: "memmap", Message: "range physical end page is not above its start page"}
	errRangeAlignment = &kernel.Error{Module: "memmap", Message: "range is not word aligned"}
	errRangeOrder     = &kernel.Error{Module: "memmap", Message: "ranges must be supplied in ascending physical order"}
	errRangeOverlap   = &kernel.Error{Module: "memmap", Message: "ranges overlap"}
	errIterAlignment  = &kernel.Error{Module: "memmap", Message: "range start must be 8-byte aligned and end must address the odd word of an 8-byte unit"}
)

// Range describes a contiguous physical segment together with the virtual
// window through which it is accessed.
type Range struct {
	// PhysStartPage is the first physical page of the segment.
	PhysStartPage uint64

	// PhysEndPage is the page following the last physical page of the
	// segment.
	PhysEndPage uint64

	// Start is the address of the first testable word.
	Start uintptr

	// End is the address of the last testable word.
	End uintptr
}

// Words returns the number of words spanned by the range.
func (r *Range) Words() uint64 {
	return uint64(r.End>>mem.WordShift) + 1 - uint64(r.Start>>mem.WordShift)
}

// Size returns the number of bytes spanned by the range.
func (r *Range) Size() mem.Size {
	return mem.Size(r.Words()) * mem.WordSize
}

// Contains returns true if addr falls within the range.
func (r *Range) Contains(addr uintptr) bool {
	return addr >= r.Start && addr <= r.End+uintptr(mem.WordSize-1)
}

// PageOf converts an address inside the range to a physical page number
// and the byte offset within that page. The in-page offset of Start is
// assumed to match the in-page offset of the corresponding physical
// address.
func (r *Range) PageOf(addr uintptr) (page, offset uint64) {
	windowBase := uint64(r.Start) &^ uint64(mem.PageSize-1)
	phys := r.PhysStartPage<<mem.PageShift + (uint64(addr) - windowBase)
	return phys >> mem.PageShift, phys & uint64(mem.PageSize-1)
}

func (r *Range) validate() *kernel.Error {
	switch {
	case r.Start >= r.End:
		return errEmptyRange
	case r.PhysEndPage <= r.PhysStartPage:
		return errPageBounds
	case r.Start&uintptr(mem.WordSize-1) != 0, r.End&uintptr(mem.WordSize-1) != 0:
		return errRangeAlignment
	}

	return nil
}

// Visitor is invoked by Map.Visit for each range in ascending physical
// order. The visitor must return true to continue or false to abort the scan.
type Visitor func(index int, r *Range) bool

// Map is an ordered, non-overlapping list of ranges.
type Map struct {
	ranges []Range
}

// New returns a Map containing the supplied ranges or an error if they
// are not well formed.
func New(ranges ...Range) (*Map, *kernel.Error) {
	m := &Map{ranges: make([]Range, 0, len(ranges))}
	for _, r := range ranges {
		if err := m.Add(r); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Add appends a range to the map. Ranges must be added in ascending
// physical order.
func (m *Map) Add(r Range) *kernel.Error {
	if err := r.validate(); err != nil {
		return err
	}

	if n := len(m.ranges); n != 0 {
		last := &m.ranges[n-1]
		if r.PhysStartPage < last.PhysStartPage {
			return errRangeOrder
		}
		if r.PhysStartPage < last.PhysEndPage || r.Start <= last.End {
			return errRangeOverlap
		}
	}

	m.ranges = append(m.ranges, r)
	return nil
}

// Len returns the number of ranges in the map.
func (m *Map) Len() int {
	return len(m.ranges)
}

// Validate checks that every range in the map can be split into chunks: each
// range must start on an 8-byte boundary and end on the last word of an
// 8-byte unit.
func (m *Map) Validate() *kernel.Error {
	for i := range m.ranges {
		if r := &m.ranges[i]; r.Start&7 != 0 || r.End&7 != 4 {
			return errIterAlignment
		}
	}
	return nil
}

// Range returns a pointer to the i-th range.
func (m *Map) Range(i int) *Range {
	return &m.ranges[i]
}

// Visit invokes visitor for each range in the map.
func (m *Map) Visit(visitor Visitor) {
	for i := range m.ranges {
		if !visitor(i, &m.ranges[i]) {
			return
		}
	}
}

// Words returns the total number of words spanned by all ranges.
func (m *Map) Words() uint64 {
	var total uint64
	for i := range m.ranges {
		total += m.ranges[i].Words()
	}
	return total
}

// Size returns the total number of bytes spanned by all ranges.
func (m *Map) Size() mem.Size {
	return mem.Size(m.Words()) * mem.WordSize
}

// FirstPage returns the first physical page covered by the map.
func (m *Map) FirstPage() uint64 {
	if len(m.ranges) == 0 {
		return 0
	}
	return m.ranges[0].PhysStartPage
}

// LastPage returns the page following the last physical page covered by
// the map.
func (m *Map) LastPage() uint64 {
	if len(m.ranges) == 0 {
		return 0
	}
	return m.ranges[len(m.ranges)-1].PhysEndPage
}

// PageOf locates the range containing addr and converts addr to a physical
// page and offset. If no range contains addr, ok is false and the page and
// offset are derived from addr itself.
func (m *Map) PageOf(addr uintptr) (page, offset uint64, ok bool) {
	for i := range m.ranges {
		if m.ranges[i].Contains(addr) {
			page, offset = m.ranges[i].PageOf(addr)
			return page, offset, true
		}
	}

	return uint64(addr) >> mem.PageShift, uint64(addr) & uint64(mem.PageSize-1), false
}
