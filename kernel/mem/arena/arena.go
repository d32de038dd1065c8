// Package arena reserves the host memory that is tested. The memory is
// mapped anonymously, optionally locked into RAM and split into segments
// that are separated by inaccessible guard pages. Each segment is exposed as
// a memmap.Range with synthetic physical page numbers.
package arena

import (
	"fmt"
	"unsafe"

	gmem "github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sys/unix"

	"memtest/kernel/kfmt"
	"memtest/kernel/mem"
	"memtest/kernel/mem/memmap"
)

const (
	// FirstPhysPage is the synthetic physical page of the first segment.
	FirstPhysPage = 0x100

	// sentinelBytes is the size of the sentinel area reserved at both
	// ends of each segment.
	sentinelBytes = mem.CacheLineSize

	// sentinel is the value stored in the sentinel areas.
	sentinel = 0x5a17e1a5
)

var (
	// The following functions are mocked by tests.
	mmapFn          = unix.Mmap
	mprotectFn      = unix.Mprotect
	mlockFn         = unix.Mlock
	munmapFn        = unix.Munmap
	virtualMemoryFn = gmem.VirtualMemory
)

// segment is a contiguous accessible part of the arena.
type segment struct {
	buf       []byte
	physStart uint64
}

// Arena is a set of locked memory segments.
type Arena struct {
	mapping  []byte
	segments []segment
	locked   bool
	memMap   *memmap.Map
}

// New maps size bytes split into the requested number of segments. If lock
// is true, the segments are locked into RAM; failing to do so is logged but
// not fatal.
func New(size mem.Size, segments int, lock bool) (*Arena, error) {
	if segments < 1 {
		segments = 1
	}

	pageSize := uint64(unix.Getpagesize())
	segBytes := (uint64(size) / uint64(segments)) &^ (pageSize - 1)
	if segBytes < pageSize {
		return nil, fmt.Errorf("arena size %s is too small for %d segment(s)", size, segments)
	}

	// Every segment is followed by a guard page and the first segment is
	// preceded by one.
	total := uint64(segments)*(segBytes+pageSize) + pageSize
	mapping, err := mmapFn(-1, 0, int(total), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mapping arena: %w", err)
	}

	a := &Arena{mapping: mapping, locked: lock}
	for i := 0; i < segments; i++ {
		start := pageSize + uint64(i)*(segBytes+pageSize)
		seg := mapping[start : start+segBytes : start+segBytes]

		if err = mprotectFn(seg, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			_ = munmapFn(mapping)
			return nil, fmt.Errorf("unprotecting arena segment %d: %w", i, err)
		}

		if a.locked {
			if err = mlockFn(seg); err != nil {
				kfmt.Logf("arena", "unable to lock segment %d (%v); testing unlocked memory", i, err)
				a.locked = false
			}
		}

		a.segments = append(a.segments, segment{
			buf:       seg,
			physStart: FirstPhysPage + start>>mem.PageShift,
		})
	}

	if a.memMap, err = a.buildMap(); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.fillSentinels()
	return a, nil
}

// buildMap describes the testable part of every segment.
func (a *Arena) buildMap() (*memmap.Map, error) {
	m := &memmap.Map{}
	for i := range a.segments {
		seg := &a.segments[i]
		base := mem.AddrOf(words(seg.buf), 0)
		pages := uint64(len(seg.buf)) >> mem.PageShift

		r := memmap.Range{
			PhysStartPage: seg.physStart,
			PhysEndPage:   seg.physStart + pages,
			Start:         base + uintptr(sentinelBytes),
			End:           base + uintptr(len(seg.buf)) - uintptr(sentinelBytes) - uintptr(mem.WordSize),
		}
		if err := m.Add(r); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Map returns the memory map of the testable words.
func (a *Arena) Map() *memmap.Map {
	return a.memMap
}

// Locked returns true if every segment is locked into RAM.
func (a *Arena) Locked() bool {
	return a.locked
}

// Size returns the number of bytes spanned by all segments, including the
// sentinel areas.
func (a *Arena) Size() mem.Size {
	var total mem.Size
	for i := range a.segments {
		total += mem.Size(len(a.segments[i].buf))
	}
	return total
}

// fillSentinels writes the sentinel value to both ends of every segment.
func (a *Arena) fillSentinels() {
	for i := range a.segments {
		head, tail := a.sentinels(i)
		mem.Fill(head, sentinel)
		mem.Fill(tail, sentinel)
	}
}

// VerifySentinels checks that no test wrote outside of the memory map.
func (a *Arena) VerifySentinels() error {
	for i := range a.segments {
		head, tail := a.sentinels(i)
		for _, area := range [2][]uint32{head, tail} {
			for j, v := range area {
				if v != sentinel {
					return fmt.Errorf("sentinel of segment %d at 0x%x was overwritten: 0x%08x", i, mem.AddrOf(area, j), v)
				}
			}
		}
	}
	return nil
}

func (a *Arena) sentinels(i int) (head, tail []uint32) {
	w := words(a.segments[i].buf)
	n := int(sentinelBytes / mem.WordSize)
	return w[:n], w[len(w)-n:]
}

// Close unmaps the arena.
func (a *Arena) Close() error {
	if a.mapping == nil {
		return nil
	}

	err := munmapFn(a.mapping)
	a.mapping, a.segments, a.memMap = nil, nil, nil
	return err
}

// words overlays a []uint32 on buf.
func words(buf []byte) []uint32 {
	if len(buf) == 0 {
		return nil
	}
	return mem.Words(uintptr(unsafe.Pointer(unsafe.SliceData(buf))), uint64(len(buf))>>mem.WordShift)
}

// SizeFromPercent returns pct percent of the memory that is currently
// available, rounded down to a multiple of the page size.
func SizeFromPercent(pct float64) (mem.Size, error) {
	vm, err := virtualMemoryFn()
	if err != nil {
		return 0, fmt.Errorf("querying available memory: %w", err)
	}

	size := uint64(float64(vm.Available) * pct / 100)
	return mem.Size(size &^ uint64(mem.PageSize-1)), nil
}
