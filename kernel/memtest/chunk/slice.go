package chunk

import (
	"memtest/kernel"
	"memtest/kernel/mem"
	"memtest/kernel/mem/memmap"
)

// Slice returns the portion of r that processor cpu out of numCPUs must
// test. The range is divided into numCPUs slices whose size is rounded down
// to a multiple of align bytes; the last processor also receives any
// remainder. If the rounded slice size is zero, the last processor receives
// the whole range and ok is false for every other processor.
func Slice(r *memmap.Range, cpu, numCPUs int, align uint64) (start, end uintptr, ok bool, err *kernel.Error) {
	switch {
	case numCPUs < 1, cpu < 0, cpu >= numCPUs:
		return 0, 0, false, ErrBadCPU
	case align < 8, align&(align-1) != 0:
		return 0, 0, false, ErrBadAlignment
	}

	if numCPUs == 1 {
		return r.Start, r.End, true, nil
	}

	var (
		bytes = r.Words() << mem.WordShift
		size  = (bytes / uint64(numCPUs)) &^ (align - 1)
		last  = cpu == numCPUs-1
	)

	if size == 0 {
		if last {
			return r.Start, r.End, true, nil
		}
		return 0, 0, false, nil
	}

	start = r.Start + uintptr(uint64(cpu)*size)
	end = start + uintptr(size) - uintptr(mem.WordSize)
	if last {
		end = r.End
	}

	return start, end, true, nil
}

// maxSliceChunks returns the largest number of chunks that any processor
// produces for its slice of r.
func maxSliceChunks(r *memmap.Range, numCPUs int, window uint64) uint64 {
	var busiest uint64
	for cpu := 0; cpu < numCPUs; cpu++ {
		start, end, ok, err := Slice(r, cpu, numCPUs, mem.CacheLineSize)
		if err != nil || !ok {
			continue
		}

		if n := Count(start, end, window); n > busiest {
			busiest = n
		}
	}
	return busiest
}

// Sliced visits the slice of every range in m that belongs to processor cpu.
// Each slice is split into windows via ForEach.
//
// All participating processors emit the same number of ticks for every
// range: a processor that produces fewer chunks than the busiest one emits
// the missing ticks after finishing its slice. This keeps any barrier
// executed by the tick hook balanced.
func Sliced(m *memmap.Map, cpu, numCPUs int, window uint64, hooks Hooks, fn Func) *kernel.Error {
	var (
		prevEnd  uintptr
		havePrev bool
		err      *kernel.Error
	)

	m.Visit(func(_ int, r *memmap.Range) bool {
		var (
			start, end uintptr
			ok         bool
			ticks      uint64
		)

		if start, end, ok, err = Slice(r, cpu, numCPUs, mem.CacheLineSize); err != nil {
			return false
		}

		if ok {
			if havePrev && start <= prevEnd {
				err = ErrSliceOrder
				return false
			}
			prevEnd, havePrev = end, true

			counted := hooks
			counted.Tick = func() {
				ticks++
				if hooks.Tick != nil {
					hooks.Tick()
				}
			}

			if err = ForEach(start, end, window, counted, fn); err != nil {
				return false
			}
		}

		if hooks.Cancel.IsSet() {
			return false
		}

		for busiest := maxSliceChunks(r, numCPUs, window); ticks < busiest; ticks++ {
			if !hooks.tick() {
				return false
			}
		}
		return true
	})

	return err
}

// SlicedTicks returns the number of ticks emitted by Sliced. The value is
// the same for every processor.
func SlicedTicks(m *memmap.Map, numCPUs int, window uint64) uint64 {
	var ticks uint64
	m.Visit(func(_ int, r *memmap.Range) bool {
		ticks += maxSliceChunks(r, numCPUs, window)
		return true
	})
	return ticks
}
