package algo

import (
	"memtest/kernel"
	"memtest/kernel/mem"
	"memtest/kernel/memtest/errinfo"
)

// walkStride is the distance in words between the anchors used by the
// walking address test.
const walkStride = 1 << 18

// WalkingAddress checks that the address lines are independent. Within each
// window, an anchor word is written and then words at power-of-two distances
// above and below it are written with the complement. A change of the
// anchor means that the two addresses alias; the scan from that anchor stops
// at the first alias. The test runs on a single processor over unsliced
// memory.
func WalkingAddress(env *Env) *kernel.Error {
	return env.unsliced(func(buf []uint32, base uintptr) {
		pat := uint32(0x5555aaaa)
		for k := 0; k < 2; k++ {
			env.showPattern(pat)

			for off := 0; off < len(buf); off += walkStride {
				buf[off] = pat
				pat = ^pat

				for more := 1; off+more < len(buf); more <<= 1 {
					buf[off+more] = pat
					if bad := buf[off]; bad != ^pat {
						env.addressError(base, off, off+more, ^pat, bad)
						break
					}
				}

				for more := 1; off > more; more <<= 1 {
					buf[off-more] = pat
					if bad := buf[off]; bad != ^pat {
						env.addressError(base, off, off-more, ^pat, bad)
						break
					}
				}
			}
		}
	})
}

// addressError reports that writing to the word at index alias changed the
// word at index anchor.
func (e *Env) addressError(base uintptr, anchor, alias int, good, bad uint32) {
	aliasAddr := base + uintptr(alias)<<mem.WordShift
	e.Report.Record(errinfo.Event{
		Kind:     errinfo.KindAddress,
		Addr:     base + uintptr(anchor)<<mem.WordShift,
		Expected: good,
		Actual:   bad,
		Xor:      uint32(aliasAddr),
		CPU:      e.CPU,
	})
}

// OwnAddress stores in every word its own address and then verifies that
// every word still holds it. When parallel is true the memory is sliced
// between the participating processors; otherwise the caller runs alone
// over all of memory.
func OwnAddress(env *Env, parallel bool) *kernel.Error {
	iterate := env.unsliced
	if parallel {
		iterate = env.sliced
	}

	env.showPattern(0)

	err := iterate(func(buf []uint32, base uintptr) {
		word := uint32(base)
		for i := range buf {
			buf[i] = word
			word += uint32(mem.WordSize)
		}
	})
	if err != nil || env.Cancelled() {
		return err
	}

	return iterate(func(buf []uint32, base uintptr) {
		word := uint32(base)
		for i := range buf {
			if bad := buf[i]; bad != word {
				env.Report.Record(errinfo.Event{
					Kind:     errinfo.KindAddress,
					Addr:     base + uintptr(i)<<mem.WordShift,
					Expected: word,
					Actual:   bad,
					Xor:      word ^ bad,
					CPU:      env.CPU,
				})
			}
			word += uint32(mem.WordSize)
		}
	})
}
