package algo

import (
	"memtest/kernel"
	"memtest/kernel/mem"
)

// MovingInversions fills memory with p1 and then, iter times, walks it
// bottom-up checking for p1 and writing p2 followed by a top-down walk that
// checks for p2 and restores p1. The top-down walk descends within each
// window.
func MovingInversions(env *Env, iter int, p1, p2 uint32) *kernel.Error {
	env.showPattern(p1)

	err := env.sliced(func(buf []uint32, _ uintptr) {
		mem.Fill(buf, p1)
	})
	if err != nil || env.Cancelled() {
		return err
	}

	for it := 0; it < iter; it++ {
		err = env.sliced(func(buf []uint32, base uintptr) {
			for i := range buf {
				if bad := buf[i]; bad != p1 {
					env.dataError(base, i, p1, bad)
				}
				buf[i] = p2
			}
		})
		if err != nil || env.Cancelled() {
			return err
		}

		err = env.sliced(func(buf []uint32, base uintptr) {
			for i := len(buf) - 1; i >= 0; i-- {
				if bad := buf[i]; bad != p2 {
					env.dataError(base, i, p2, bad)
				}
				buf[i] = p1
			}
		})
		if err != nil || env.Cancelled() {
			return err
		}
	}

	return nil
}

// MovingInversionsRandom fills memory with a pseudo-random sequence seeded
// with (seed1, seed2). The generator is then reseeded and memory is verified
// against the same sequence, writing its complement; a second reseeded walk
// verifies the complement and restores the original values.
func MovingInversionsRandom(env *Env, seed1, seed2 uint32) *kernel.Error {
	env.showPattern(seed1)

	env.Rand.Seed(seed1, seed2)
	err := env.sliced(func(buf []uint32, _ uintptr) {
		for i := range buf {
			buf[i] = env.Rand.Uint32()
		}
	})
	if err != nil || env.Cancelled() {
		return err
	}

	for _, xorVal := range [2]uint32{0, ^uint32(0)} {
		env.Rand.Seed(seed1, seed2)
		err = env.sliced(func(buf []uint32, base uintptr) {
			for i := range buf {
				num := env.Rand.Uint32() ^ xorVal
				if bad := buf[i]; bad != num {
					env.dataError(base, i, num, bad)
				}
				buf[i] = ^num
			}
		})
		if err != nil || env.Cancelled() {
			return err
		}
	}

	return nil
}
