package algo

import "memtest/kernel"

// ModuloStride is the distance in words between the words holding the
// primary pattern of the modulo test.
const ModuloStride = 20

// Modulo writes p1 to every ModuloStride-th word starting at offset within
// each window and p2 to every other word, repeating the p2 writes iter
// times. It then verifies that the p1 words were not disturbed.
func Modulo(env *Env, offset, iter int, p1, p2 uint32) *kernel.Error {
	if env.Display != nil && env.Master() {
		env.Display.ShowModuloPattern(p1, offset)
	}

	err := env.sliced(func(buf []uint32, _ uintptr) {
		for i := offset; i < len(buf); i += ModuloStride {
			buf[i] = p1
		}
	})
	if err != nil || env.Cancelled() {
		return err
	}

	for it := 0; it < iter; it++ {
		err = env.sliced(func(buf []uint32, _ uintptr) {
			k := 0
			for i := range buf {
				if k != offset {
					buf[i] = p2
				}
				if k++; k == ModuloStride {
					k = 0
				}
			}
		})
		if err != nil || env.Cancelled() {
			return err
		}
	}

	return env.sliced(func(buf []uint32, base uintptr) {
		for i := offset; i < len(buf); i += ModuloStride {
			if bad := buf[i]; bad != p1 {
				env.dataError(base, i, p1, bad)
			}
		}
	})
}
