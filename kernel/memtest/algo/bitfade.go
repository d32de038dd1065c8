package algo

import (
	"memtest/kernel"
	"memtest/kernel/mem"
)

// BitFadeFill fills all memory with p. It runs on a single processor.
func BitFadeFill(env *Env, p uint32) *kernel.Error {
	env.showPattern(p)

	return env.unsliced(func(buf []uint32, _ uintptr) {
		mem.Fill(buf, p)
	})
}

// BitFadeCheck verifies that all memory still holds p after the fade delay.
func BitFadeCheck(env *Env, p uint32) *kernel.Error {
	return env.unsliced(func(buf []uint32, base uintptr) {
		for i := range buf {
			if bad := buf[i]; bad != p {
				env.dataError(base, i, p, bad)
			}
		}
	})
}
