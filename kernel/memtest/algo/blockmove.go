package algo

import "memtest/kernel"

const (
	// blockWords is the number of words in a block of the block move test.
	blockWords = 16

	// minBlockMoveWords is the smallest window that holds two blocks per
	// half.
	minBlockMoveWords = 2 * blockWords

	// blockShift is the distance in words by which each move rotates the
	// first half of a window.
	blockShift = 8
)

// blockMoveWords truncates a window to a multiple of two blocks.
func blockMoveWords(buf []uint32) []uint32 {
	return buf[:(len(buf)/minBlockMoveWords)*minBlockMoveWords]
}

// nextBlockValue rotates v one bit to the left, passing through zero.
func nextBlockValue(v uint32) uint32 {
	switch {
	case v == 0:
		return 1
	case v&0x80000000 != 0:
		return 0
	default:
		return v << 1
	}
}

// BlockMove fills the first half of every window with blocks of a rotating
// bit and its complement, then repeatedly copies the first half onto the
// second half and rotates the first half by 8 words. Since every block holds
// pairs of equal words, the check verifies that each even word equals its
// successor. Windows smaller than two blocks are skipped.
func BlockMove(env *Env, iter int) *kernel.Error {
	if env.Display != nil && env.Master() {
		env.Display.ClearPattern()
	}

	err := env.sliced(func(buf []uint32, _ uintptr) {
		buf = blockMoveWords(buf)
		half := len(buf) / 2

		b := uint32(1)
		for blk := 0; blk < half; blk += blockWords {
			n := ^b
			block := [blockWords]uint32{
				b, b, b, b, n, n, b, b,
				b, b, n, n, b, b, n, n,
			}
			copy(buf[blk:], block[:])
			b = nextBlockValue(b)
		}
	})
	if err != nil || !env.wait() {
		return err
	}

	err = env.sliced(func(buf []uint32, _ uintptr) {
		buf = blockMoveWords(buf)
		if len(buf) == 0 {
			return
		}
		half := len(buf) / 2
		mid := buf[half:]

		for it := 0; it < iter && !env.Cancelled(); it++ {
			copy(mid, buf[:half])
			copy(buf[blockShift:half], mid[:half-blockShift])
			copy(buf[:blockShift], mid[half-blockShift:])
		}
	})
	if err != nil || !env.wait() {
		return err
	}

	return env.sliced(func(buf []uint32, base uintptr) {
		buf = blockMoveWords(buf)
		for i := 0; i < len(buf); i += 2 {
			if buf[i] != buf[i+1] {
				env.dataError(base, i, buf[i], buf[i+1])
			}
		}
	})
}
