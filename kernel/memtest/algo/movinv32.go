package algo

import "memtest/kernel"

// rotation tracks the pattern of the 32-bit rotating test. The pattern
// shifts by one bit per word, inserting sval at the bottom; after 32 words
// it restarts from lb. Walking down, it shifts right inserting sval at the
// top and restarts from hb.
type rotation struct {
	pat, k           uint32
	p1, lb, hb, sval uint32
	off              uint32
}

func (r *rotation) reset() {
	r.pat, r.k = r.p1, r.off
}

func (r *rotation) up() {
	r.k++
	if r.k >= 32 {
		r.pat, r.k = r.lb, 0
		return
	}
	r.pat = r.pat<<1 | r.sval
}

func (r *rotation) down() {
	r.k--
	if r.k == 0 {
		r.pat, r.k = r.hb, 32
		return
	}
	r.pat = r.pat>>1 | r.sval<<31
}

// seekLast positions the rotation on the last word of a window holding
// words values.
func (r *rotation) seekLast(words int) {
	r.reset()
	for steps := (words - 1) % 32; steps > 0; steps-- {
		r.up()
	}
	r.k++
}

// MovingInversions32 runs the moving inversions test with a pattern that
// rotates a single bit across the 32 bit positions. Each window starts the
// rotation with pattern p1 at phase off. lb and hb are the patterns that
// follow a wrap going up and down respectively and sval is the bit shifted
// in.
func MovingInversions32(env *Env, iter int, p1, lb, hb, sval uint32, off int) *kernel.Error {
	env.showPattern(p1)

	newRotation := func() *rotation {
		return &rotation{p1: p1, lb: lb, hb: hb, sval: sval, off: uint32(off)}
	}

	err := env.sliced(func(buf []uint32, _ uintptr) {
		r := newRotation()
		r.reset()
		for i := range buf {
			buf[i] = r.pat
			r.up()
		}
	})
	if err != nil || env.Cancelled() {
		return err
	}

	for it := 0; it < iter; it++ {
		err = env.sliced(func(buf []uint32, base uintptr) {
			r := newRotation()
			r.reset()
			for i := range buf {
				if bad := buf[i]; bad != r.pat {
					env.dataError(base, i, r.pat, bad)
				}
				buf[i] = ^r.pat
				r.up()
			}
		})
		if err != nil || env.Cancelled() {
			return err
		}

		err = env.sliced(func(buf []uint32, base uintptr) {
			r := newRotation()
			r.seekLast(len(buf))
			for i := len(buf) - 1; i >= 0; i-- {
				if bad := buf[i]; bad != ^r.pat {
					env.dataError(base, i, ^r.pat, bad)
				}
				buf[i] = r.pat
				r.down()
			}
		})
		if err != nil || env.Cancelled() {
			return err
		}
	}

	return nil
}
