package seq

import (
	"time"

	"memtest/kernel"
	"memtest/kernel/memtest/algo"
)

const (
	// randomSeed1 and randomSeed2 seed the random number sequence test.
	// They are offset by the pass number so that each pass uses a
	// different sequence.
	randomSeed1 = 521288629
	randomSeed2 = 362436069

	// movInvRandomIter is the number of inversions per random pattern.
	movInvRandomIter = 2

	// moduloIter is the number of dense writes per modulo pattern.
	moduloIter = 2
)

// Standard returns the default test sequence.
func Standard() Sequence {
	return Sequence{
		{
			Name: "Address test, walking ones", Enabled: true, Iterations: 6, Mode: Single,
			Run: func(_ Context, env *algo.Env, _ int) *kernel.Error {
				return algo.WalkingAddress(env)
			},
			Estimate: func(int, time.Duration) Estimate { return Estimate{Unsliced: 1} },
		},
		{
			Name: "Address test, own address Sequential", Enabled: true, Iterations: 6, Mode: Single, BadRAMSafe: true,
			Run: func(_ Context, env *algo.Env, _ int) *kernel.Error {
				return algo.OwnAddress(env, false)
			},
			Estimate: func(int, time.Duration) Estimate { return Estimate{Unsliced: 2} },
		},
		{
			Name: "Address test, own address Parallel", Enabled: true, Iterations: 6, Mode: Parallel, BadRAMSafe: true,
			Run: func(_ Context, env *algo.Env, _ int) *kernel.Error {
				return algo.OwnAddress(env, true)
			},
			Estimate: func(int, time.Duration) Estimate { return Estimate{Sliced: 2} },
		},
		{
			Name: "Moving inversions, 1s & 0s Parallel", Enabled: true, Iterations: 6, Mode: Parallel, BadRAMSafe: true,
			Run: func(_ Context, env *algo.Env, iter int) *kernel.Error {
				return movInvPair(env, iter, 0, ^uint32(0))
			},
			Estimate: func(iter int, _ time.Duration) Estimate {
				return Estimate{Sliced: 2 * movInvPasses(iter)}
			},
		},
		{
			Name: "Moving inversions, 8 bit pattern", Enabled: true, Iterations: 3, Mode: Parallel, BadRAMSafe: true,
			Run:      movInv8Bit,
			Estimate: func(iter int, _ time.Duration) Estimate { return Estimate{Sliced: 16 * movInvPasses(iter)} },
		},
		{
			Name: "Moving inversions, random pattern", Enabled: true, Iterations: 30, Mode: Parallel, BadRAMSafe: true,
			Run: movInvRandomPattern,
			Estimate: func(iter int, _ time.Duration) Estimate {
				return Estimate{Sliced: uint64(iter) * movInvPasses(movInvRandomIter)}
			},
		},
		{
			Name: "Block move", Enabled: true, Iterations: 81, Mode: Parallel,
			Run: func(_ Context, env *algo.Env, iter int) *kernel.Error {
				return algo.BlockMove(env, iter)
			},
			Estimate: func(int, time.Duration) Estimate { return Estimate{Sliced: 3} },
		},
		{
			Name: "Moving inversions, 32 bit pattern", Enabled: true, Iterations: 3, Mode: Parallel, BadRAMSafe: true,
			Run:      movInv32Bit,
			Estimate: func(iter int, _ time.Duration) Estimate { return Estimate{Sliced: 64 * movInvPasses(iter)} },
		},
		{
			Name: "Random number sequence", Enabled: true, Iterations: 48, Mode: Parallel, BadRAMSafe: true,
			Run:      randomSequence,
			Estimate: func(iter int, _ time.Duration) Estimate { return Estimate{Sliced: 3 * uint64(iter)} },
		},
		{
			Name: "Modulo 20, Random pattern", Enabled: true, Iterations: 6, Mode: Parallel, BadRAMSafe: true,
			Run: modulo20,
			Estimate: func(iter int, _ time.Duration) Estimate {
				return Estimate{Sliced: uint64(iter) * 2 * algo.ModuloStride * (moduloIter + 2)}
			},
		},
		{
			Name: "Bit fade test, 2 patterns", Enabled: true, Iterations: 1, Mode: Single, BadRAMSafe: true,
			Run: bitFade,
			Estimate: func(_ int, fade time.Duration) Estimate {
				return Estimate{Unsliced: 4, Seconds: 2 * uint64(fade/time.Second)}
			},
		},
	}
}

// movInvPasses returns the number of passes over memory performed by a
// single moving inversions call.
func movInvPasses(iter int) uint64 {
	return 1 + 2*uint64(iter)
}

// movInvPair runs the moving inversions test with p1 and p2 and then with
// the two patterns swapped.
func movInvPair(env *algo.Env, iter int, p1, p2 uint32) *kernel.Error {
	if err := algo.MovingInversions(env, iter, p1, p2); err != nil || env.Cancelled() {
		return err
	}
	return algo.MovingInversions(env, iter, p2, p1)
}

// movInv8Bit walks a bit through each byte of the word.
func movInv8Bit(_ Context, env *algo.Env, iter int) *kernel.Error {
	for b := uint32(0x80); b != 0; b >>= 1 {
		p1 := b | b<<8 | b<<16 | b<<24
		if err := movInvPair(env, iter, p1, ^p1); err != nil || env.Cancelled() {
			return err
		}
	}
	return nil
}

func movInvRandomPattern(_ Context, env *algo.Env, iter int) *kernel.Error {
	for i := 0; i < iter; i++ {
		p1 := env.Rand.Uint32()
		if err := algo.MovingInversions(env, movInvRandomIter, p1, ^p1); err != nil || env.Cancelled() {
			return err
		}
	}
	return nil
}

// movInv32Bit rotates a single one and then a single zero through all 32
// bit positions.
func movInv32Bit(_ Context, env *algo.Env, iter int) *kernel.Error {
	for off := 0; off < 32; off++ {
		p1 := uint32(1) << uint(off)
		if err := algo.MovingInversions32(env, iter, p1, 1, 0x80000000, 0, off); err != nil || env.Cancelled() {
			return err
		}
		if err := algo.MovingInversions32(env, iter, ^p1, 0xfffffffe, 0x7fffffff, 1, off); err != nil || env.Cancelled() {
			return err
		}
	}
	return nil
}

func randomSequence(ctx Context, env *algo.Env, iter int) *kernel.Error {
	pass := uint32(ctx.Pass())
	for i := 0; i < iter; i++ {
		if err := algo.MovingInversionsRandom(env, randomSeed1+pass, randomSeed2-pass); err != nil || env.Cancelled() {
			return err
		}
	}
	return nil
}

func modulo20(_ Context, env *algo.Env, iter int) *kernel.Error {
	for i := 0; i < iter; i++ {
		p1 := env.Rand.Uint32()
		for off := 0; off < algo.ModuloStride; off++ {
			if err := algo.Modulo(env, off, moduloIter, p1, ^p1); err != nil || env.Cancelled() {
				return err
			}
			if err := algo.Modulo(env, off, moduloIter, ^p1, p1); err != nil || env.Cancelled() {
				return err
			}
		}
	}
	return nil
}

// bitFade fills memory with zeros and then ones, checking that each pattern
// survives the fade delay.
func bitFade(ctx Context, env *algo.Env, _ int) *kernel.Error {
	for _, p := range [2]uint32{0, ^uint32(0)} {
		if err := algo.BitFadeFill(env, p); err != nil || env.Cancelled() {
			return err
		}

		ctx.Sleep(env, ctx.FadeDelay())
		if env.Cancelled() {
			return nil
		}

		if err := algo.BitFadeCheck(env, p); err != nil || env.Cancelled() {
			return err
		}
	}
	return nil
}
