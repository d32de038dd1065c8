package algo

import "math/rand/v2"

// RandSource is a reseedable generator of 32-bit values. Reseeding with the
// same seeds must reproduce the same sequence.
type RandSource interface {
	Seed(seed1, seed2 uint32)
	Uint32() uint32
}

// PCG is a RandSource backed by a permuted congruential generator.
type PCG struct {
	src *rand.PCG
}

// NewPCG returns a PCG seeded with (seed1, seed2).
func NewPCG(seed1, seed2 uint32) *PCG {
	return &PCG{src: rand.NewPCG(uint64(seed1), uint64(seed2))}
}

// Seed resets the generator state.
func (p *PCG) Seed(seed1, seed2 uint32) {
	p.src.Seed(uint64(seed1), uint64(seed2))
}

// Uint32 returns the next value of the sequence.
func (p *PCG) Uint32() uint32 {
	return uint32(p.src.Uint64() >> 32)
}
