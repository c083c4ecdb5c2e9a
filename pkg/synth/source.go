package synth

import "math/rand/v2"

// Source supplies uniform random numbers in [0,1). Only the noise bed and
// the reverb impulse draw from it.
type Source interface {
	Float64() float64
}

// NewRandomSource returns a freshly seeded, non-reproducible source.
func NewRandomSource() Source {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// SeededSource is a Mulberry32 generator. Two sources with the same seed
// produce the same sequence, which makes a whole render reproducible.
type SeededSource struct {
	state uint32
}

// NewSeededSource creates a deterministic source.
func NewSeededSource(seed uint32) *SeededSource {
	return &SeededSource{state: seed}
}

// Float64 returns the next value in [0,1).
func (s *SeededSource) Float64() float64 {
	s.state += 0x6D2B79F5
	t := s.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296.0
}
