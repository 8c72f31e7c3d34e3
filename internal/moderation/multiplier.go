package moderation

import (
	"math"
	"sync/atomic"
)

// Multiplier is the live coin reward factor, adjustable by /setmultiplier.
type Multiplier struct {
	bits atomic.Uint64
}

// NewMultiplier starts at factor.
func NewMultiplier(factor float64) *Multiplier {
	m := &Multiplier{}
	m.Store(factor)
	return m
}

// Load returns the current factor.
func (m *Multiplier) Load() float64 {
	return math.Float64frombits(m.bits.Load())
}

// Store replaces the factor.
func (m *Multiplier) Store(factor float64) {
	m.bits.Store(math.Float64bits(factor))
}

// Reward computes floor(base * factor).
func (m *Multiplier) Reward(base int64) int64 {
	return int64(math.Floor(float64(base) * m.Load()))
}
