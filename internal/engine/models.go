package engine

import (
	"crypto/rand"
	"encoding/binary"
	"math"
)

const (
	MIN_MULTIPLIER = 1.00
	GROWTH_RATE    = 0.5
	GROWTH_ACCEL   = 0.1
	CRASH_COEFF    = 0.01
)

// Source is the single non-deterministic primitive in the engine.
// Implementations return a uniform draw in [0, 1).
type Source interface {
	Float64() (float64, error)
}

type cryptoSource struct{}

// NewSource returns a crypto/rand backed randomness source.
func NewSource() Source {
	return cryptoSource{}
}

func (cryptoSource) Float64() (float64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	const maxUint64 = 18446744073709551616.0
	return float64(binary.BigEndian.Uint64(b[:])) / maxUint64, nil
}

// MultiplierAt computes the flight multiplier for an elapsed time in
// seconds: m = 1 + 0.5t + 0.1t^1.5, rounded to 2 decimal places. The
// rounded value is the value of record for display and settlement.
func MultiplierAt(elapsed float64) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	m := MIN_MULTIPLIER + GROWTH_RATE*elapsed + GROWTH_ACCEL*math.Pow(elapsed, 1.5)
	return Round2(m)
}

// CrashProbability is the per-step termination probability for the
// current multiplier: p = 0.01 * (m - 1)^2. Risk accelerates with
// flight duration.
func CrashProbability(multiplier float64) float64 {
	d := multiplier - MIN_MULTIPLIER
	if d < 0 {
		d = 0
	}
	return CRASH_COEFF * d * d
}

// DrawCrash returns true with probability p.
func DrawCrash(p float64, src Source) (bool, error) {
	u, err := src.Float64()
	if err != nil {
		return false, err
	}
	return u < p, nil
}

// SelectWeightedOutcome picks uniformly from a fixed outcome set.
func SelectWeightedOutcome(outcomes []int64, src Source) (int64, error) {
	if len(outcomes) == 0 {
		return 0, ErrRandomness
	}
	u, err := src.Float64()
	if err != nil {
		return 0, err
	}
	idx := int(u * float64(len(outcomes)))
	if idx >= len(outcomes) {
		idx = len(outcomes) - 1
	}
	return outcomes[idx], nil
}

// Round2 rounds to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
