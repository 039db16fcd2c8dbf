package sched

import (
	"math/rand"

	"github.com/recallkit/recall-api/internal/domain"
)

// Fuzzing perturbs computed review intervals by a small interval-scaled
// offset so that cards introduced together do not stay due on the same
// day forever. The source is deterministic per (card, rep) so tests can
// assert exact values.

// Source returns the per-card random source used for interval fuzz and
// learning re-queue jitter.
func Source(id domain.CardID, reps int) *rand.Rand {
	seed := int64(id) ^ int64(reps)<<17
	return rand.New(rand.NewSource(seed))
}

// FuzzRange brackets the fuzzed interval for an ideal interval in days.
// Below two days there is nothing to spread; beyond that the bracket
// widens with the interval: ±25% under a week, ±15% under a month,
// ±5% above, always at least one day.
func FuzzRange(ivl int) (int, int) {
	var fuzz int
	switch {
	case ivl < 2:
		return 1, 1
	case ivl == 2:
		return 2, 3
	case ivl < 7:
		fuzz = int(float64(ivl) * 0.25)
	case ivl < 30:
		fuzz = max(2, int(float64(ivl)*0.15))
	default:
		fuzz = max(4, int(float64(ivl)*0.05))
	}
	fuzz = max(fuzz, 1)
	return ivl - fuzz, ivl + fuzz
}

// fuzzedInterval draws an interval from the fuzz bracket. A nil rng
// (preview paths) returns the ideal interval untouched.
func fuzzedInterval(ivl int, rng *rand.Rand) int {
	if rng == nil {
		return ivl
	}
	lo, hi := FuzzRange(ivl)
	return lo + rng.Intn(hi-lo+1)
}

// learnJitter returns the extra seconds added to a sub-day learning
// delay: up to 25% of the delay, capped at five minutes. Keeps cards
// answered together from clumping on the exact same second.
func learnJitter(delaySec int64, rng *rand.Rand) int64 {
	if rng == nil {
		return 0
	}
	maxExtra := min(int64(300), delaySec/4)
	if maxExtra <= 0 {
		return 0
	}
	return rng.Int63n(maxExtra)
}
