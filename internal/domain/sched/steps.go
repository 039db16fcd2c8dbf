package sched

// Learning-step arithmetic. A card mid-steps tracks two explicit
// counters: StepsLeft (steps remaining in total) and StepsLeftToday
// (how many of those can still be completed before the day cutoff).

// defaultStepMinutes is used when a config carries no steps at all.
// A missing delays list is the one auto-recovered config defect.
const defaultStepMinutes = 1.0

// normalizeDelays degrades an empty step list to a single default step.
func normalizeDelays(delays []float64) []float64 {
	if len(delays) == 0 {
		return []float64{defaultStepMinutes}
	}
	return delays
}

// delayForSteps returns the delay in seconds of the step the card is
// on, given how many steps remain. A stale counter that points past
// the list falls back to the first step.
func delayForSteps(delays []float64, stepsLeft int) int64 {
	delays = normalizeDelays(delays)
	idx := len(delays) - stepsLeft
	if idx < 0 || idx >= len(delays) {
		idx = 0
	}
	return int64(delays[idx] * 60.0)
}

// repeatDelay is the Hard delay: the average of the previous and the
// current step. On the first step the two coincide, so Hard simply
// repeats it.
func repeatDelay(delays []float64, stepsLeft int) int64 {
	delays = normalizeDelays(delays)
	cur := delayForSteps(delays, stepsLeft)
	prev := delayForSteps(delays, stepsLeft+1)
	if stepsLeft >= len(delays) {
		prev = cur
	}
	return (cur + prev) / 2
}

// startingSteps returns the step counters for a card entering (or
// re-entering) the step list from the top.
func startingSteps(delays []float64, t Timing) (total, today int) {
	delays = normalizeDelays(delays)
	total = len(delays)
	today = stepsLeftToday(delays, total, t)
	return total, today
}

// stepsLeftToday counts how many of the remaining steps can be
// completed before the day cutoff.
func stepsLeftToday(delays []float64, stepsLeft int, t Timing) int {
	delays = normalizeDelays(delays)
	now := t.Now.Unix()
	ok := 0
	offset := stepsLeft
	if offset > len(delays) {
		offset = len(delays)
	}
	for i := 0; i < offset; i++ {
		now += int64(delays[len(delays)-offset+i] * 60.0)
		if now > t.DayCutoff {
			break
		}
		ok = i
	}
	return ok + 1
}
