package sched

import (
	"fmt"

	"github.com/recallkit/recall-api/internal/domain"
)

// NextIvl previews the interval, in seconds, that grading the card
// with the given grade would apply. It runs the same arithmetic as
// Answer with fuzz disabled and no side effects, so calling it any
// number of times returns identical results, and the unfuzzed value
// matches what Answer applies.
func NextIvl(
	card domain.Card,
	grade domain.Grade,
	cfg *domain.DeckConfig,
	filtered *domain.FilteredParams,
	timing Timing,
) (int64, error) {
	if !grade.Valid() {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidGrade, int(grade))
	}
	if cfg == nil {
		return 0, fmt.Errorf("%w: deck config required", domain.ErrEmptyConfig)
	}
	if card.Queue.Held() {
		return 0, fmt.Errorf("%w: cannot preview a %s card", domain.ErrInvalidCardState, card.Queue)
	}

	// Grading under resched=false only sends the card home.
	if filtered != nil && !filtered.Resched {
		return 0, nil
	}

	in := Request{Card: card, Grade: grade, Config: cfg, Filtered: filtered, Timing: timing}

	switch card.Queue {
	case domain.QueueNew, domain.QueueLearningSubDay, domain.QueueLearningDay:
		return nextLearnIvl(&in, card), nil
	case domain.QueueReview:
		if grade == domain.GradeAgain {
			delays := cfg.Lapse.Delays
			if filtered != nil && len(filtered.Delays) > 0 {
				delays = filtered.Delays
			}
			if len(delays) > 0 {
				return int64(delays[0] * 60.0), nil
			}
			return int64(lapseInterval(cfg, card.Interval)) * 86400, nil
		}
		return int64(nextReviewInterval(&in, &card, grade, nil)) * 86400, nil
	default:
		return 0, fmt.Errorf("%w: queue=%s", domain.ErrInvalidCardState, card.Queue)
	}
}

// nextLearnIvl previews a learning-phase grade. Mirrors answerLearn.
func nextLearnIvl(in *Request, c domain.Card) int64 {
	if c.Queue == domain.QueueNew {
		c.Type = domain.CardTypeLearning
		c.StepsLeft, c.StepsLeftToday = startingSteps(learnDelays(in, c.Type), in.Timing)
	}
	delays := learnDelays(in, c.Type)

	switch in.Grade {
	case domain.GradeAgain:
		return delayForSteps(delays, len(normalizeDelays(delays)))
	case domain.GradeHard:
		return repeatDelay(delays, c.StepsLeft)
	case domain.GradeEasy:
		return int64(graduatingInterval(in, &c, true, false)) * 86400
	default: // Good
		if c.StepsLeft-1 <= 0 {
			return int64(graduatingInterval(in, &c, false, false)) * 86400
		}
		return delayForSteps(delays, c.StepsLeft-1)
	}
}

// NextIvlAll previews all four grades, keyed by grade.
func NextIvlAll(
	card domain.Card,
	cfg *domain.DeckConfig,
	filtered *domain.FilteredParams,
	timing Timing,
) (map[domain.Grade]int64, error) {
	out := make(map[domain.Grade]int64, 4)
	for g := domain.GradeAgain; g <= domain.GradeEasy; g++ {
		ivl, err := NextIvl(card, g, cfg, filtered, timing)
		if err != nil {
			return nil, err
		}
		out[g] = ivl
	}
	return out, nil
}
