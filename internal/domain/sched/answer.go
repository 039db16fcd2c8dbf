package sched

import (
	"fmt"
	"math/rand"

	"github.com/recallkit/recall-api/internal/domain"
)

// Request carries everything the state machine needs to grade a card.
type Request struct {
	Card  domain.Card
	Grade domain.Grade

	// Config is the effective deck configuration: for a filtered card
	// the caller resolves new/lapse/rev from the home deck first.
	Config *domain.DeckConfig

	// Filtered is the filtered deck's rebuild parameters when the
	// card currently lives in one, nil otherwise.
	Filtered *domain.FilteredParams

	Timing      Timing
	TimeTakenMs int

	// Rand is the per-card deterministic source (see Source). Nil
	// disables fuzz and jitter, which is what preview comparisons
	// rely on.
	Rand *rand.Rand
}

// Result is the outcome of grading a card.
type Result struct {
	Card domain.Card
	Log  domain.ReviewLog

	// Leech is set when this answer crossed the leech threshold.
	Leech bool

	// ExitedFiltered is set when the answer moved the card back to
	// its home deck.
	ExitedFiltered bool
}

// Answer grades a card. The input card is untouched; the updated state
// comes back in the result together with the revlog record to append.
func Answer(in Request) (Result, error) {
	c := in.Card
	if !in.Grade.Valid() {
		return Result{}, fmt.Errorf("%w: %d", domain.ErrInvalidGrade, int(in.Grade))
	}
	if in.Config == nil {
		return Result{}, fmt.Errorf("%w: deck config required", domain.ErrEmptyConfig)
	}
	if err := c.Validate(); err != nil {
		return Result{}, err
	}
	if c.Queue.Held() {
		return Result{}, fmt.Errorf("%w: cannot answer a %s card", domain.ErrInvalidCardState, c.Queue)
	}

	// A filtered deck without rescheduling never touches the real
	// schedule: any grade sends the card home with its snapshot.
	if in.Filtered != nil && !in.Filtered.Resched {
		return answerNoResched(in, c)
	}

	res := Result{}
	c.Reps++

	if c.Queue == domain.QueueNew {
		// Entering the learning steps.
		c.Queue = domain.QueueLearningSubDay
		c.Type = domain.CardTypeLearning
		c.StepsLeft, c.StepsLeftToday = startingSteps(learnDelays(&in, c.Type), in.Timing)
	}

	var err error
	switch c.Queue {
	case domain.QueueLearningSubDay, domain.QueueLearningDay:
		err = answerLearn(&in, &c, &res)
	case domain.QueueReview:
		err = answerReview(&in, &c, &res)
	default:
		err = fmt.Errorf("%w: queue=%s", domain.ErrInvalidCardState, c.Queue)
	}
	if err != nil {
		return Result{}, err
	}

	c.ModifiedAt = in.Timing.Now.UTC()
	res.Card = c
	res.Log.ID = in.Timing.Now.UnixMilli()
	res.Log.CardID = c.ID
	res.Log.Grade = in.Grade
	res.Log.Factor = c.Factor
	res.Log.TimeTakenMs = in.TimeTakenMs
	return res, nil
}

// answerNoResched returns a card home from a resched=false filtered
// deck without altering its real schedule.
func answerNoResched(in Request, c domain.Card) (Result, error) {
	restoreFromFiltered(&c)
	c.ModifiedAt = in.Timing.Now.UTC()
	return Result{
		Card: c,
		Log: domain.ReviewLog{
			ID:           in.Timing.Now.UnixMilli(),
			CardID:       c.ID,
			Grade:        in.Grade,
			Interval:     c.Interval,
			LastInterval: c.Interval,
			Factor:       c.Factor,
			TimeTakenMs:  in.TimeTakenMs,
			Kind:         domain.ReviewKindFiltered,
		},
		ExitedFiltered: true,
	}, nil
}

// learnDelays picks the step list for the card's phase. A filtered
// deck may override the steps for cards it gathered.
func learnDelays(in *Request, t domain.CardType) []float64 {
	if in.Filtered != nil && len(in.Filtered.Delays) > 0 {
		return in.Filtered.Delays
	}
	if t == domain.CardTypeRelearning {
		return in.Config.Lapse.Delays
	}
	return in.Config.New.Delays
}

// answerLearn grades a card inside the learning or relearning steps.
func answerLearn(in *Request, c *domain.Card, res *Result) error {
	delays := learnDelays(in, c.Type)
	lastLeft := c.StepsLeft
	relearn := c.Type == domain.CardTypeRelearning
	leaving := false

	switch in.Grade {
	case domain.GradeEasy:
		graduate(in, c, res, true)
		leaving = true
	case domain.GradeGood:
		if c.StepsLeft-1 <= 0 {
			graduate(in, c, res, false)
			leaving = true
		} else {
			moveToNextStep(in, c, delays)
		}
	case domain.GradeHard:
		repeatStep(in, c, delays)
	case domain.GradeAgain:
		moveToFirstStep(in, c, delays)
	}

	res.Log.Kind = domain.ReviewKindLearn
	if relearn {
		res.Log.Kind = domain.ReviewKindRelearn
	}
	if in.Filtered != nil {
		res.Log.Kind = domain.ReviewKindFiltered
	}
	res.Log.LastInterval = -int(delayForSteps(delays, lastLeft))
	if leaving {
		res.Log.Interval = c.Interval
	} else {
		res.Log.Interval = -int(delayForSteps(delays, c.StepsLeft))
	}
	return nil
}

// moveToFirstStep resets the card to the top of the step list. A
// relearning card also has its lapsed interval recomputed, with the
// target day snapshotted so graduation resumes at the right date.
func moveToFirstStep(in *Request, c *domain.Card, delays []float64) {
	c.StepsLeft, c.StepsLeftToday = startingSteps(delays, in.Timing)
	if c.Type == domain.CardTypeRelearning {
		c.Interval = lapseInterval(in.Config, c.Interval)
		c.OriginalDue = domain.DayDue(in.Timing.Today + int64(c.Interval))
	}
	rescheduleLearnCard(in, c, delays, 0)
}

// moveToNextStep advances one step and recomputes today's remainder.
func moveToNextStep(in *Request, c *domain.Card, delays []float64) {
	c.StepsLeft--
	c.StepsLeftToday = stepsLeftToday(delays, c.StepsLeft, in.Timing)
	rescheduleLearnCard(in, c, delays, 0)
}

// repeatStep holds the card on its current step with the Hard delay.
func repeatStep(in *Request, c *domain.Card, delays []float64) {
	rescheduleLearnCard(in, c, delays, repeatDelay(delays, c.StepsLeft))
}

// rescheduleLearnCard places the card back in a learning queue. Cards
// due before the cutoff go to the sub-day queue with a small jitter;
// later ones land on the day-learning queue.
func rescheduleLearnCard(in *Request, c *domain.Card, delays []float64, delayOverride int64) {
	delay := delayOverride
	if delay == 0 {
		delay = delayForSteps(delays, c.StepsLeft)
	}
	due := in.Timing.Now.Unix() + delay

	if due < in.Timing.DayCutoff {
		due += learnJitter(delay, in.Rand)
		if due > in.Timing.DayCutoff-1 {
			due = in.Timing.DayCutoff - 1
		}
		c.Due = domain.TimestampDue(due)
		c.Queue = domain.QueueLearningSubDay
		return
	}

	ahead := (due-in.Timing.DayCutoff)/86400 + 1
	c.Due = domain.DayDue(in.Timing.Today + ahead)
	c.Queue = domain.QueueLearningDay
}

// graduate moves a card out of the steps into the review queue. A
// relearning card resumes its lapsed schedule; a first graduation gets
// the configured graduating (or easy) interval and initial ease.
func graduate(in *Request, c *domain.Card, res *Result, early bool) {
	if c.Type == domain.CardTypeRelearning {
		if c.OriginalDue.Kind == domain.DueDay {
			c.Due = c.OriginalDue
		} else {
			c.Due = domain.DayDue(in.Timing.Today + int64(c.Interval))
		}
		c.OriginalDue = domain.Due{}
	} else {
		c.Interval = graduatingInterval(in, c, early, true)
		c.Due = domain.DayDue(in.Timing.Today + int64(c.Interval))
		if c.Factor == 0 {
			c.Factor = in.Config.New.InitialFactor
		}
	}
	c.Type = domain.CardTypeReview
	c.Queue = domain.QueueReview

	if c.InFiltered() {
		exitFiltered(c, res)
	}
}

// graduatingInterval returns the first review interval in days.
func graduatingInterval(in *Request, c *domain.Card, early, fuzz bool) int {
	if c.Type == domain.CardTypeReview || c.Type == domain.CardTypeRelearning {
		return c.Interval
	}
	ideal := in.Config.New.GraduatingIvl
	if early {
		ideal = in.Config.New.EasyIvl
	}
	if ideal < 1 {
		ideal = 1
	}
	if fuzz {
		ideal = fuzzedInterval(ideal, in.Rand)
	}
	return ideal
}

// answerReview grades a card in the review queue.
func answerReview(in *Request, c *domain.Card, res *Result) error {
	res.Log.Kind = domain.ReviewKindReview
	if in.Filtered != nil {
		res.Log.Kind = domain.ReviewKindFiltered
	}
	res.Log.LastInterval = c.Interval

	if in.Grade == domain.GradeAgain {
		lapse(in, c, res)
		return nil
	}

	c.Interval = nextReviewInterval(in, c, in.Grade, in.Rand)
	c.Factor = clampFactor(c.Factor + factorDelta(in.Grade))
	c.Due = domain.DayDue(in.Timing.Today + int64(c.Interval))
	if c.InFiltered() {
		exitFiltered(c, res)
	}
	res.Log.Interval = c.Interval
	return nil
}

// lapse handles Again on a review card: penalize ease, recompute the
// interval, and either enter the relearning steps or apply the new
// interval directly. Crossing the leech threshold applies the
// configured leech action on top.
func lapse(in *Request, c *domain.Card, res *Result) {
	c.Lapses++
	c.Factor = clampFactor(c.Factor - 200)
	res.Leech = checkLeech(c.Lapses, &in.Config.Lapse)
	suspend := res.Leech && in.Config.Lapse.LeechAction == domain.LeechActionSuspend

	delays := in.Config.Lapse.Delays
	if in.Filtered != nil && len(in.Filtered.Delays) > 0 {
		delays = in.Filtered.Delays
	}

	if len(delays) > 0 && !suspend {
		c.Type = domain.CardTypeRelearning
		c.Interval = lapseInterval(in.Config, c.Interval)
		c.OriginalDue = domain.DayDue(in.Timing.Today + int64(c.Interval))
		c.StepsLeft, c.StepsLeftToday = startingSteps(delays, in.Timing)
		rescheduleLearnCard(in, c, delays, 0)
		res.Log.Interval = -int(delayForSteps(delays, c.StepsLeft))
		return
	}

	// No relearning steps: the lapsed interval applies immediately.
	c.Interval = lapseInterval(in.Config, c.Interval)
	c.Due = domain.DayDue(in.Timing.Today + int64(c.Interval))
	if c.InFiltered() {
		exitFiltered(c, res)
	}
	if suspend {
		c.Queue = domain.QueueSuspended
	}
	res.Log.Interval = c.Interval
}

// lapseInterval applies the lapse multiplier with its floors.
func lapseInterval(cfg *domain.DeckConfig, ivl int) int {
	next := int(float64(ivl) * cfg.Lapse.Mult)
	if next < cfg.Lapse.MinInterval {
		next = cfg.Lapse.MinInterval
	}
	if next < 1 {
		next = 1
	}
	return next
}

// checkLeech reports whether the lapse count sits on the leech
// threshold: at the threshold, then every half threshold after it.
func checkLeech(lapses int, cfg *domain.LapseConfig) bool {
	lf := cfg.LeechFails
	if lf == 0 {
		return false
	}
	half := lf / 2
	if half < 1 {
		half = 1
	}
	return lapses >= lf && (lapses-lf)%half == 0
}

// daysLate is how many days past due the review happened. Negative
// values (reviewed early, e.g. from a filtered deck) clamp to zero.
func daysLate(in *Request, c *domain.Card) int64 {
	due := c.Due
	if c.InFiltered() && c.OriginalDue.Kind == domain.DueDay {
		due = c.OriginalDue
	}
	if due.Kind != domain.DueDay {
		return 0
	}
	late := in.Timing.Today - due.Value
	if late < 0 {
		return 0
	}
	return late
}

// nextReviewInterval computes the Hard/Good/Easy interval chain. Each
// answer's interval is strictly longer than the previous button's, and
// everything is clamped to the config's maximum.
func nextReviewInterval(in *Request, c *domain.Card, grade domain.Grade, rng *rand.Rand) int {
	late := daysLate(in, c)
	fct := float64(c.Factor) / 1000.0
	hardFactor := in.Config.Rev.HardFactor
	hardMin := 0
	if hardFactor > 1 {
		hardMin = c.Interval
	}

	ivl2 := constrainedInterval(float64(c.Interval)*hardFactor, in.Config, hardMin, rng)
	if grade == domain.GradeHard {
		return ivl2
	}

	ivl3 := constrainedInterval((float64(c.Interval)+float64(late)/2)*fct, in.Config, ivl2, rng)
	if grade == domain.GradeGood {
		return ivl3
	}

	return constrainedInterval(
		(float64(c.Interval)+float64(late))*fct*in.Config.Rev.EasyBonus,
		in.Config, ivl3, rng,
	)
}

// constrainedInterval applies the global interval multiplier, optional
// fuzz, the strictly-increasing floor against the previous button, and
// the configured maximum.
func constrainedInterval(ivl float64, cfg *domain.DeckConfig, prev int, rng *rand.Rand) int {
	factor := cfg.Rev.IntervalFactor
	if factor <= 0 {
		factor = 1
	}
	next := int(ivl * factor)
	if rng != nil && cfg.Rev.Fuzz {
		next = fuzzedInterval(next, rng)
	}
	if next < prev+1 {
		next = prev + 1
	}
	if next < 1 {
		next = 1
	}
	if cfg.Rev.MaxInterval > 0 && next > cfg.Rev.MaxInterval {
		next = cfg.Rev.MaxInterval
	}
	return next
}

// factorDelta is the permille ease adjustment per grade.
func factorDelta(grade domain.Grade) int {
	switch grade {
	case domain.GradeHard:
		return -150
	case domain.GradeEasy:
		return 150
	default:
		return 0
	}
}

func clampFactor(f int) int {
	if f < domain.MinFactor {
		return domain.MinFactor
	}
	return f
}

// exitFiltered moves a graded card back to its home deck, keeping the
// freshly computed schedule.
func exitFiltered(c *domain.Card, res *Result) {
	c.DeckID = c.HomeDeckID
	c.HomeDeckID = 0
	c.OriginalDue = domain.Due{}
	res.ExitedFiltered = true
}

// restoreFromFiltered returns a card home with its snapshot intact,
// used when emptying a filtered deck or grading under resched=false.
func restoreFromFiltered(c *domain.Card) {
	if !c.InFiltered() {
		return
	}
	c.DeckID = c.HomeDeckID
	c.HomeDeckID = 0
	if !c.OriginalDue.IsZero() {
		c.Due = c.OriginalDue
		c.OriginalDue = domain.Due{}
	}
	if !c.Queue.Held() {
		c.Queue = domain.RestoredQueue(c.Type, c.Due)
	}
}

// RestoreFromFiltered is the exported restore used by the filtered
// deck manager and the suspend path.
func RestoreFromFiltered(c *domain.Card) {
	restoreFromFiltered(c)
}
