package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall-api/internal/domain"
)

// testTiming fixes the clock mid-day so sub-day delays stay on today's
// side of the cutoff.
func testTiming(t *testing.T) Timing {
	t.Helper()
	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	return Compute(now, created, domain.DefaultCollectionConfig())
}

func newTestCard(id domain.CardID) domain.Card {
	return domain.Card{
		ID:         id,
		NoteID:     domain.NoteID(id),
		DeckID:     1,
		Type:       domain.CardTypeNew,
		Queue:      domain.QueueNew,
		Due:        domain.PositionDue(1),
		ModifiedAt: time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
	}
}

func reviewTestCard(id domain.CardID, ivl, factor int, dueDay int64) domain.Card {
	return domain.Card{
		ID:       id,
		NoteID:   domain.NoteID(id),
		DeckID:   1,
		Type:     domain.CardTypeReview,
		Queue:    domain.QueueReview,
		Due:      domain.DayDue(dueDay),
		Interval: ivl,
		Factor:   factor,
		Reps:     10,
	}
}

func TestAnswerValidation(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()

	t.Run("invalid grade", func(t *testing.T) {
		t.Parallel()
		_, err := Answer(Request{Card: newTestCard(1), Grade: 0, Config: cfg, Timing: timing})
		assert.ErrorIs(t, err, domain.ErrInvalidGrade)
	})

	t.Run("missing config", func(t *testing.T) {
		t.Parallel()
		_, err := Answer(Request{Card: newTestCard(1), Grade: domain.GradeGood, Timing: timing})
		assert.ErrorIs(t, err, domain.ErrEmptyConfig)
	})

	t.Run("suspended card", func(t *testing.T) {
		t.Parallel()
		c := newTestCard(1)
		c.Queue = domain.QueueSuspended
		_, err := Answer(Request{Card: c, Grade: domain.GradeGood, Config: cfg, Timing: timing})
		assert.ErrorIs(t, err, domain.ErrInvalidCardState)
	})
}

func TestAnswerNewCard(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()

	t.Run("good enters learning and advances to second step", func(t *testing.T) {
		t.Parallel()
		res, err := Answer(Request{
			Card: newTestCard(1), Grade: domain.GradeGood, Config: cfg, Timing: timing,
		})
		require.NoError(t, err)

		c := res.Card
		assert.Equal(t, domain.CardTypeLearning, c.Type)
		assert.Equal(t, domain.QueueLearningSubDay, c.Queue)
		assert.Equal(t, 1, c.StepsLeft)
		assert.Equal(t, 1, c.Reps)

		// Second step of [1, 10] is ten minutes out.
		require.Equal(t, domain.DueTimestamp, c.Due.Kind)
		assert.Equal(t, timing.Now.Unix()+600, c.Due.Value)

		assert.Equal(t, domain.ReviewKindLearn, res.Log.Kind)
		assert.Equal(t, -600, res.Log.Interval)
		assert.Equal(t, -60, res.Log.LastInterval)
	})

	t.Run("again restarts the steps", func(t *testing.T) {
		t.Parallel()
		res, err := Answer(Request{
			Card: newTestCard(2), Grade: domain.GradeAgain, Config: cfg, Timing: timing,
		})
		require.NoError(t, err)

		c := res.Card
		assert.Equal(t, domain.QueueLearningSubDay, c.Queue)
		assert.Equal(t, 2, c.StepsLeft)
		assert.Equal(t, timing.Now.Unix()+60, c.Due.Value)
	})

	t.Run("hard repeats the first step", func(t *testing.T) {
		t.Parallel()
		res, err := Answer(Request{
			Card: newTestCard(3), Grade: domain.GradeHard, Config: cfg, Timing: timing,
		})
		require.NoError(t, err)

		// First step has no predecessor, so Hard repeats its delay.
		assert.Equal(t, timing.Now.Unix()+60, res.Card.Due.Value)
		assert.Equal(t, 2, res.Card.StepsLeft)
	})

	t.Run("easy graduates immediately with the easy interval", func(t *testing.T) {
		t.Parallel()
		res, err := Answer(Request{
			Card: newTestCard(4), Grade: domain.GradeEasy, Config: cfg, Timing: timing,
		})
		require.NoError(t, err)

		c := res.Card
		assert.Equal(t, domain.CardTypeReview, c.Type)
		assert.Equal(t, domain.QueueReview, c.Queue)
		assert.Equal(t, cfg.New.EasyIvl, c.Interval)
		assert.Equal(t, domain.DayDue(timing.Today+int64(cfg.New.EasyIvl)), c.Due)
		assert.Equal(t, cfg.New.InitialFactor, c.Factor)
		assert.Equal(t, c.Interval, res.Log.Interval)
	})
}

func TestAnswerLearningGraduation(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()

	c := newTestCard(5)
	c.Type = domain.CardTypeLearning
	c.Queue = domain.QueueLearningSubDay
	c.Due = domain.TimestampDue(timing.Now.Unix() - 30)
	c.StepsLeft = 1
	c.StepsLeftToday = 1
	c.Reps = 1

	res, err := Answer(Request{Card: c, Grade: domain.GradeGood, Config: cfg, Timing: timing})
	require.NoError(t, err)

	got := res.Card
	assert.Equal(t, domain.CardTypeReview, got.Type)
	assert.Equal(t, domain.QueueReview, got.Queue)
	assert.Equal(t, cfg.New.GraduatingIvl, got.Interval)
	assert.Equal(t, domain.DayDue(timing.Today+1), got.Due)
	assert.Equal(t, domain.StartingFactor, got.Factor)
}

func TestAnswerLearningHardAveragesSteps(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()

	// On the second step of [1, 10] Hard waits the average of the two.
	c := newTestCard(6)
	c.Type = domain.CardTypeLearning
	c.Queue = domain.QueueLearningSubDay
	c.Due = domain.TimestampDue(timing.Now.Unix() - 30)
	c.StepsLeft = 1
	c.StepsLeftToday = 1
	c.Reps = 1

	res, err := Answer(Request{Card: c, Grade: domain.GradeHard, Config: cfg, Timing: timing})
	require.NoError(t, err)

	assert.Equal(t, timing.Now.Unix()+(600+60)/2, res.Card.Due.Value)
	assert.Equal(t, 1, res.Card.StepsLeft)
}

func TestAnswerReviewIntervals(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()

	tests := []struct {
		name       string
		grade      domain.Grade
		wantIvl    int
		wantFactor int
	}{
		{"hard multiplies by hard factor", domain.GradeHard, 120, 2350},
		{"good multiplies by ease", domain.GradeGood, 250, 2500},
		{"easy adds the bonus", domain.GradeEasy, 325, 2650},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			card := reviewTestCard(7, 100, 2500, timing.Today)
			res, err := Answer(Request{
				Card: card, Grade: tt.grade, Config: cfg, Timing: timing,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantIvl, res.Card.Interval)
			assert.Equal(t, tt.wantFactor, res.Card.Factor)
			assert.Equal(t, domain.DayDue(timing.Today+int64(tt.wantIvl)), res.Card.Due)
			assert.Equal(t, domain.ReviewKindReview, res.Log.Kind)
			assert.Equal(t, 100, res.Log.LastInterval)
			assert.Equal(t, tt.wantIvl, res.Log.Interval)
		})
	}
}

func TestAnswerReviewIntervalsStrictlyIncrease(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()

	// A low ease would otherwise produce Good <= Hard; the chain forces
	// each button at least one day past the previous one.
	card := reviewTestCard(8, 10, domain.MinFactor, timing.Today)

	hard, err := Answer(Request{Card: card, Grade: domain.GradeHard, Config: cfg, Timing: timing})
	require.NoError(t, err)
	good, err := Answer(Request{Card: card, Grade: domain.GradeGood, Config: cfg, Timing: timing})
	require.NoError(t, err)
	easy, err := Answer(Request{Card: card, Grade: domain.GradeEasy, Config: cfg, Timing: timing})
	require.NoError(t, err)

	assert.Greater(t, good.Card.Interval, hard.Card.Interval)
	assert.Greater(t, easy.Card.Interval, good.Card.Interval)
}

func TestAnswerReviewMaxInterval(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()
	cfg.Rev.MaxInterval = 365

	card := reviewTestCard(9, 300, 2500, timing.Today)
	res, err := Answer(Request{Card: card, Grade: domain.GradeEasy, Config: cfg, Timing: timing})
	require.NoError(t, err)

	assert.Equal(t, 365, res.Card.Interval)
}

func TestAnswerLapse(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)

	t.Run("enters relearning with multiplied interval", func(t *testing.T) {
		t.Parallel()
		cfg := domain.DefaultDeckConfig()
		cfg.Lapse.Mult = 0.7

		card := reviewTestCard(10, 100, 2300, timing.Today)
		card.Lapses = 2
		res, err := Answer(Request{Card: card, Grade: domain.GradeAgain, Config: cfg, Timing: timing})
		require.NoError(t, err)

		c := res.Card
		assert.Equal(t, domain.CardTypeRelearning, c.Type)
		assert.Equal(t, domain.QueueLearningSubDay, c.Queue)
		assert.Equal(t, 70, c.Interval)
		assert.Equal(t, 3, c.Lapses)
		assert.Equal(t, 2100, c.Factor)
		assert.Equal(t, domain.DayDue(timing.Today+70), c.OriginalDue)
		// First relearning step of [10] is ten minutes out.
		assert.Equal(t, timing.Now.Unix()+600, c.Due.Value)
		assert.False(t, res.Leech)
	})

	t.Run("lapse interval floors at the configured minimum", func(t *testing.T) {
		t.Parallel()
		cfg := domain.DefaultDeckConfig()
		cfg.Lapse.Mult = 0
		cfg.Lapse.MinInterval = 2

		card := reviewTestCard(11, 100, 2500, timing.Today)
		res, err := Answer(Request{Card: card, Grade: domain.GradeAgain, Config: cfg, Timing: timing})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Card.Interval)
	})

	t.Run("no relearning steps applies the interval directly", func(t *testing.T) {
		t.Parallel()
		cfg := domain.DefaultDeckConfig()
		cfg.Lapse.Delays = nil
		cfg.Lapse.Mult = 0.5

		card := reviewTestCard(12, 100, 2500, timing.Today)
		res, err := Answer(Request{Card: card, Grade: domain.GradeAgain, Config: cfg, Timing: timing})
		require.NoError(t, err)

		c := res.Card
		assert.Equal(t, domain.CardTypeReview, c.Type)
		assert.Equal(t, domain.QueueReview, c.Queue)
		assert.Equal(t, 50, c.Interval)
		assert.Equal(t, domain.DayDue(timing.Today+50), c.Due)
	})
}

func TestAnswerLeech(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)

	t.Run("suspends at the threshold", func(t *testing.T) {
		t.Parallel()
		cfg := domain.DefaultDeckConfig()

		card := reviewTestCard(13, 20, 2000, timing.Today)
		card.Lapses = 7
		res, err := Answer(Request{Card: card, Grade: domain.GradeAgain, Config: cfg, Timing: timing})
		require.NoError(t, err)

		assert.True(t, res.Leech)
		assert.Equal(t, domain.QueueSuspended, res.Card.Queue)
		assert.Equal(t, 8, res.Card.Lapses)
	})

	t.Run("tag-only keeps the card in relearning", func(t *testing.T) {
		t.Parallel()
		cfg := domain.DefaultDeckConfig()
		cfg.Lapse.LeechAction = domain.LeechActionTagOnly

		card := reviewTestCard(14, 20, 2000, timing.Today)
		card.Lapses = 7
		res, err := Answer(Request{Card: card, Grade: domain.GradeAgain, Config: cfg, Timing: timing})
		require.NoError(t, err)

		assert.True(t, res.Leech)
		assert.Equal(t, domain.CardTypeRelearning, res.Card.Type)
	})
}

func TestCheckLeech(t *testing.T) {
	t.Parallel()

	cfg := &domain.LapseConfig{LeechFails: 8}

	tests := []struct {
		lapses int
		want   bool
	}{
		{0, false},
		{7, false},
		{8, true},
		{9, false},
		{12, true},
		{16, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, checkLeech(tt.lapses, cfg), "lapses=%d", tt.lapses)
	}

	assert.False(t, checkLeech(100, &domain.LapseConfig{LeechFails: 0}))
}

func TestAnswerRelearningGraduationResumesSnapshot(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()

	c := newTestCard(15)
	c.Type = domain.CardTypeRelearning
	c.Queue = domain.QueueLearningSubDay
	c.Due = domain.TimestampDue(timing.Now.Unix() - 10)
	c.OriginalDue = domain.DayDue(timing.Today + 70)
	c.Interval = 70
	c.Factor = 2100
	c.StepsLeft = 1
	c.StepsLeftToday = 1
	c.Reps = 5

	res, err := Answer(Request{Card: c, Grade: domain.GradeGood, Config: cfg, Timing: timing})
	require.NoError(t, err)

	got := res.Card
	assert.Equal(t, domain.CardTypeReview, got.Type)
	assert.Equal(t, domain.DayDue(timing.Today+70), got.Due)
	assert.True(t, got.OriginalDue.IsZero())
	assert.Equal(t, 70, got.Interval)
	assert.Equal(t, domain.ReviewKindRelearn, res.Log.Kind)
}

func TestAnswerLateReviewCountsTowardGood(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()

	// Ten days late: Good credits half the lateness, Easy all of it.
	card := reviewTestCard(16, 100, 2500, timing.Today-10)
	good, err := Answer(Request{Card: card, Grade: domain.GradeGood, Config: cfg, Timing: timing})
	require.NoError(t, err)
	assert.Equal(t, 262, good.Card.Interval) // (100 + 10/2) * 2.5

	easy, err := Answer(Request{Card: card, Grade: domain.GradeEasy, Config: cfg, Timing: timing})
	require.NoError(t, err)
	assert.Equal(t, 357, easy.Card.Interval) // (100 + 10) * 2.5 * 1.3
}

func TestAnswerFiltered(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()

	t.Run("resched=false returns the card home untouched", func(t *testing.T) {
		t.Parallel()
		card := reviewTestCard(17, 30, 2500, timing.Today+5)
		card.DeckID = 99
		card.HomeDeckID = 1
		card.OriginalDue = domain.DayDue(timing.Today + 5)
		card.Due = domain.DayDue(-100000 + 1)

		res, err := Answer(Request{
			Card: card, Grade: domain.GradeAgain, Config: cfg,
			Filtered: &domain.FilteredParams{Resched: false},
			Timing:   timing,
		})
		require.NoError(t, err)

		c := res.Card
		assert.True(t, res.ExitedFiltered)
		assert.Equal(t, domain.DeckID(1), c.DeckID)
		assert.Equal(t, domain.DeckID(0), c.HomeDeckID)
		assert.Equal(t, domain.DayDue(timing.Today+5), c.Due)
		assert.Equal(t, 30, c.Interval)
		assert.Equal(t, 0, c.Lapses)
		assert.Equal(t, domain.ReviewKindFiltered, res.Log.Kind)
	})

	t.Run("resched=true grades normally and exits on graduation", func(t *testing.T) {
		t.Parallel()
		card := reviewTestCard(18, 100, 2500, timing.Today+20)
		card.DeckID = 99
		card.HomeDeckID = 1
		card.OriginalDue = domain.DayDue(timing.Today + 20)
		card.Due = domain.DayDue(-100000 + 1)

		res, err := Answer(Request{
			Card: card, Grade: domain.GradeGood, Config: cfg,
			Filtered: &domain.FilteredParams{Resched: true},
			Timing:   timing,
		})
		require.NoError(t, err)

		c := res.Card
		assert.True(t, res.ExitedFiltered)
		assert.Equal(t, domain.DeckID(1), c.DeckID)
		assert.True(t, c.OriginalDue.IsZero())
		// Early review: no lateness credit, plain ease multiply.
		assert.Equal(t, 250, c.Interval)
		assert.Equal(t, domain.ReviewKindFiltered, res.Log.Kind)
	})

	t.Run("filtered delays override learning steps", func(t *testing.T) {
		t.Parallel()
		res, err := Answer(Request{
			Card: newTestCard(19), Grade: domain.GradeAgain, Config: cfg,
			Filtered: &domain.FilteredParams{Resched: true, Delays: []float64{5}},
			Timing:   timing,
		})
		require.NoError(t, err)
		assert.Equal(t, timing.Now.Unix()+300, res.Card.Due.Value)
	})
}

func TestAnswerLearningRoundTripStaysSubDay(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()

	// With jitter enabled the re-queue delay still lands within
	// [delay, delay*1.25] capped at five extra minutes.
	c := newTestCard(20)
	res, err := Answer(Request{
		Card: c, Grade: domain.GradeAgain, Config: cfg, Timing: timing,
		Rand: Source(c.ID, c.Reps),
	})
	require.NoError(t, err)

	delay := res.Card.Due.Value - timing.Now.Unix()
	assert.GreaterOrEqual(t, delay, int64(60))
	assert.Less(t, delay, int64(75))
	assert.Equal(t, domain.QueueLearningSubDay, res.Card.Queue)
}

func TestAnswerCustomLearningSteps(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()
	cfg.New.Delays = []float64{0.5, 3, 10}

	c := newTestCard(22)
	res, err := Answer(Request{
		Card: c, Grade: domain.GradeAgain, Config: cfg, Timing: timing,
		Rand: Source(c.ID, c.Reps),
	})
	require.NoError(t, err)

	// Again lands on the half-minute first step; jitter adds at most a
	// quarter of the delay on top.
	assert.Equal(t, 3, res.Card.StepsLeft)
	assert.Equal(t, domain.QueueLearningSubDay, res.Card.Queue)
	delay := res.Card.Due.Value - timing.Now.Unix()
	assert.GreaterOrEqual(t, delay, int64(25))
	assert.LessOrEqual(t, delay, int64(40))

	// Good walks the remaining steps: three minutes, then ten.
	res, err = Answer(Request{Card: res.Card, Grade: domain.GradeGood, Config: cfg, Timing: timing})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Card.StepsLeft)
	assert.Equal(t, timing.Now.Unix()+180, res.Card.Due.Value)

	res, err = Answer(Request{Card: res.Card, Grade: domain.GradeGood, Config: cfg, Timing: timing})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Card.StepsLeft)
	assert.Equal(t, timing.Now.Unix()+600, res.Card.Due.Value)

	// The final Good graduates with the configured one day interval.
	res, err = Answer(Request{Card: res.Card, Grade: domain.GradeGood, Config: cfg, Timing: timing})
	require.NoError(t, err)
	graduated := res.Card
	assert.Equal(t, domain.CardTypeReview, graduated.Type)
	assert.Equal(t, domain.QueueReview, graduated.Queue)
	assert.Equal(t, 1, graduated.Interval)
	assert.Equal(t, domain.DayDue(timing.Today+1), graduated.Due)
	assert.Equal(t, domain.StartingFactor, graduated.Factor)
}

func TestAnswerNearCutoffMovesToDayLearning(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	// Five minutes before the 04:00 rollover, a ten minute step lands
	// on the next day.
	now := time.Date(2026, 1, 11, 3, 55, 0, 0, time.UTC)
	timing := Compute(now, created, domain.DefaultCollectionConfig())
	cfg := domain.DefaultDeckConfig()

	c := newTestCard(21)
	c.Type = domain.CardTypeLearning
	c.Queue = domain.QueueLearningSubDay
	c.Due = domain.TimestampDue(now.Unix() - 10)
	c.StepsLeft = 2
	c.StepsLeftToday = 1
	c.Reps = 1

	res, err := Answer(Request{Card: c, Grade: domain.GradeGood, Config: cfg, Timing: timing})
	require.NoError(t, err)

	assert.Equal(t, domain.QueueLearningDay, res.Card.Queue)
	assert.Equal(t, domain.DayDue(timing.Today+1), res.Card.Due)
}
