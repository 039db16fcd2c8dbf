package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall-api/internal/domain"
)

func TestNextIvlNewCard(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()
	card := newTestCard(1)

	all, err := NextIvlAll(card, cfg, nil, timing)
	require.NoError(t, err)

	assert.Equal(t, int64(60), all[domain.GradeAgain])
	assert.Equal(t, int64(60), all[domain.GradeHard])
	assert.Equal(t, int64(600), all[domain.GradeGood])
	assert.Equal(t, int64(4*86400), all[domain.GradeEasy])
}

func TestNextIvlReviewCard(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()
	card := reviewTestCard(2, 100, 2500, timing.Today)

	all, err := NextIvlAll(card, cfg, nil, timing)
	require.NoError(t, err)

	// Again enters the relearning steps; the rest follow the interval
	// chain in days.
	assert.Equal(t, int64(600), all[domain.GradeAgain])
	assert.Equal(t, int64(120*86400), all[domain.GradeHard])
	assert.Equal(t, int64(250*86400), all[domain.GradeGood])
	assert.Equal(t, int64(325*86400), all[domain.GradeEasy])
}

func TestNextIvlAgainWithoutRelearningSteps(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()
	cfg.Lapse.Delays = nil
	cfg.Lapse.Mult = 0.5
	card := reviewTestCard(3, 100, 2500, timing.Today)

	got, err := NextIvl(card, domain.GradeAgain, cfg, nil, timing)
	require.NoError(t, err)
	assert.Equal(t, int64(50*86400), got)
}

func TestNextIvlMatchesUnfuzzedAnswer(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()
	card := reviewTestCard(4, 100, 2500, timing.Today)

	for _, grade := range []domain.Grade{domain.GradeHard, domain.GradeGood, domain.GradeEasy} {
		preview, err := NextIvl(card, grade, cfg, nil, timing)
		require.NoError(t, err)

		res, err := Answer(Request{Card: card, Grade: grade, Config: cfg, Timing: timing})
		require.NoError(t, err)

		assert.Equal(t, int64(res.Card.Interval)*86400, preview, "grade=%s", grade)
	}
}

func TestNextIvlIdempotent(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()
	card := reviewTestCard(5, 37, 2100, timing.Today)

	first, err := NextIvlAll(card, cfg, nil, timing)
	require.NoError(t, err)
	second, err := NextIvlAll(card, cfg, nil, timing)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNextIvlFiltered(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()

	t.Run("resched=false previews no change", func(t *testing.T) {
		t.Parallel()
		card := reviewTestCard(6, 30, 2500, timing.Today)
		card.DeckID = 99
		card.HomeDeckID = 1
		card.OriginalDue = domain.DayDue(timing.Today + 5)

		got, err := NextIvl(card, domain.GradeGood, cfg, &domain.FilteredParams{Resched: false}, timing)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got)
	})

	t.Run("filtered delays override the steps", func(t *testing.T) {
		t.Parallel()
		got, err := NextIvl(newTestCard(7), domain.GradeAgain, cfg,
			&domain.FilteredParams{Resched: true, Delays: []float64{5}}, timing)
		require.NoError(t, err)
		assert.Equal(t, int64(300), got)
	})
}

func TestNextIvlErrors(t *testing.T) {
	t.Parallel()

	timing := testTiming(t)
	cfg := domain.DefaultDeckConfig()

	t.Run("invalid grade", func(t *testing.T) {
		t.Parallel()
		_, err := NextIvl(newTestCard(8), 0, cfg, nil, timing)
		assert.ErrorIs(t, err, domain.ErrInvalidGrade)
	})

	t.Run("missing config", func(t *testing.T) {
		t.Parallel()
		_, err := NextIvl(newTestCard(9), domain.GradeGood, nil, nil, timing)
		assert.ErrorIs(t, err, domain.ErrEmptyConfig)
	})

	t.Run("held card", func(t *testing.T) {
		t.Parallel()
		card := newTestCard(10)
		card.Queue = domain.QueueSuspended
		_, err := NextIvl(card, domain.GradeGood, cfg, nil, timing)
		assert.ErrorIs(t, err, domain.ErrInvalidCardState)
	})
}
