package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/store"
)

func TestAnswerCardPersistsReview(t *testing.T) {
	t.Parallel()
	svc, ms, _ := newTestService(t)
	ctx := context.Background()

	addReviewCard(t, ms, 1, 1, 100, 9)

	out, err := svc.AnswerCard(ctx, 1, domain.GradeGood, 4200)
	require.NoError(t, err)

	assert.Equal(t, domain.QueueReview, out.Card.Queue)
	assert.Greater(t, out.Card.Interval, 100)

	stored := getCard(t, ms, 1)
	assert.Equal(t, out.Card.Interval, stored.Interval)
	assert.Equal(t, 6, stored.Reps)

	logs, err := ms.Revlog().ListForCard(ctx, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.GradeGood, logs[0].Grade)
	assert.Equal(t, 100, logs[0].LastInterval)
	assert.Equal(t, 4200, logs[0].TimeTakenMs)
	assert.Equal(t, domain.ReviewKindReview, logs[0].Kind)

	deck, err := ms.Decks().Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), deck.RevToday.Day)
	assert.Equal(t, 1, deck.RevToday.Count)
}

func TestAnswerCardUnknown(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	_, err := svc.AnswerCard(context.Background(), 999, domain.GradeGood, 0)
	assert.ErrorIs(t, err, store.ErrCardNotFound)
}

func TestAnswerCardBuriesSiblings(t *testing.T) {
	t.Parallel()
	svc, ms, _ := newTestService(t)
	ctx := context.Background()

	// Two cards of the same note; answering one hides the other.
	addCard(t, ms, domain.Card{
		ID: 1, NoteID: 7, DeckID: 1,
		Type: domain.CardTypeNew, Queue: domain.QueueNew,
		Due: domain.PositionDue(1),
	})
	addCard(t, ms, domain.Card{
		ID: 2, NoteID: 7, DeckID: 1,
		Type: domain.CardTypeNew, Queue: domain.QueueNew,
		Due: domain.PositionDue(2),
	})

	require.NoError(t, svc.SelectDeck(ctx, 1))
	out, err := svc.AnswerCard(ctx, 1, domain.GradeGood, 0)
	require.NoError(t, err)

	sibling := getCard(t, ms, 2)
	assert.Equal(t, domain.QueueBuriedSibling, sibling.Queue)
	assert.Equal(t, 0, out.Counts.New)
}

func TestAnswerCardLeechSuspends(t *testing.T) {
	t.Parallel()
	svc, ms, _ := newTestService(t)
	ctx := context.Background()

	addCard(t, ms, domain.Card{
		ID: 1, NoteID: 1, DeckID: 1,
		Type: domain.CardTypeReview, Queue: domain.QueueReview,
		Due: domain.DayDue(9), Interval: 20, Factor: 2000,
		Reps: 12, Lapses: 7,
	})

	out, err := svc.AnswerCard(ctx, 1, domain.GradeAgain, 0)
	require.NoError(t, err)

	assert.True(t, out.Leech)
	assert.Equal(t, domain.QueueSuspended, out.Card.Queue)
	assert.Equal(t, 8, out.Card.Lapses)
}

func TestAnswerCardExitsFilteredDeck(t *testing.T) {
	t.Parallel()
	svc, ms, _ := newTestService(t)
	ctx := context.Background()

	addDeck(t, ms, domain.Deck{
		ID: 5, Name: "Cram", ConfigID: 1,
		Filtered: true,
		FilteredParams: &domain.FilteredParams{
			Terms:   []domain.FilterTerm{{Search: "is:due", Limit: 10, Order: domain.FilteredOrderDue}},
			Resched: true,
		},
	})
	addCard(t, ms, domain.Card{
		ID: 1, NoteID: 1, DeckID: 5, HomeDeckID: 1,
		Type: domain.CardTypeReview, Queue: domain.QueueReview,
		Due: domain.DayDue(-99999), OriginalDue: domain.DayDue(9),
		Interval: 100, Factor: 2500, Reps: 5,
	})

	out, err := svc.AnswerCard(ctx, 1, domain.GradeGood, 0)
	require.NoError(t, err)

	assert.Equal(t, domain.DeckID(1), out.Card.DeckID)
	assert.Equal(t, domain.DeckID(0), out.Card.HomeDeckID)
	assert.True(t, out.Card.OriginalDue.IsZero())

	logs, err := ms.Revlog().ListForCard(ctx, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ReviewKindFiltered, logs[0].Kind)
}

func TestNextIntervals(t *testing.T) {
	t.Parallel()
	svc, ms, _ := newTestService(t)
	ctx := context.Background()

	addReviewCard(t, ms, 1, 1, 100, 9)

	ivls, err := svc.NextIntervals(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(600), ivls[domain.GradeAgain])
	assert.Equal(t, int64(120*86400), ivls[domain.GradeHard])
	assert.Equal(t, int64(250*86400), ivls[domain.GradeGood])
	assert.Equal(t, int64(325*86400), ivls[domain.GradeEasy])

	// Previews never consume anything.
	stored := getCard(t, ms, 1)
	assert.Equal(t, 100, stored.Interval)
	assert.Equal(t, 5, stored.Reps)
}
