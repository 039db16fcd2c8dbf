package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall-api/internal/domain"
)

func TestExtendLimits(t *testing.T) {
	t.Parallel()
	svc, ms, _ := newTestService(t)
	ctx := context.Background()

	cfg := domain.DefaultDeckConfig()
	cfg.ID = 2
	cfg.Name = "Strict"
	cfg.New.PerDay = 1
	require.NoError(t, ms.Decks().SaveConfig(ctx, cfg))

	addDeck(t, ms, domain.Deck{ID: 2, Name: "Languages", ConfigID: 2})
	addDeck(t, ms, domain.Deck{ID: 3, Name: "Languages::Spanish", ConfigID: 1})
	for i := int64(1); i <= 5; i++ {
		addNewCard(t, ms, domain.CardID(100+i), 3, i)
	}

	require.NoError(t, svc.SelectDeck(ctx, 2))
	counts, err := svc.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts.New)

	// Extending the parent raises the whole subtree's budget.
	require.NoError(t, svc.ExtendLimits(ctx, 2, 2, 0))
	require.NoError(t, svc.SelectDeck(ctx, 2))
	counts, err = svc.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.New)
}

func TestExtendLimitsNegative(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	err := svc.ExtendLimits(context.Background(), 1, -1, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeckTree(t *testing.T) {
	t.Parallel()
	svc, ms, _ := newTestService(t)
	ctx := context.Background()

	cfg := domain.DefaultDeckConfig()
	cfg.ID = 2
	cfg.Name = "Strict"
	cfg.New.PerDay = 1
	require.NoError(t, ms.Decks().SaveConfig(ctx, cfg))

	addDeck(t, ms, domain.Deck{ID: 2, Name: "Languages", ConfigID: 2})
	addDeck(t, ms, domain.Deck{ID: 3, Name: "Languages::Spanish", ConfigID: 1})
	for i := int64(1); i <= 5; i++ {
		addNewCard(t, ms, domain.CardID(100+i), 3, i)
	}
	addReviewCard(t, ms, 200, 3, 10, 9)

	tree, err := svc.DeckTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 2) // Default, Languages

	var languages *domain.DeckDueTreeNode
	for _, n := range tree {
		if n.FullName == "Languages" {
			languages = n
		}
	}
	require.NotNil(t, languages)
	require.Len(t, languages.Children, 1)

	// The parent's tighter new limit caps the child too: its five new
	// cards are unreachable beyond the shared budget of one.
	spanish := languages.Children[0]
	assert.Equal(t, "Spanish", spanish.Name)
	assert.Equal(t, "Languages::Spanish", spanish.FullName)
	assert.Equal(t, 1, spanish.Counts.New)
	assert.Equal(t, 1, spanish.Counts.Review)

	assert.Equal(t, 1, languages.Counts.New)
	assert.Equal(t, 1, languages.Counts.Review)
}

func TestDeckTreeChildNeverExceedsAncestorLimit(t *testing.T) {
	t.Parallel()
	svc, ms, _ := newTestService(t)
	ctx := context.Background()

	parentCfg := domain.DefaultDeckConfig()
	parentCfg.ID = 2
	parentCfg.Name = "Tight"
	parentCfg.New.PerDay = 2
	require.NoError(t, ms.Decks().SaveConfig(ctx, parentCfg))

	childCfg := domain.DefaultDeckConfig()
	childCfg.ID = 3
	childCfg.Name = "Wide"
	childCfg.New.PerDay = 100
	require.NoError(t, ms.Decks().SaveConfig(ctx, childCfg))

	addDeck(t, ms, domain.Deck{ID: 2, Name: "Parent", ConfigID: 2})
	addDeck(t, ms, domain.Deck{ID: 3, Name: "Parent::Child", ConfigID: 3})
	for i := int64(1); i <= 50; i++ {
		addNewCard(t, ms, domain.CardID(300+i), 3, i)
	}

	tree, err := svc.DeckTree(ctx)
	require.NoError(t, err)

	var parent *domain.DeckDueTreeNode
	for _, n := range tree {
		if n.FullName == "Parent" {
			parent = n
		}
	}
	require.NotNil(t, parent)
	require.Len(t, parent.Children, 1)

	assert.Equal(t, 2, parent.Counts.New)
	assert.Equal(t, 2, parent.Children[0].Counts.New)
	assert.LessOrEqual(t, parent.Children[0].Counts.New, parent.Counts.New)
}

func TestDeckTreeImplicitParent(t *testing.T) {
	t.Parallel()
	svc, ms, _ := newTestService(t)
	ctx := context.Background()

	// No "Archive" deck exists, only its child.
	addDeck(t, ms, domain.Deck{ID: 2, Name: "Archive::Old", ConfigID: 1})
	addNewCard(t, ms, 1, 2, 1)

	tree, err := svc.DeckTree(ctx)
	require.NoError(t, err)

	var archive *domain.DeckDueTreeNode
	for _, n := range tree {
		if n.FullName == "Archive" {
			archive = n
		}
	}
	require.NotNil(t, archive)
	assert.Equal(t, domain.DeckID(0), archive.DeckID)
	assert.Equal(t, 1, archive.Counts.New)
	require.Len(t, archive.Children, 1)
	assert.Equal(t, domain.DeckID(2), archive.Children[0].DeckID)
}

func TestFinished(t *testing.T) {
	t.Parallel()
	svc, ms, _ := newTestService(t)
	ctx := context.Background()

	t.Run("empty deck is finished", func(t *testing.T) {
		report, err := svc.Finished(ctx)
		require.NoError(t, err)
		assert.True(t, report.Finished)
		assert.False(t, report.HaveBuried)
		assert.Zero(t, report.NextLearnDue)
	})

	t.Run("waiting learning card sets the next due second", func(t *testing.T) {
		dueSec := testNow.Unix() + 1800
		addCard(t, ms, domain.Card{
			ID: 1, NoteID: 1, DeckID: 1,
			Type: domain.CardTypeLearning, Queue: domain.QueueLearningSubDay,
			Due: domain.TimestampDue(dueSec), StepsLeft: 1, StepsLeftToday: 1,
		})
		svc.Reset()

		report, err := svc.Finished(ctx)
		require.NoError(t, err)
		assert.True(t, report.Finished)
		assert.Equal(t, dueSec, report.NextLearnDue)
	})

	t.Run("buried cards are reported", func(t *testing.T) {
		addNewCard(t, ms, 2, 1, 1)
		require.NoError(t, svc.BuryCards(ctx, []domain.CardID{2}, true))

		report, err := svc.Finished(ctx)
		require.NoError(t, err)
		assert.True(t, report.HaveBuried)
	})
}
