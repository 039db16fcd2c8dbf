package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall-api/internal/api/shared"
	"github.com/recallkit/recall-api/internal/domain"
)

func (env *testEnv) addCramDeck(t *testing.T, id domain.DeckID, name string) {
	t.Helper()
	deck := domain.Deck{
		ID:       id,
		Name:     name,
		ConfigID: 1,
		Filtered: true,
		FilteredParams: &domain.FilteredParams{
			Terms: []domain.FilterTerm{
				{Search: "is:due", Limit: 100, Order: domain.FilteredOrderDue},
			},
			Resched: true,
		},
		ModifiedAt: testNow,
	}
	require.NoError(t, env.store.Decks().Create(context.Background(), &deck))
}

func TestDeckTree(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addNewCard(t, 1, 1, 1)

	w := env.do(t, http.MethodGet, "/api/decks/tree", "")
	require.Equal(t, http.StatusOK, w.Code)

	var tree []*domain.DeckDueTreeNode
	require.NoError(t, json.NewDecoder(w.Body).Decode(&tree))
	require.Len(t, tree, 1)
	assert.Equal(t, "Default", tree[0].Name)
	assert.Equal(t, domain.DeckID(1), tree[0].DeckID)
	assert.Equal(t, domain.Counts{New: 1}, tree[0].Counts)
}

func TestExtendLimits(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/decks/1/extend-limits",
		`{"new":2,"review":1}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	deck, err := env.store.Decks().Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, -2, deck.NewToday.UsedOn(9))
	assert.Equal(t, -1, deck.RevToday.UsedOn(9))
}

func TestExtendLimitsValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/decks/1/extend-limits", `{"new":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/decks/abc/extend-limits", `{"new":1}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp shared.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Invalid Deck ID", resp.Error)
}

func TestRebuildFilteredDeck(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addCramDeck(t, 5, "Cram")
	env.addReviewCard(t, 2, 1, 10, 9)

	w := env.do(t, http.MethodPost, "/api/decks/5/rebuild", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp RebuildResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Gathered)

	card := env.getCard(t, 2)
	assert.Equal(t, domain.DeckID(5), card.DeckID)
	assert.Equal(t, domain.DeckID(1), card.HomeDeckID)
}

func TestRebuildRegularDeck(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/decks/1/rebuild", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp shared.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Deck is not a filtered deck", resp.Error)
}

func TestEmptyFilteredDeck(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addCramDeck(t, 5, "Cram")
	env.addReviewCard(t, 2, 1, 10, 9)

	w := env.do(t, http.MethodPost, "/api/decks/5/rebuild", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/decks/5/empty", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	card := env.getCard(t, 2)
	assert.Equal(t, domain.DeckID(1), card.DeckID)
	assert.Equal(t, domain.DeckID(0), card.HomeDeckID)
}

func TestDeleteFilteredDeck(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addCramDeck(t, 5, "Cram")
	env.addReviewCard(t, 2, 1, 10, 9)

	w := env.do(t, http.MethodPost, "/api/decks/5/rebuild", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api/decks/5", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := env.store.Decks().Get(context.Background(), 5)
	assert.Error(t, err)

	// The member went home with its snapshot schedule.
	card := env.getCard(t, 2)
	assert.Equal(t, domain.DeckID(1), card.DeckID)
	assert.Equal(t, domain.DeckID(0), card.HomeDeckID)
	assert.Equal(t, domain.DayDue(9), card.Due)
}

func TestDeleteDefaultDeck(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodDelete, "/api/decks/1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
