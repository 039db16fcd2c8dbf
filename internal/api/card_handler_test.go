package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall-api/internal/api/shared"
	"github.com/recallkit/recall-api/internal/domain"
)

func TestSuspendAndUnsuspend(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addReviewCard(t, 1, 1, 100, 9)

	w := env.do(t, http.MethodPost, "/api/cards/suspend", `{"card_ids":[1]}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, domain.QueueSuspended, env.getCard(t, 1).Queue)

	w = env.do(t, http.MethodPost, "/api/cards/unsuspend", `{"card_ids":[1]}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, domain.QueueReview, env.getCard(t, 1).Queue)
}

func TestBuryAndUnbury(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addNewCard(t, 1, 1, 1)

	w := env.do(t, http.MethodPost, "/api/cards/bury", `{"card_ids":[1]}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, domain.QueueBuriedManual, env.getCard(t, 1).Queue)

	w = env.do(t, http.MethodPost, "/api/cards/unbury", `{"card_ids":[1]}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, domain.QueueNew, env.getCard(t, 1).Queue)
}

func TestBuryManualFlagAndUnburyKind(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addNewCard(t, 1, 1, 1)
	env.addNewCard(t, 2, 1, 2)

	w := env.do(t, http.MethodPost, "/api/cards/bury", `{"card_ids":[1],"manual":false}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, domain.QueueBuriedSibling, env.getCard(t, 1).Queue)

	w = env.do(t, http.MethodPost, "/api/cards/bury", `{"card_ids":[2]}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, domain.QueueBuriedManual, env.getCard(t, 2).Queue)

	// Scoped to manual burials only; the sibling burial stays.
	w = env.do(t, http.MethodPost, "/api/cards/unbury", `{"card_ids":[1,2],"kind":"manual"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, domain.QueueBuriedSibling, env.getCard(t, 1).Queue)
	assert.Equal(t, domain.QueueNew, env.getCard(t, 2).Queue)

	w = env.do(t, http.MethodPost, "/api/cards/unbury", `{"card_ids":[1,2],"kind":"siblings"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, domain.QueueNew, env.getCard(t, 1).Queue)

	w = env.do(t, http.MethodPost, "/api/cards/unbury", `{"card_ids":[1],"kind":"tomorrow"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkRequestValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/cards/suspend", `{"card_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/cards/suspend", `{"card_ids":`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp shared.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Invalid request format", resp.Error)
}

func TestForget(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addReviewCard(t, 1, 1, 100, 9)

	w := env.do(t, http.MethodPost, "/api/cards/forget", `{"card_ids":[1]}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	card := env.getCard(t, 1)
	assert.Equal(t, domain.CardTypeNew, card.Type)
	assert.Equal(t, domain.QueueNew, card.Queue)
	assert.Equal(t, 0, card.Interval)
}

func TestReschedule(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addNewCard(t, 1, 1, 1)

	w := env.do(t, http.MethodPost, "/api/cards/reschedule",
		`{"card_ids":[1],"min_days":5,"max_days":5}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	card := env.getCard(t, 1)
	assert.Equal(t, domain.CardTypeReview, card.Type)
	assert.Equal(t, 5, card.Interval)
	assert.Equal(t, domain.DayDue(14), card.Due)
}

func TestRescheduleInvalidRange(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addNewCard(t, 1, 1, 1)

	w := env.do(t, http.MethodPost, "/api/cards/reschedule",
		`{"card_ids":[1],"min_days":7,"max_days":3}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp shared.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Invalid request data", resp.Error)
}

func TestBuryNote(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addCard(t, domain.Card{
		ID: 1, NoteID: 7, DeckID: 1,
		Type: domain.CardTypeNew, Queue: domain.QueueNew,
		Due: domain.PositionDue(1),
	})
	env.addCard(t, domain.Card{
		ID: 2, NoteID: 7, DeckID: 1,
		Type: domain.CardTypeNew, Queue: domain.QueueNew,
		Due: domain.PositionDue(2),
	})

	w := env.do(t, http.MethodPost, "/api/notes/7/bury", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, domain.QueueBuriedManual, env.getCard(t, 1).Queue)
	assert.Equal(t, domain.QueueBuriedManual, env.getCard(t, 2).Queue)
}
