package api

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/service/scheduler"
	"github.com/recallkit/recall-api/internal/store/memstore"
	"github.com/recallkit/recall-api/internal/task"
)

var testCreated = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// testNow is mid-day on collection day 9 (rollover hour 4).
var testNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

// testEnv mounts the scheduler, deck, and card handlers on the real
// route layout, backed by a memstore and a live task executor. Auth
// middleware is exercised separately.
type testEnv struct {
	router http.Handler
	store  *memstore.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ms := memstore.New(testCreated)
	runTx := func(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
		return fn(ctx, nil)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := scheduler.NewService(
		ms.Cards(), ms.Decks(), ms.Collection(), ms.Revlog(),
		runTx, log,
		scheduler.WithNowFunc(func() time.Time { return testNow }),
	)

	exec := task.NewExecutor(log)
	t.Cleanup(func() { _ = exec.Stop(context.Background()) })

	schedulerHandler := NewSchedulerHandler(svc, exec, log)
	deckHandler := NewDeckHandler(svc, exec, log)
	cardHandler := NewCardHandler(svc, exec, log)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/scheduler/next", schedulerHandler.NextCard)
		r.Post("/scheduler/answer", schedulerHandler.Answer)
		r.Get("/scheduler/counts", schedulerHandler.Counts)
		r.Get("/scheduler/preview/{cardID}", schedulerHandler.Preview)
		r.Post("/scheduler/undo", schedulerHandler.Undo)
		r.Post("/scheduler/select-deck", schedulerHandler.SelectDeck)
		r.Get("/scheduler/finished", schedulerHandler.Finished)

		r.Get("/decks/tree", deckHandler.Tree)
		r.Post("/decks/{deckID}/extend-limits", deckHandler.ExtendLimits)
		r.Post("/decks/{deckID}/rebuild", deckHandler.Rebuild)
		r.Post("/decks/{deckID}/empty", deckHandler.Empty)
		r.Delete("/decks/{deckID}", deckHandler.Delete)

		r.Post("/cards/bury", cardHandler.Bury)
		r.Post("/cards/unbury", cardHandler.Unbury)
		r.Post("/cards/suspend", cardHandler.Suspend)
		r.Post("/cards/unsuspend", cardHandler.Unsuspend)
		r.Post("/cards/forget", cardHandler.Forget)
		r.Post("/cards/reschedule", cardHandler.Reschedule)
		r.Post("/notes/{noteID}/bury", cardHandler.BuryNote)
	})

	return &testEnv{router: r, store: ms}
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) addCard(t *testing.T, card domain.Card) {
	t.Helper()
	card.ModifiedAt = testNow
	require.NoError(t, env.store.Cards().Create(context.Background(), &card))
}

func (env *testEnv) addNewCard(t *testing.T, id domain.CardID, deckID domain.DeckID, pos int64) {
	t.Helper()
	env.addCard(t, domain.Card{
		ID:     id,
		NoteID: domain.NoteID(id),
		DeckID: deckID,
		Type:   domain.CardTypeNew,
		Queue:  domain.QueueNew,
		Due:    domain.PositionDue(pos),
	})
}

func (env *testEnv) addReviewCard(t *testing.T, id domain.CardID, deckID domain.DeckID, ivl int, dueDay int64) {
	t.Helper()
	env.addCard(t, domain.Card{
		ID:       id,
		NoteID:   domain.NoteID(id),
		DeckID:   deckID,
		Type:     domain.CardTypeReview,
		Queue:    domain.QueueReview,
		Due:      domain.DayDue(dueDay),
		Interval: ivl,
		Factor:   2500,
		Reps:     5,
	})
}

func (env *testEnv) getCard(t *testing.T, id domain.CardID) *domain.Card {
	t.Helper()
	c, err := env.store.Cards().Get(context.Background(), id)
	require.NoError(t, err)
	return c
}
