package scheduler

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/store/memstore"
)

// fakeClock is an adjustable clock injected via WithNowFunc.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var testCreated = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// testNow is mid-day on collection day 9 (rollover hour 4).
var testNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

// newTestService wires a Service over a fresh memstore. The returned
// clock starts at testNow; transactions are passthrough since the
// memstore facades ignore them.
func newTestService(t *testing.T) (*Service, *memstore.Store, *fakeClock) {
	t.Helper()

	ms := memstore.New(testCreated)
	clk := &fakeClock{now: testNow}
	runTx := func(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
		return fn(ctx, nil)
	}
	svc := NewService(
		ms.Cards(), ms.Decks(), ms.Collection(), ms.Revlog(),
		runTx,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithNowFunc(clk.Now),
	)
	return svc, ms, clk
}

func addCard(t *testing.T, ms *memstore.Store, card domain.Card) {
	t.Helper()
	card.ModifiedAt = testNow
	require.NoError(t, ms.Cards().Create(context.Background(), &card))
}

func addNewCard(t *testing.T, ms *memstore.Store, id domain.CardID, deckID domain.DeckID, pos int64) {
	t.Helper()
	addCard(t, ms, domain.Card{
		ID:     id,
		NoteID: domain.NoteID(id),
		DeckID: deckID,
		Type:   domain.CardTypeNew,
		Queue:  domain.QueueNew,
		Due:    domain.PositionDue(pos),
	})
}

func addReviewCard(t *testing.T, ms *memstore.Store, id domain.CardID, deckID domain.DeckID, ivl int, dueDay int64) {
	t.Helper()
	addCard(t, ms, domain.Card{
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

func addDeck(t *testing.T, ms *memstore.Store, deck domain.Deck) {
	t.Helper()
	deck.ModifiedAt = testNow
	require.NoError(t, ms.Decks().Create(context.Background(), &deck))
}

func getCard(t *testing.T, ms *memstore.Store, id domain.CardID) *domain.Card {
	t.Helper()
	c, err := ms.Cards().Get(context.Background(), id)
	require.NoError(t, err)
	return c
}
