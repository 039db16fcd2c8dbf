package store

import (
	"context"
	"database/sql"

	"github.com/recallkit/recall-api/internal/domain"
)

// DueCard pairs a card id with the raw due value the store ordered by.
// Queue fills keep only ids plus this key, never card objects.
type DueCard struct {
	ID  domain.CardID
	Due int64
}

// CardQuery is the opaque selection predicate used by filtered-deck
// rebuilds. Search is a minimal query string the store interprets:
// the empty string matches everything; "deck:<name>" restricts to a
// deck subtree; "is:due" restricts to cards due by Today. Suspended,
// buried, and already-filtered cards are always excluded.
type CardQuery struct {
	Search string
	Order  domain.FilteredOrder
	Limit  int
	Today  int64
}

// CardStore defines the interface for card persistence.
type CardStore interface {
	// Create saves a new card.
	Create(ctx context.Context, card *domain.Card) error

	// Get retrieves a card by ID. Returns ErrCardNotFound if absent.
	Get(ctx context.Context, id domain.CardID) (*domain.Card, error)

	// GetMany retrieves the cards for the given ids. Missing ids are
	// skipped, not an error.
	GetMany(ctx context.Context, ids []domain.CardID) ([]*domain.Card, error)

	// Update persists the full scheduling state of an existing card.
	// Returns ErrCardNotFound if absent.
	Update(ctx context.Context, card *domain.Card) error

	// NewCardIDs returns up to limit new-queue card ids in a single
	// deck, ordered by due position then id.
	NewCardIDs(ctx context.Context, deckID domain.DeckID, limit int) ([]domain.CardID, error)

	// CountNew counts new-queue cards in a single deck, capped at limit.
	CountNew(ctx context.Context, deckID domain.DeckID, limit int) (int, error)

	// SubDayLearnDue returns sub-day learning cards across the given
	// decks with due <= cutoff, ordered by due then id.
	SubDayLearnDue(ctx context.Context, deckIDs []domain.DeckID, cutoff int64, limit int) ([]DueCard, error)

	// DayLearnDue returns day-learning cards across the given decks
	// with due day <= today, ordered by due then id.
	DayLearnDue(ctx context.Context, deckIDs []domain.DeckID, today int64, limit int) ([]DueCard, error)

	// CountLearn counts learning cards in one deck: sub-day cards due
	// before cutoff plus day-learning cards due by today.
	CountLearn(ctx context.Context, deckID domain.DeckID, cutoff int64, today int64) (int, error)

	// ReviewDue returns review cards across the given decks with due
	// day <= today, ordered by due then id.
	ReviewDue(ctx context.Context, deckIDs []domain.DeckID, today int64, limit int) ([]DueCard, error)

	// CountReview counts due review cards in one deck, capped at limit.
	CountReview(ctx context.Context, deckID domain.DeckID, today int64, limit int) (int, error)

	// Siblings returns the other cards of the same note.
	Siblings(ctx context.Context, noteID domain.NoteID, exclude domain.CardID) ([]*domain.Card, error)

	// ListByQueue returns cards in any of the given queues, restricted
	// to deckIDs when non-nil.
	ListByQueue(ctx context.Context, queues []domain.Queue, deckIDs []domain.DeckID) ([]*domain.Card, error)

	// ListByDeck returns every card currently sitting in a deck,
	// whatever its queue.
	ListByDeck(ctx context.Context, deckID domain.DeckID) ([]*domain.Card, error)

	// FilteredMembers returns the cards currently homed in a filtered
	// deck.
	FilteredMembers(ctx context.Context, deckID domain.DeckID) ([]*domain.Card, error)

	// FindCards evaluates the opaque filtered-deck predicate.
	FindCards(ctx context.Context, q CardQuery) ([]*domain.Card, error)

	// MaxNewPosition returns the largest new-card position in use.
	MaxNewPosition(ctx context.Context) (int64, error)

	// WithTx returns a CardStore bound to the given transaction.
	WithTx(tx *sql.Tx) CardStore
}
