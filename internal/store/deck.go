package store

import (
	"context"
	"database/sql"

	"github.com/recallkit/recall-api/internal/domain"
)

// DeckStore defines the interface for deck and config persistence.
type DeckStore interface {
	// Create saves a new deck. Returns ErrDuplicate if the name is taken.
	Create(ctx context.Context, deck *domain.Deck) error

	// Get retrieves a deck by ID. Returns ErrDeckNotFound if absent.
	Get(ctx context.Context, id domain.DeckID) (*domain.Deck, error)

	// GetByName retrieves a deck by its full name.
	GetByName(ctx context.Context, name string) (*domain.Deck, error)

	// List returns all decks sorted by name, so parents precede
	// children.
	List(ctx context.Context) ([]*domain.Deck, error)

	// Update persists deck changes (daily counters included).
	Update(ctx context.Context, deck *domain.Deck) error

	// Delete removes a deck. The caller is responsible for re-homing
	// or re-parenting its cards first.
	Delete(ctx context.Context, id domain.DeckID) error

	// Config retrieves a configuration group by ID. Returns
	// ErrDeckConfigNotFound if absent.
	Config(ctx context.Context, id int64) (*domain.DeckConfig, error)

	// SaveConfig creates or updates a configuration group.
	SaveConfig(ctx context.Context, cfg *domain.DeckConfig) error

	// WithTx returns a DeckStore bound to the given transaction.
	WithTx(tx *sql.Tx) DeckStore
}

// CollectionStore persists the collection root object.
type CollectionStore interface {
	// Get retrieves the collection. Returns ErrCollectionNotFound if
	// the store was never initialized.
	Get(ctx context.Context) (*domain.Collection, error)

	// Update persists collection changes.
	Update(ctx context.Context, col *domain.Collection) error

	// WithTx returns a CollectionStore bound to the given transaction.
	WithTx(tx *sql.Tx) CollectionStore
}
