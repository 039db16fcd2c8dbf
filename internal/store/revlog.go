package store

import (
	"context"
	"database/sql"

	"github.com/recallkit/recall-api/internal/domain"
)

// RevlogStore persists the immutable grading log.
type RevlogStore interface {
	// Append writes one log record. Records are never updated.
	Append(ctx context.Context, log *domain.ReviewLog) error

	// Delete removes a record by ID. Only the undo path uses this.
	Delete(ctx context.Context, id int64) error

	// ListForCard returns a card's log records, newest first.
	ListForCard(ctx context.Context, cardID domain.CardID) ([]*domain.ReviewLog, error)

	// WithTx returns a RevlogStore bound to the given transaction.
	WithTx(tx *sql.Tx) RevlogStore
}
