package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/events"
	"github.com/recallkit/recall-api/internal/platform/logger"
	"github.com/recallkit/recall-api/internal/store"
)

// ErrNothingToUndo is returned when the undo stack is empty.
var ErrNothingToUndo = errors.New("nothing to undo")

// undoEntry captures everything one answer changed. Undo restores the
// card and its buried siblings, deletes the revlog record, and backs
// out the daily counter bumps.
type undoEntry struct {
	id        uuid.UUID
	card      domain.Card
	logID     int64
	buried    []*domain.Card
	statDecks []domain.DeckID
	statKind  statKind
	counts    domain.Counts
}

// pushUndo appends an entry, trimming the stack to its limit. Callers
// hold s.mu.
func (s *Service) pushUndo(e *undoEntry) {
	e.id = uuid.New()
	s.undo = append(s.undo, e)
	if len(s.undo) > undoLimit {
		s.undo = s.undo[len(s.undo)-undoLimit:]
	}
}

// Undo reverses the most recent answer and returns the restored
// card's id. Undo entries do not survive a day rollover: the daily
// counters they reference belong to the day they were made.
func (s *Service) Undo(ctx context.Context) (domain.CardID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.undo) == 0 {
		return 0, ErrNothingToUndo
	}
	timing, _, err := s.timing(ctx)
	if err != nil {
		return 0, err
	}

	e := s.undo[len(s.undo)-1]
	now := s.nowFunc().UTC()

	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cards := s.cards.WithTx(tx)
		decks := s.decks.WithTx(tx)
		revlog := s.revlog.WithTx(tx)

		restored := e.card
		restored.ModifiedAt = now
		if err := cards.Update(ctx, &restored); err != nil {
			return fmt.Errorf("failed to restore card %d: %w", e.card.ID, err)
		}
		if err := revlog.Delete(ctx, e.logID); err != nil && !store.IsNotFoundError(err) {
			return fmt.Errorf("failed to delete revlog %d: %w", e.logID, err)
		}
		for _, sib := range e.buried {
			b := *sib
			b.ModifiedAt = now
			if err := cards.Update(ctx, &b); err != nil {
				return fmt.Errorf("failed to unbury sibling %d: %w", b.ID, err)
			}
		}
		for _, deckID := range e.statDecks {
			if err := dropDeckStat(ctx, decks, deckID, e.statKind, timing.Today); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.undo = s.undo[:len(s.undo)-1]
	s.invalidateSession()

	if s.emitter != nil {
		s.emitter.Emit(ctx, events.NewReviewUndone(e.card.ID))
	}
	log := logger.FromContextOrDefault(ctx, s.logger)
	log.Info("answer undone",
		slog.Int64("card_id", int64(e.card.ID)),
		slog.String("undo_id", e.id.String()))
	return e.card.ID, nil
}

// dropDeckStat backs out one counter bump, but only if the counter
// still belongs to today; a rolled-over counter has nothing to return.
func dropDeckStat(
	ctx context.Context,
	decks store.DeckStore,
	deckID domain.DeckID,
	kind statKind,
	today int64,
) error {
	deck, err := decks.Get(ctx, deckID)
	if err != nil {
		return fmt.Errorf("failed to load deck %d for undo: %w", deckID, err)
	}

	drop := func(dc *domain.DayCount) {
		if dc.Day == today && dc.Count > 0 {
			dc.Count--
		}
	}
	switch kind {
	case statNew:
		drop(&deck.NewToday)
	case statReview:
		drop(&deck.RevToday)
	default:
		drop(&deck.LearnToday)
	}

	if err := decks.Update(ctx, deck); err != nil {
		return fmt.Errorf("failed to update deck %d for undo: %w", deckID, err)
	}
	return nil
}
