package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/platform/logger"
	"github.com/recallkit/recall-api/internal/store"
)

// DeleteDeck removes a deck and all its descendants. Filtered decks in
// the doomed subtree are emptied first, returning members home with
// their snapshot schedules intact. Cards still homed in a deleted
// regular deck move to the default deck rather than dangling on a deck
// id that no longer resolves.
func (s *Service) DeleteDeck(ctx context.Context, deckID domain.DeckID) error {
	if deckID == domain.DefaultDeckID {
		return fmt.Errorf("%w: the default deck cannot be deleted", domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.loadDecks(ctx)
	if err != nil {
		return err
	}
	deck, ok := snap.byID[deckID]
	if !ok {
		return fmt.Errorf("%w: deck %d", store.ErrDeckNotFound, deckID)
	}

	targets := snap.childrenOf(deck)
	for _, d := range targets {
		if d.Filtered {
			if err := s.restoreMembers(ctx, d.ID); err != nil {
				return err
			}
		}
	}

	now := s.nowFunc().UTC()
	rehomed := 0
	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cards := s.cards.WithTx(tx)
		decks := s.decks.WithTx(tx)
		for _, d := range targets {
			if !d.Filtered {
				orphans, err := cards.ListByDeck(ctx, d.ID)
				if err != nil {
					return fmt.Errorf("failed to list cards of deck %q: %w", d.Name, err)
				}
				for _, c := range orphans {
					c.DeckID = domain.DefaultDeckID
					c.ModifiedAt = now
					if err := cards.Update(ctx, c); err != nil {
						return fmt.Errorf("failed to re-home card %d: %w", c.ID, err)
					}
					rehomed++
				}
			}
			if err := decks.Delete(ctx, d.ID); err != nil {
				return fmt.Errorf("failed to delete deck %q: %w", d.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateSession()
	log := logger.FromContextOrDefault(ctx, s.logger)
	log.Info("deck deleted",
		slog.Int64("deck_id", int64(deckID)),
		slog.Int("decks_removed", len(targets)),
		slog.Int("cards_rehomed", rehomed))
	return nil
}
