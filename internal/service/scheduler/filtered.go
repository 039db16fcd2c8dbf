package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/domain/sched"
	"github.com/recallkit/recall-api/internal/events"
	"github.com/recallkit/recall-api/internal/platform/logger"
	"github.com/recallkit/recall-api/internal/store"
)

// filteredDueBase keeps gathered cards ahead of everything else: the
// n-th gathered card gets due base+n, which sorts before any real due
// value and preserves gather order.
const filteredDueBase = -100000

// RebuildFiltered empties a filtered deck and regathers cards
// according to its terms. Returns the number of cards gathered.
func (s *Service) RebuildFiltered(ctx context.Context, deckID domain.DeckID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timing, _, err := s.timing(ctx)
	if err != nil {
		return 0, err
	}
	deck, err := s.decks.Get(ctx, deckID)
	if err != nil {
		return 0, err
	}
	if !deck.Filtered || deck.FilteredParams == nil {
		return 0, fmt.Errorf("%w: deck %q", domain.ErrDeckNotFiltered, deck.Name)
	}

	// Current members go home first so the gather pass sees their real
	// schedule and can pick them up again.
	if err := s.restoreMembers(ctx, deckID); err != nil {
		return 0, err
	}

	// Gather pass per term, deduplicated across terms.
	seen := make(map[domain.CardID]bool)
	var gathered []*domain.Card
	for _, term := range deck.FilteredParams.Terms {
		found, err := s.cards.FindCards(ctx, store.CardQuery{
			Search: term.Search,
			Order:  term.Order,
			Limit:  term.Limit,
			Today:  timing.Today,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to gather cards for deck %q: %w", deck.Name, err)
		}
		for _, c := range found {
			if c.DeckID == deckID || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			gathered = append(gathered, c)
		}
	}

	now := s.nowFunc().UTC()
	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cards := s.cards.WithTx(tx)
		for i, c := range gathered {
			moveToFiltered(c, deckID, i+1)
			c.ModifiedAt = now
			if err := cards.Update(ctx, c); err != nil {
				return fmt.Errorf("failed to move card %d into deck %q: %w", c.ID, deck.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.invalidateSession()
	if s.emitter != nil {
		s.emitter.Emit(ctx, events.NewDeckRebuilt(deckID, len(gathered)))
	}
	log := logger.FromContextOrDefault(ctx, s.logger)
	log.Info("filtered deck rebuilt",
		slog.Int64("deck_id", int64(deckID)),
		slog.Int("gathered", len(gathered)))
	return len(gathered), nil
}

// EmptyFiltered returns every card in a filtered deck to its home
// deck with its snapshot schedule intact.
func (s *Service) EmptyFiltered(ctx context.Context, deckID domain.DeckID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deck, err := s.decks.Get(ctx, deckID)
	if err != nil {
		return err
	}
	if !deck.Filtered {
		return fmt.Errorf("%w: deck %q", domain.ErrDeckNotFiltered, deck.Name)
	}

	if err := s.restoreMembers(ctx, deckID); err != nil {
		return err
	}

	s.invalidateSession()
	log := logger.FromContextOrDefault(ctx, s.logger)
	log.Info("filtered deck emptied", slog.Int64("deck_id", int64(deckID)))
	return nil
}

// restoreMembers sends every card of a filtered deck back home with
// its snapshot schedule intact.
func (s *Service) restoreMembers(ctx context.Context, deckID domain.DeckID) error {
	members, err := s.cards.FilteredMembers(ctx, deckID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	now := s.nowFunc().UTC()
	return s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cards := s.cards.WithTx(tx)
		for _, c := range members {
			sched.RestoreFromFiltered(c)
			c.ModifiedAt = now
			if err := cards.Update(ctx, c); err != nil {
				return fmt.Errorf("failed to restore card %d: %w", c.ID, err)
			}
		}
		return nil
	})
}

// moveToFiltered re-homes a card into a filtered deck. The real due
// value is snapshotted in OriginalDue and replaced by a gather-order
// key, except for sub-day learning cards, which keep their timestamp
// so their steps keep firing on time.
func moveToFiltered(c *domain.Card, deckID domain.DeckID, order int) {
	if c.HomeDeckID == 0 {
		c.HomeDeckID = c.DeckID
	}
	c.DeckID = deckID
	if c.OriginalDue.IsZero() {
		c.OriginalDue = c.Due
	}
	if c.Queue == domain.QueueLearningSubDay {
		return
	}
	raw := int64(filteredDueBase + order)
	switch c.Queue {
	case domain.QueueNew:
		c.Due = domain.PositionDue(raw)
	default:
		c.Due = domain.DayDue(raw)
	}
}
