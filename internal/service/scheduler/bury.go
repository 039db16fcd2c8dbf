package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/domain/sched"
	"github.com/recallkit/recall-api/internal/platform/logger"
)

// SuspendCards removes cards from study indefinitely. A suspended
// card keeps its intrinsic phase; a card inside a filtered deck is
// first returned home so its snapshot is not stranded.
func (s *Service) SuspendCards(ctx context.Context, ids []domain.CardID) error {
	return s.setHold(ctx, ids, "suspend", func(c *domain.Card) bool {
		if c.Queue == domain.QueueSuspended {
			return false
		}
		sched.RestoreFromFiltered(c)
		c.Queue = domain.QueueSuspended
		return true
	})
}

// UnsuspendCards returns suspended cards to their phase-consistent
// queues.
func (s *Service) UnsuspendCards(ctx context.Context, ids []domain.CardID) error {
	return s.setHold(ctx, ids, "unsuspend", func(c *domain.Card) bool {
		if c.Queue != domain.QueueSuspended {
			return false
		}
		c.Queue = domain.RestoredQueue(c.Type, c.Due)
		return true
	})
}

// BuryCards hides cards until the next day rollover. Manual burying
// uses its own queue so automatic sibling burial can be told apart
// and released separately.
func (s *Service) BuryCards(ctx context.Context, ids []domain.CardID, manual bool) error {
	queue := domain.QueueBuriedManual
	if !manual {
		queue = domain.QueueBuriedSibling
	}
	return s.setHold(ctx, ids, "bury", func(c *domain.Card) bool {
		if c.Queue.Held() {
			return false
		}
		c.Queue = queue
		return true
	})
}

// UnburyKind selects which buried queue UnburyCards releases.
type UnburyKind int

const (
	UnburyAll UnburyKind = iota
	UnburyManual
	UnburySibling
)

func (k UnburyKind) matches(q domain.Queue) bool {
	switch k {
	case UnburyManual:
		return q == domain.QueueBuriedManual
	case UnburySibling:
		return q == domain.QueueBuriedSibling
	default:
		return q == domain.QueueBuriedManual || q == domain.QueueBuriedSibling
	}
}

// UnburyCards restores buried cards immediately instead of waiting
// for the rollover. Cards whose buried queue does not match kind are
// left alone.
func (s *Service) UnburyCards(ctx context.Context, ids []domain.CardID, kind UnburyKind) error {
	return s.setHold(ctx, ids, "unbury", func(c *domain.Card) bool {
		if !kind.matches(c.Queue) {
			return false
		}
		c.Queue = domain.RestoredQueue(c.Type, c.Due)
		return true
	})
}

// BuryNote buries every card generated from the given note.
func (s *Service) BuryNote(ctx context.Context, noteID domain.NoteID) error {
	siblings, err := s.cards.Siblings(ctx, noteID, 0)
	if err != nil {
		return fmt.Errorf("failed to load cards of note %d: %w", noteID, err)
	}
	ids := make([]domain.CardID, 0, len(siblings))
	for _, c := range siblings {
		ids = append(ids, c.ID)
	}
	return s.BuryCards(ctx, ids, true)
}

// setHold applies a queue transition to each card, skipping cards the
// transition does not apply to.
func (s *Service) setHold(
	ctx context.Context,
	ids []domain.CardID,
	op string,
	apply func(*domain.Card) bool,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards, err := s.cards.GetMany(ctx, ids)
	if err != nil {
		return err
	}

	now := s.nowFunc().UTC()
	changed := 0
	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		txCards := s.cards.WithTx(tx)
		for _, c := range cards {
			if !apply(c) {
				continue
			}
			c.ModifiedAt = now
			if err := txCards.Update(ctx, c); err != nil {
				return fmt.Errorf("failed to %s card %d: %w", op, c.ID, err)
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if changed > 0 {
		s.invalidateSession()
	}
	log := logger.FromContextOrDefault(ctx, s.logger)
	log.Info("hold applied",
		slog.String("operation", op),
		slog.Int("requested", len(ids)),
		slog.Int("changed", changed))
	return nil
}
