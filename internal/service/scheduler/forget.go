package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/domain/sched"
	"github.com/recallkit/recall-api/internal/platform/logger"
)

// ForgetCards resets cards to new, placing them at the end of the new
// queue. Review history and lapse counts are kept; only the schedule
// is discarded.
func (s *Service) ForgetCards(ctx context.Context, ids []domain.CardID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards, err := s.cards.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	maxPos, err := s.cards.MaxNewPosition(ctx)
	if err != nil {
		return err
	}

	now := s.nowFunc().UTC()
	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		txCards := s.cards.WithTx(tx)
		pos := maxPos
		for _, c := range cards {
			pos++
			sched.RestoreFromFiltered(c)
			c.Type = domain.CardTypeNew
			c.Queue = domain.QueueNew
			c.Due = domain.PositionDue(pos)
			c.OriginalDue = domain.Due{}
			c.Interval = 0
			c.Factor = domain.StartingFactor
			c.StepsLeft = 0
			c.StepsLeftToday = 0
			c.ModifiedAt = now
			if err := txCards.Update(ctx, c); err != nil {
				return fmt.Errorf("failed to forget card %d: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateSession()
	log := logger.FromContextOrDefault(ctx, s.logger)
	log.Info("cards forgotten", slog.Int("count", len(cards)))
	return nil
}

// RescheduleCards places cards in the review queue with an interval
// drawn uniformly from [minDays, maxDays], due that many days from
// today.
func (s *Service) RescheduleCards(ctx context.Context, ids []domain.CardID, minDays, maxDays int) error {
	if minDays < 0 || maxDays < minDays {
		return fmt.Errorf("%w: invalid reschedule range [%d, %d]", domain.ErrValidation, minDays, maxDays)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	timing, _, err := s.timing(ctx)
	if err != nil {
		return err
	}
	cards, err := s.cards.GetMany(ctx, ids)
	if err != nil {
		return err
	}

	now := s.nowFunc().UTC()
	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		txCards := s.cards.WithTx(tx)
		for _, c := range cards {
			ivl := minDays
			if maxDays > minDays {
				rng := rand.New(rand.NewSource(int64(c.ID)))
				ivl = minDays + rng.Intn(maxDays-minDays+1)
			}
			if ivl < 1 {
				ivl = 1
			}
			sched.RestoreFromFiltered(c)
			c.Type = domain.CardTypeReview
			c.Queue = domain.QueueReview
			c.Interval = ivl
			c.Due = domain.DayDue(timing.Today + int64(ivl))
			c.OriginalDue = domain.Due{}
			if c.Factor == 0 {
				c.Factor = domain.StartingFactor
			}
			c.StepsLeft = 0
			c.StepsLeftToday = 0
			c.ModifiedAt = now
			if err := txCards.Update(ctx, c); err != nil {
				return fmt.Errorf("failed to reschedule card %d: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateSession()
	log := logger.FromContextOrDefault(ctx, s.logger)
	log.Info("cards rescheduled",
		slog.Int("count", len(cards)),
		slog.Int("min_days", minDays),
		slog.Int("max_days", maxDays))
	return nil
}
