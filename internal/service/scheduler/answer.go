package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/domain/sched"
	"github.com/recallkit/recall-api/internal/events"
	"github.com/recallkit/recall-api/internal/platform/logger"
	"github.com/recallkit/recall-api/internal/store"
)

// AnswerOutcome is what an answer changed, for the API response.
type AnswerOutcome struct {
	Card   domain.Card
	Counts domain.Counts
	Leech  bool
}

// statKind says which daily counter an answer consumed.
type statKind int

const (
	statNew statKind = iota
	statLearn
	statReview
)

// AnswerCard grades a card. The card update, the revlog append, the
// sibling burying, and the daily counter bumps commit in one
// transaction; the undo entry captures everything needed to reverse
// them.
func (s *Service) AnswerCard(
	ctx context.Context,
	cardID domain.CardID,
	grade domain.Grade,
	timeTakenMs int,
) (*AnswerOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDayLocked(ctx); err != nil {
		return nil, err
	}
	sess, err := s.currentSession(ctx)
	if err != nil {
		return nil, err
	}

	card, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return nil, err
	}
	snap, err := s.loadDecks(ctx)
	if err != nil {
		return nil, err
	}
	cfg, filtered, err := s.resolveCardConfig(ctx, card, snap)
	if err != nil {
		return nil, err
	}

	prev := *card
	res, err := sched.Answer(sched.Request{
		Card:        *card,
		Grade:       grade,
		Config:      cfg,
		Filtered:    filtered,
		Timing:      sess.timing,
		TimeTakenMs: timeTakenMs,
		Rand:        sched.Source(card.ID, card.Reps),
	})
	if err != nil {
		return nil, err
	}

	kind := answerStatKind(prev.Queue)
	statDecks := statDeckIDs(snap, card.DeckID)
	toBury, err := s.siblingsToBury(ctx, card, cfg, sess.timing.Today)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cards := s.cards.WithTx(tx)
		decks := s.decks.WithTx(tx)
		revlog := s.revlog.WithTx(tx)

		updated := res.Card
		if err := cards.Update(ctx, &updated); err != nil {
			return fmt.Errorf("failed to update card %d: %w", cardID, err)
		}
		if err := revlog.Append(ctx, &res.Log); err != nil {
			return fmt.Errorf("failed to append revlog for card %d: %w", cardID, err)
		}
		for _, sib := range toBury {
			b := *sib
			b.Queue = domain.QueueBuriedSibling
			b.ModifiedAt = now
			if err := cards.Update(ctx, &b); err != nil {
				return fmt.Errorf("failed to bury sibling %d: %w", b.ID, err)
			}
		}
		for _, deckID := range statDecks {
			if err := bumpDeckStat(ctx, decks, deckID, kind, sess.timing.Today, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pushUndo(&undoEntry{
		card:      prev,
		logID:     res.Log.ID,
		buried:    toBury,
		statDecks: statDecks,
		statKind:  kind,
		counts:    sess.counts,
	})

	s.applyAnswerToSession(sess, &prev, &res, toBury)

	if res.Leech && s.emitter != nil {
		s.emitter.Emit(ctx, events.NewLeechMarked(
			res.Card.ID, res.Card.Lapses,
			res.Card.Queue == domain.QueueSuspended,
		))
	}

	log := logger.FromContextOrDefault(ctx, s.logger)
	log.Info("card answered",
		slog.Int64("card_id", int64(cardID)),
		slog.String("grade", grade.String()),
		slog.String("queue", res.Card.Queue.String()),
		slog.Bool("leech", res.Leech))

	return &AnswerOutcome{Card: res.Card, Counts: sess.counts, Leech: res.Leech}, nil
}

// answerStatKind maps the queue a card was answered from to the daily
// counter it consumes.
func answerStatKind(q domain.Queue) statKind {
	switch q {
	case domain.QueueNew:
		return statNew
	case domain.QueueReview:
		return statReview
	default:
		return statLearn
	}
}

// statDeckIDs is the card's deck plus its ancestors; daily usage is
// tracked along the whole chain so parent limits see child activity.
func statDeckIDs(snap *deckSnapshot, deckID domain.DeckID) []domain.DeckID {
	out := []domain.DeckID{deckID}
	if d, ok := snap.byID[deckID]; ok {
		for _, p := range snap.ancestors(d) {
			out = append(out, p.ID)
		}
	}
	return out
}

// bumpDeckStat increments one daily counter, resetting it first if it
// is left over from an earlier day.
func bumpDeckStat(
	ctx context.Context,
	decks store.DeckStore,
	deckID domain.DeckID,
	kind statKind,
	today int64,
	now time.Time,
) error {
	deck, err := decks.Get(ctx, deckID)
	if err != nil {
		return fmt.Errorf("failed to load deck %d for stats: %w", deckID, err)
	}

	bump := func(dc *domain.DayCount) {
		if dc.Day != today {
			dc.Day = today
			dc.Count = 0
		}
		dc.Count++
	}
	switch kind {
	case statNew:
		bump(&deck.NewToday)
	case statReview:
		bump(&deck.RevToday)
	default:
		bump(&deck.LearnToday)
	}
	deck.ModifiedAt = now

	if err := decks.Update(ctx, deck); err != nil {
		return fmt.Errorf("failed to update stats for deck %d: %w", deckID, err)
	}
	return nil
}

// siblingsToBury returns the note siblings the deck config wants
// hidden for the rest of the day: new siblings when burying new cards,
// due review siblings when burying reviews.
func (s *Service) siblingsToBury(
	ctx context.Context,
	card *domain.Card,
	cfg *domain.DeckConfig,
	today int64,
) ([]*domain.Card, error) {
	if !cfg.New.Bury && !cfg.Rev.Bury {
		return nil, nil
	}
	siblings, err := s.cards.Siblings(ctx, card.NoteID, card.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load siblings of note %d: %w", card.NoteID, err)
	}
	var out []*domain.Card
	for _, sib := range siblings {
		if sib.InFiltered() {
			continue
		}
		switch {
		case cfg.New.Bury && sib.Queue == domain.QueueNew:
			out = append(out, sib)
		case cfg.Rev.Bury && sib.Queue == domain.QueueReview && sib.Due.Value <= today:
			out = append(out, sib)
		}
	}
	return out, nil
}

// applyAnswerToSession moves the session state past an answer: drop
// the card and its buried siblings from the queues, decrement the
// consumed bucket, and re-queue the card if it stays in today's
// sub-day steps.
func (s *Service) applyAnswerToSession(
	sess *session,
	prev *domain.Card,
	res *sched.Result,
	buried []*domain.Card,
) {
	sess.reps++
	sess.removeFromQueues(prev.ID)

	switch answerStatKind(prev.Queue) {
	case statNew:
		if sess.counts.New > 0 {
			sess.counts.New--
		}
	case statReview:
		if sess.counts.Review > 0 {
			sess.counts.Review--
		}
	default:
		if sess.counts.Learn > 0 {
			sess.counts.Learn--
		}
	}

	if res.Card.Queue == domain.QueueLearningSubDay &&
		res.Card.Due.Value < sess.timing.LearnAheadCutoff() {
		sess.lrnQueue.Add(res.Card.ID, res.Card.Due.Value)
		sess.counts.Learn++
	} else if res.Card.Queue == domain.QueueLearningSubDay &&
		res.Card.Due.Value < sess.timing.DayCutoff {
		// Due later today but outside the look-ahead; it surfaces via
		// the queue as the clock advances.
		sess.lrnQueue.Add(res.Card.ID, res.Card.Due.Value)
	}

	for _, sib := range buried {
		if sess.newQueue.Remove(sib.ID) {
			if sess.counts.New > 0 {
				sess.counts.New--
			}
		}
		if sess.revQueue.Remove(sib.ID) {
			if sess.counts.Review > 0 {
				sess.counts.Review--
			}
		}
		sess.lrnQueue.Remove(sib.ID)
		sess.lrnDayQueue.Remove(sib.ID)
	}
}

// NextIntervals previews, in seconds, what each grade would schedule
// for the card. The preview runs the answer arithmetic with fuzz
// disabled and never touches state.
func (s *Service) NextIntervals(ctx context.Context, cardID domain.CardID) (map[domain.Grade]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.currentSession(ctx)
	if err != nil {
		return nil, err
	}
	card, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return nil, err
	}
	snap, err := s.loadDecks(ctx)
	if err != nil {
		return nil, err
	}
	cfg, filtered, err := s.resolveCardConfig(ctx, card, snap)
	if err != nil {
		return nil, err
	}
	return sched.NextIvlAll(*card, cfg, filtered, sess.timing)
}
