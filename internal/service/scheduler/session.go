package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/domain/sched"
	"github.com/recallkit/recall-api/internal/platform/logger"
	"github.com/recallkit/recall-api/internal/store"
)

// session holds the queues and counts for one selected deck on one
// day. It is rebuilt whenever the selection changes, the day rolls
// over, or a mutation outside the answer path touches card state.
type session struct {
	deckID  domain.DeckID
	deckIDs []domain.DeckID
	timing  sched.Timing

	counts domain.Counts

	newQueue    *cardQueue
	lrnQueue    *learnQueue
	lrnDayQueue *cardQueue
	revQueue    *cardQueue

	// reps counts answers this session, driving the new-card spread.
	reps           int
	newCardModulus int
	newSpread      domain.NewSpread
	dayLearnFirst  bool
}

// SelectDeck makes deckID (and its descendants) the active study
// scope and rebuilds the queues.
func (s *Service) SelectDeck(ctx context.Context, deckID domain.DeckID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDayLocked(ctx); err != nil {
		return err
	}
	_, err := s.buildSession(ctx, deckID)
	return err
}

// currentSession returns the live session, rebuilding it when absent
// or expired. Callers hold s.mu.
func (s *Service) currentSession(ctx context.Context) (*session, error) {
	if s.sess != nil && !s.sess.timing.Expired(s.nowFunc()) {
		return s.sess, nil
	}
	deckID := domain.DeckID(1)
	if s.sess != nil {
		deckID = s.sess.deckID
	}
	return s.buildSession(ctx, deckID)
}

// remaining is the per-deck new/review budget left today, before
// considering ancestors.
type remaining struct {
	newLeft int
	revLeft int
}

func limitLeft(perDay int, used int) int {
	left := perDay - used
	if left < 0 {
		return 0
	}
	return left
}

// deckRemaining computes each deck's own remaining daily budget.
func (s *Service) deckRemaining(
	ctx context.Context,
	snap *deckSnapshot,
	today int64,
) (map[domain.DeckID]*remaining, error) {
	rem := make(map[domain.DeckID]*remaining, len(snap.sorted))
	for _, d := range snap.sorted {
		cfg, err := s.deckConfig(ctx, d.ConfigID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config for deck %q: %w", d.Name, err)
		}
		rem[d.ID] = &remaining{
			newLeft: limitLeft(cfg.New.PerDay, d.NewToday.UsedOn(today)),
			revLeft: limitLeft(cfg.Rev.PerDay, d.RevToday.UsedOn(today)),
		}
	}
	return rem, nil
}

// walkingNewLimit is the effective new budget of a deck: its own
// remainder capped by every ancestor's. Consuming from a deck then
// decrements the whole chain, so a parent limit is shared by its
// subtree.
func walkingNewLimit(snap *deckSnapshot, rem map[domain.DeckID]*remaining, d *domain.Deck) int {
	lim := rem[d.ID].newLeft
	for _, p := range snap.ancestors(d) {
		if pl := rem[p.ID].newLeft; pl < lim {
			lim = pl
		}
	}
	return lim
}

func walkingRevLimit(snap *deckSnapshot, rem map[domain.DeckID]*remaining, d *domain.Deck) int {
	lim := rem[d.ID].revLeft
	for _, p := range snap.ancestors(d) {
		if pl := rem[p.ID].revLeft; pl < lim {
			lim = pl
		}
	}
	return lim
}

func consumeNew(snap *deckSnapshot, rem map[domain.DeckID]*remaining, d *domain.Deck, n int) {
	rem[d.ID].newLeft -= n
	for _, p := range snap.ancestors(d) {
		rem[p.ID].newLeft -= n
	}
}

func consumeRev(snap *deckSnapshot, rem map[domain.DeckID]*remaining, d *domain.Deck, n int) {
	rem[d.ID].revLeft -= n
	for _, p := range snap.ancestors(d) {
		rem[p.ID].revLeft -= n
	}
}

// buildSession fills the four queues for the selected deck scope.
// Callers hold s.mu.
func (s *Service) buildSession(ctx context.Context, deckID domain.DeckID) (*session, error) {
	timing, col, err := s.timing(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.loadDecks(ctx)
	if err != nil {
		return nil, err
	}
	active, ok := snap.byID[deckID]
	if !ok {
		return nil, fmt.Errorf("%w: deck %d", store.ErrDeckNotFound, deckID)
	}

	scope := snap.childrenOf(active)
	deckIDs := make([]domain.DeckID, len(scope))
	for i, d := range scope {
		deckIDs[i] = d.ID
	}

	rem, err := s.deckRemaining(ctx, snap, timing.Today)
	if err != nil {
		return nil, err
	}

	// New queue: per-deck fills in name order, each capped by the
	// deck's walking limit, with the consumed budget propagated up so
	// siblings share their parents' allowance.
	var newIDs []domain.CardID
	for _, d := range scope {
		lim := walkingNewLimit(snap, rem, d)
		if lim <= 0 {
			continue
		}
		ids, err := s.cards.NewCardIDs(ctx, d.ID, lim)
		if err != nil {
			return nil, fmt.Errorf("failed to fill new queue for deck %q: %w", d.Name, err)
		}
		if len(ids) > 0 {
			consumeNew(snap, rem, d, len(ids))
			newIDs = append(newIDs, ids...)
		}
	}

	// Review queue, same walk.
	var revIDs []domain.CardID
	for _, d := range scope {
		lim := walkingRevLimit(snap, rem, d)
		if lim <= 0 {
			continue
		}
		due, err := s.cards.ReviewDue(ctx, []domain.DeckID{d.ID}, timing.Today, lim)
		if err != nil {
			return nil, fmt.Errorf("failed to fill review queue for deck %q: %w", d.Name, err)
		}
		if len(due) > 0 {
			consumeRev(snap, rem, d, len(due))
			for _, dc := range due {
				revIDs = append(revIDs, dc.ID)
			}
		}
	}

	// Learning has no daily limit.
	subDay, err := s.cards.SubDayLearnDue(ctx, deckIDs, timing.DayCutoff, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fill learning queue: %w", err)
	}
	dayLearn, err := s.cards.DayLearnDue(ctx, deckIDs, timing.Today, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fill day-learning queue: %w", err)
	}
	dayIDs := make([]domain.CardID, len(dayLearn))
	for i, dc := range dayLearn {
		dayIDs[i] = dc.ID
	}

	// Learn count only includes sub-day cards already inside the
	// look-ahead; later ones surface as the clock advances.
	learnNow := 0
	ahead := timing.LearnAheadCutoff()
	for _, dc := range subDay {
		if dc.Due < ahead {
			learnNow++
		}
	}

	sess := &session{
		deckID:  deckID,
		deckIDs: deckIDs,
		timing:  timing,
		counts: domain.Counts{
			New:    len(newIDs),
			Learn:  learnNow + len(dayIDs),
			Review: len(revIDs),
		},
		newQueue:      newCardQueue(newIDs),
		lrnQueue:      newLearnQueue(subDay),
		lrnDayQueue:   newCardQueue(dayIDs),
		revQueue:      newCardQueue(revIDs),
		newSpread:     col.Config.NewSpread,
		dayLearnFirst: col.Config.DayLearnFirst,
	}
	sess.updateNewCardModulus()
	s.sess = sess

	log := logger.FromContextOrDefault(ctx, s.logger)
	log.Debug("session built",
		slog.Int64("deck_id", int64(deckID)),
		slog.Int("new", sess.counts.New),
		slog.Int("learn", sess.counts.Learn),
		slog.Int("review", sess.counts.Review))
	return sess, nil
}

// updateNewCardModulus spreads new cards through reviews: every n-th
// answer serves a new card when both queues have work left.
func (sess *session) updateNewCardModulus() {
	sess.newCardModulus = 0
	if sess.newSpread != domain.NewSpreadDistribute {
		return
	}
	newCount := sess.newQueue.Len()
	revCount := sess.revQueue.Len() + sess.lrnDayQueue.Len()
	if newCount == 0 {
		return
	}
	sess.newCardModulus = (newCount + revCount) / newCount
	if revCount > 0 && sess.newCardModulus < 2 {
		sess.newCardModulus = 2
	}
}

func (sess *session) timeForNewCard() bool {
	if sess.newQueue.Empty() {
		return false
	}
	switch sess.newSpread {
	case domain.NewSpreadFirst:
		return true
	case domain.NewSpreadLast:
		return false
	default:
		return sess.newCardModulus > 0 && sess.reps%sess.newCardModulus == 0
	}
}

// queueSource says which bucket a served card was drawn from, so the
// answer path can decrement the right count.
type queueSource int

const (
	sourceNone queueSource = iota
	sourceNew
	sourceLearn
	sourceDayLearn
	sourceReview
)

// nextCardID draws the next card id in presentation order. Returns
// sourceNone when the session is finished.
func (sess *session) nextCardID(now int64) (domain.CardID, queueSource) {
	// Sub-day learning due right now comes first.
	if id, ok := sess.lrnQueue.PopDue(now); ok {
		return id, sourceLearn
	}

	if sess.timeForNewCard() {
		if id, ok := sess.newQueue.Pop(); ok {
			return id, sourceNew
		}
	}

	if sess.dayLearnFirst {
		if id, ok := sess.lrnDayQueue.Pop(); ok {
			return id, sourceDayLearn
		}
	}

	if id, ok := sess.revQueue.Pop(); ok {
		return id, sourceReview
	}

	if !sess.dayLearnFirst {
		if id, ok := sess.lrnDayQueue.Pop(); ok {
			return id, sourceDayLearn
		}
	}

	if id, ok := sess.newQueue.Pop(); ok {
		return id, sourceNew
	}

	// Collapse: pull learning cards due within the look-ahead window
	// rather than ending the session early.
	if id, ok := sess.lrnQueue.PopDue(now + sess.timing.CollapseTime); ok {
		return id, sourceLearn
	}

	return 0, sourceNone
}

// removeFromQueues drops a card id from every queue, used when a card
// is buried, suspended, or moved while a session is live.
func (sess *session) removeFromQueues(id domain.CardID) {
	sess.newQueue.Remove(id)
	sess.lrnQueue.Remove(id)
	sess.lrnDayQueue.Remove(id)
	sess.revQueue.Remove(id)
}

// NextCard returns the next card to study along with the current
// counts. A nil card means the selected deck is finished for today.
//
// The drawn id is not re-queued: answering moves the session forward,
// and an unanswered fetch repeated returns the following card only
// after a session rebuild.
func (s *Service) NextCard(ctx context.Context) (*domain.Card, domain.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDayLocked(ctx); err != nil {
		return nil, domain.Counts{}, err
	}
	sess, err := s.currentSession(ctx)
	if err != nil {
		return nil, domain.Counts{}, err
	}

	for {
		id, src := sess.nextCardID(s.nowFunc().Unix())
		if src == sourceNone {
			return nil, sess.counts, nil
		}
		card, err := s.cards.Get(ctx, id)
		if err != nil {
			if store.IsNotFoundError(err) {
				// Deleted behind the session's back; skip.
				continue
			}
			return nil, domain.Counts{}, err
		}
		if card.Queue.Held() {
			// Buried or suspended since the fill; skip it.
			continue
		}
		// Serve without consuming the count; the count drops when the
		// card is answered.
		requeueFront(sess, card, src)
		return card, sess.counts, nil
	}
}

// requeueFront puts a just-peeked card back at the front of its queue
// so the upcoming answer finds it in place.
func requeueFront(sess *session, card *domain.Card, src queueSource) {
	switch src {
	case sourceNew:
		sess.newQueue.ids = append([]domain.CardID{card.ID}, sess.newQueue.ids...)
		sess.newQueue.live++
	case sourceLearn:
		sess.lrnQueue.Add(card.ID, card.Due.Value)
	case sourceDayLearn:
		sess.lrnDayQueue.ids = append([]domain.CardID{card.ID}, sess.lrnDayQueue.ids...)
		sess.lrnDayQueue.live++
	case sourceReview:
		sess.revQueue.ids = append([]domain.CardID{card.ID}, sess.revQueue.ids...)
		sess.revQueue.live++
	}
}

// Counts returns the remaining (new, learn, review) counts for the
// active deck scope.
func (s *Service) Counts(ctx context.Context) (domain.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDayLocked(ctx); err != nil {
		return domain.Counts{}, err
	}
	sess, err := s.currentSession(ctx)
	if err != nil {
		return domain.Counts{}, err
	}
	return sess.counts, nil
}
