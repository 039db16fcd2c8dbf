package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/platform/logger"
	"github.com/recallkit/recall-api/internal/store"
)

// ExtendLimits raises today's effective new and review limits for a
// deck by the given extra amounts. The extension drives the daily
// usage counters negative on the deck, its ancestors, and its
// descendants, so the whole chain admits the extra cards. Extending is
// monotonic: counts never shrink from it.
func (s *Service) ExtendLimits(ctx context.Context, deckID domain.DeckID, extraNew, extraRev int) error {
	if extraNew < 0 || extraRev < 0 {
		return fmt.Errorf("%w: limit extensions must be non-negative", domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	timing, _, err := s.timing(ctx)
	if err != nil {
		return err
	}
	snap, err := s.loadDecks(ctx)
	if err != nil {
		return err
	}
	deck, ok := snap.byID[deckID]
	if !ok {
		return fmt.Errorf("%w: deck %d", store.ErrDeckNotFound, deckID)
	}

	family := snap.childrenOf(deck)
	family = append(family, snap.ancestors(deck)...)

	now := s.nowFunc().UTC()
	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		decks := s.decks.WithTx(tx)
		for _, d := range family {
			extendDayCount(&d.NewToday, timing.Today, extraNew)
			extendDayCount(&d.RevToday, timing.Today, extraRev)
			d.ModifiedAt = now
			if err := decks.Update(ctx, d); err != nil {
				return fmt.Errorf("failed to extend limits for deck %q: %w", d.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateSession()
	log := logger.FromContextOrDefault(ctx, s.logger)
	log.Info("limits extended",
		slog.Int64("deck_id", int64(deckID)),
		slog.Int("extra_new", extraNew),
		slog.Int("extra_rev", extraRev))
	return nil
}

func extendDayCount(dc *domain.DayCount, today int64, extra int) {
	if dc.Day != today {
		dc.Day = today
		dc.Count = 0
	}
	dc.Count -= extra
}

// DeckTree returns the hierarchical due counts for every deck. Child
// counts aggregate into parents, and each node's new and review counts
// are clamped to its own remaining daily capacity, so the tree shows
// what is actually reachable today.
//
// Cards whose deck no longer resolves are skipped rather than failing
// the whole tree.
func (s *Service) DeckTree(ctx context.Context) ([]*domain.DeckDueTreeNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timing, _, err := s.timing(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.loadDecks(ctx)
	if err != nil {
		return nil, err
	}
	rem, err := s.deckRemaining(ctx, snap, timing.Today)
	if err != nil {
		return nil, err
	}

	// Per-deck raw counts, capped by the deck's own remaining budget.
	counts := make(map[domain.DeckID]domain.Counts, len(snap.sorted))
	for _, d := range snap.sorted {
		newCount, err := s.cards.CountNew(ctx, d.ID, rem[d.ID].newLeft)
		if err != nil {
			return nil, fmt.Errorf("failed to count new cards in deck %q: %w", d.Name, err)
		}
		learnCount, err := s.cards.CountLearn(ctx, d.ID, timing.LearnAheadCutoff(), timing.Today)
		if err != nil {
			return nil, fmt.Errorf("failed to count learning cards in deck %q: %w", d.Name, err)
		}
		revCount, err := s.cards.CountReview(ctx, d.ID, timing.Today, rem[d.ID].revLeft)
		if err != nil {
			return nil, fmt.Errorf("failed to count review cards in deck %q: %w", d.Name, err)
		}
		counts[d.ID] = domain.Counts{New: newCount, Learn: learnCount, Review: revCount}
	}

	roots := buildDeckTree(snap, counts)
	clampDeckTree(roots, snap, rem, math.MaxInt, math.MaxInt)
	return roots, nil
}

// buildDeckTree arranges decks into their name hierarchy. A missing
// intermediate name gets an implicit node with zero own counts.
func buildDeckTree(snap *deckSnapshot, counts map[domain.DeckID]domain.Counts) []*domain.DeckDueTreeNode {
	nodes := make(map[string]*domain.DeckDueTreeNode)
	var roots []*domain.DeckDueTreeNode

	var ensure func(fullName string) *domain.DeckDueTreeNode
	ensure = func(fullName string) *domain.DeckDueTreeNode {
		if n, ok := nodes[fullName]; ok {
			return n
		}
		parts := domain.PathComponents(fullName)
		n := &domain.DeckDueTreeNode{
			Name:     parts[len(parts)-1],
			FullName: fullName,
		}
		if d, ok := snap.byName[fullName]; ok {
			n.DeckID = d.ID
			n.Filtered = d.Filtered
			n.Counts = counts[d.ID]
		}
		nodes[fullName] = n
		if parent := domain.ParentName(fullName); parent != "" {
			p := ensure(parent)
			p.Children = append(p.Children, n)
		} else {
			roots = append(roots, n)
		}
		return n
	}

	// snap.sorted is name-ordered, so parents are created before
	// children and sibling order is stable.
	for _, d := range snap.sorted {
		ensure(d.Name)
	}
	return roots
}

// clampDeckTree folds child counts into parents bottom-up while the
// limits walk top-down: a node's effective capacity is its own
// remainder capped by every ancestor's, the same walking rule the
// selector applies, so no node advertises cards an ancestor's limit
// makes unreachable. Implicit nodes pass the parent limit through.
func clampDeckTree(
	nodes []*domain.DeckDueTreeNode,
	snap *deckSnapshot,
	rem map[domain.DeckID]*remaining,
	limNew, limRev int,
) {
	for _, n := range nodes {
		effNew, effRev := limNew, limRev
		if d, ok := snap.byName[n.FullName]; ok {
			if l := rem[d.ID].newLeft; l < effNew {
				effNew = l
			}
			if l := rem[d.ID].revLeft; l < effRev {
				effRev = l
			}
		}
		clampDeckTree(n.Children, snap, rem, effNew, effRev)
		for _, c := range n.Children {
			n.Counts = n.Counts.Add(c.Counts)
		}
		if n.Counts.New > effNew {
			n.Counts.New = effNew
		}
		if n.Counts.Review > effRev {
			n.Counts.Review = effRev
		}
	}
}

// FinishedReport describes the state of a finished (or not) session.
type FinishedReport struct {
	// Finished is true when nothing is currently available to study.
	Finished bool `json:"finished"`

	// NextLearnDue is the epoch second the earliest sub-day learning
	// card becomes available, zero when none are waiting today.
	NextLearnDue int64 `json:"next_learn_due,omitempty"`

	// HaveBuried is true when buried cards exist in the active scope,
	// so a client can offer manual unburying.
	HaveBuried bool `json:"have_buried"`
}

// Finished reports whether the active deck is done for today and what
// could still unblock it.
func (s *Service) Finished(ctx context.Context) (*FinishedReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDayLocked(ctx); err != nil {
		return nil, err
	}
	sess, err := s.currentSession(ctx)
	if err != nil {
		return nil, err
	}

	report := &FinishedReport{Finished: sess.counts.IsZero()}

	// Earliest sub-day learning card still waiting today.
	subDay, err := s.cards.SubDayLearnDue(ctx, sess.deckIDs, sess.timing.DayCutoff, 1)
	if err != nil {
		return nil, err
	}
	if len(subDay) > 0 && subDay[0].Due > s.nowFunc().Unix() {
		report.NextLearnDue = subDay[0].Due
	}

	buried, err := s.cards.ListByQueue(ctx,
		[]domain.Queue{domain.QueueBuriedSibling, domain.QueueBuriedManual}, sess.deckIDs)
	if err != nil {
		return nil, err
	}
	report.HaveBuried = len(buried) > 0
	return report, nil
}
