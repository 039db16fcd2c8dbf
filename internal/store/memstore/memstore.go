// Package memstore provides an in-memory implementation of the store
// interfaces. Service-level tests run against it, and it doubles as a
// lightweight backend for embedding without PostgreSQL.
//
// All four facades returned by a Store share the same data and mutex.
// Transactions are no-ops: WithTx returns the facade itself, and the
// caller (the scheduler executor) serializes mutations.
package memstore

import (
	"context"
	"database/sql"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/store"
)

// Store holds the whole collection in memory.
type Store struct {
	mu sync.RWMutex

	cards   map[domain.CardID]*domain.Card
	decks   map[domain.DeckID]*domain.Deck
	configs map[int64]*domain.DeckConfig
	revlog  []*domain.ReviewLog
	col     *domain.Collection
}

// New creates an empty memstore with a default collection, deck, and
// config group.
func New(created time.Time) *Store {
	s := &Store{
		cards:   make(map[domain.CardID]*domain.Card),
		decks:   make(map[domain.DeckID]*domain.Deck),
		configs: make(map[int64]*domain.DeckConfig),
		col: &domain.Collection{
			CreatedAt: created,
			Config:    domain.DefaultCollectionConfig(),
		},
	}
	s.configs[1] = domain.DefaultDeckConfig()
	s.decks[1] = &domain.Deck{ID: 1, Name: "Default", ConfigID: 1}
	return s
}

// Cards returns the card facade.
func (s *Store) Cards() store.CardStore { return &cardStore{s} }

// Decks returns the deck facade.
func (s *Store) Decks() store.DeckStore { return &deckStore{s} }

// Revlog returns the review-log facade.
func (s *Store) Revlog() store.RevlogStore { return &revlogStore{s} }

// Collection returns the collection facade.
func (s *Store) Collection() store.CollectionStore { return &collectionStore{s} }

func cloneCard(c *domain.Card) *domain.Card {
	cp := *c
	return &cp
}

func cloneDeck(d *domain.Deck) *domain.Deck {
	cp := *d
	if d.FilteredParams != nil {
		fp := *d.FilteredParams
		fp.Terms = append([]domain.FilterTerm(nil), d.FilteredParams.Terms...)
		fp.Delays = append([]float64(nil), d.FilteredParams.Delays...)
		cp.FilteredParams = &fp
	}
	return &cp
}

func cloneConfig(c *domain.DeckConfig) *domain.DeckConfig {
	cp := *c
	cp.New.Delays = append([]float64(nil), c.New.Delays...)
	cp.Lapse.Delays = append([]float64(nil), c.Lapse.Delays...)
	return &cp
}

func inDecks(deckIDs []domain.DeckID, id domain.DeckID) bool {
	if deckIDs == nil {
		return true
	}
	for _, d := range deckIDs {
		if d == id {
			return true
		}
	}
	return false
}

// cardStore implements store.CardStore over the shared data.
type cardStore struct{ s *Store }

var _ store.CardStore = (*cardStore)(nil)

func (cs *cardStore) Create(ctx context.Context, card *domain.Card) error {
	if err := card.Validate(); err != nil {
		return store.NewStoreError("card", "create", "validation failed", err)
	}
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	if _, ok := cs.s.cards[card.ID]; ok {
		return store.ErrDuplicate
	}
	cs.s.cards[card.ID] = cloneCard(card)
	return nil
}

func (cs *cardStore) Get(ctx context.Context, id domain.CardID) (*domain.Card, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	c, ok := cs.s.cards[id]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	return cloneCard(c), nil
}

func (cs *cardStore) GetMany(ctx context.Context, ids []domain.CardID) ([]*domain.Card, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	out := make([]*domain.Card, 0, len(ids))
	for _, id := range ids {
		if c, ok := cs.s.cards[id]; ok {
			out = append(out, cloneCard(c))
		}
	}
	return out, nil
}

func (cs *cardStore) Update(ctx context.Context, card *domain.Card) error {
	if err := card.Validate(); err != nil {
		return store.NewStoreError("card", "update", "validation failed", err)
	}
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	if _, ok := cs.s.cards[card.ID]; !ok {
		return store.ErrCardNotFound
	}
	cs.s.cards[card.ID] = cloneCard(card)
	return nil
}

// selectLocked copies every card the predicate matches. Callers hold
// at least the read lock.
func (cs *cardStore) selectLocked(match func(*domain.Card) bool) []*domain.Card {
	var out []*domain.Card
	for _, c := range cs.s.cards {
		if match(c) {
			out = append(out, cloneCard(c))
		}
	}
	return out
}

func sortByDue(cards []*domain.Card) {
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].Due.Value != cards[j].Due.Value {
			return cards[i].Due.Value < cards[j].Due.Value
		}
		return cards[i].ID < cards[j].ID
	})
}

func dueCards(cards []*domain.Card, limit int) []store.DueCard {
	sortByDue(cards)
	out := make([]store.DueCard, 0, len(cards))
	for _, c := range cards {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, store.DueCard{ID: c.ID, Due: c.Due.Value})
	}
	return out
}

func (cs *cardStore) NewCardIDs(ctx context.Context, deckID domain.DeckID, limit int) ([]domain.CardID, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	cards := cs.selectLocked(func(c *domain.Card) bool {
		return c.DeckID == deckID && c.Queue == domain.QueueNew
	})
	sortByDue(cards)
	ids := make([]domain.CardID, 0, len(cards))
	for _, c := range cards {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (cs *cardStore) CountNew(ctx context.Context, deckID domain.DeckID, limit int) (int, error) {
	ids, err := cs.NewCardIDs(ctx, deckID, limit)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (cs *cardStore) SubDayLearnDue(ctx context.Context, deckIDs []domain.DeckID, cutoff int64, limit int) ([]store.DueCard, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	cards := cs.selectLocked(func(c *domain.Card) bool {
		return c.Queue == domain.QueueLearningSubDay && inDecks(deckIDs, c.DeckID) && c.Due.Value < cutoff
	})
	return dueCards(cards, limit), nil
}

func (cs *cardStore) DayLearnDue(ctx context.Context, deckIDs []domain.DeckID, today int64, limit int) ([]store.DueCard, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	cards := cs.selectLocked(func(c *domain.Card) bool {
		return c.Queue == domain.QueueLearningDay && inDecks(deckIDs, c.DeckID) && c.Due.Value <= today
	})
	return dueCards(cards, limit), nil
}

func (cs *cardStore) CountLearn(ctx context.Context, deckID domain.DeckID, cutoff int64, today int64) (int, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	n := len(cs.selectLocked(func(c *domain.Card) bool {
		if c.DeckID != deckID {
			return false
		}
		switch c.Queue {
		case domain.QueueLearningSubDay:
			return c.Due.Value < cutoff
		case domain.QueueLearningDay:
			return c.Due.Value <= today
		default:
			return false
		}
	}))
	return n, nil
}

func (cs *cardStore) ReviewDue(ctx context.Context, deckIDs []domain.DeckID, today int64, limit int) ([]store.DueCard, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	cards := cs.selectLocked(func(c *domain.Card) bool {
		return c.Queue == domain.QueueReview && inDecks(deckIDs, c.DeckID) && c.Due.Value <= today
	})
	return dueCards(cards, limit), nil
}

func (cs *cardStore) CountReview(ctx context.Context, deckID domain.DeckID, today int64, limit int) (int, error) {
	due, err := cs.ReviewDue(ctx, []domain.DeckID{deckID}, today, limit)
	if err != nil {
		return 0, err
	}
	return len(due), nil
}

func (cs *cardStore) Siblings(ctx context.Context, noteID domain.NoteID, exclude domain.CardID) ([]*domain.Card, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	cards := cs.selectLocked(func(c *domain.Card) bool {
		return c.NoteID == noteID && c.ID != exclude
	})
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

func (cs *cardStore) ListByQueue(ctx context.Context, queues []domain.Queue, deckIDs []domain.DeckID) ([]*domain.Card, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	cards := cs.selectLocked(func(c *domain.Card) bool {
		if !inDecks(deckIDs, c.DeckID) {
			return false
		}
		for _, q := range queues {
			if c.Queue == q {
				return true
			}
		}
		return false
	})
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

func (cs *cardStore) ListByDeck(ctx context.Context, deckID domain.DeckID) ([]*domain.Card, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	cards := cs.selectLocked(func(c *domain.Card) bool {
		return c.DeckID == deckID
	})
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

func (cs *cardStore) FilteredMembers(ctx context.Context, deckID domain.DeckID) ([]*domain.Card, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	cards := cs.selectLocked(func(c *domain.Card) bool {
		return c.DeckID == deckID && c.HomeDeckID != 0
	})
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

func (cs *cardStore) FindCards(ctx context.Context, q store.CardQuery) ([]*domain.Card, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()

	var deckScope map[domain.DeckID]bool
	dueOnly := false
	newOnly := false
	for _, tok := range strings.Fields(q.Search) {
		switch {
		case strings.HasPrefix(tok, "deck:"):
			deckScope = cs.deckSubtreeLocked(strings.TrimPrefix(tok, "deck:"))
		case tok == "is:due":
			dueOnly = true
		case tok == "is:new":
			newOnly = true
		}
	}

	cards := cs.selectLocked(func(c *domain.Card) bool {
		if c.Queue.Held() || c.HomeDeckID != 0 {
			return false
		}
		if deckScope != nil && !deckScope[c.DeckID] {
			return false
		}
		if newOnly && c.Queue != domain.QueueNew {
			return false
		}
		if dueOnly {
			switch c.Queue {
			case domain.QueueReview, domain.QueueLearningDay:
				if c.Due.Value > q.Today {
					return false
				}
			case domain.QueueLearningSubDay:
				// sub-day learning is always due today
			default:
				return false
			}
		}
		return true
	})

	orderCards(cards, q.Order)
	if q.Limit > 0 && len(cards) > q.Limit {
		cards = cards[:q.Limit]
	}
	return cards, nil
}

func (cs *cardStore) deckSubtreeLocked(name string) map[domain.DeckID]bool {
	out := make(map[domain.DeckID]bool)
	for id, d := range cs.s.decks {
		if d.Name == name || domain.IsAncestor(name, d.Name) {
			out[id] = true
		}
	}
	return out
}

func orderCards(cards []*domain.Card, order domain.FilteredOrder) {
	less := func(i, j int) bool { return cards[i].ID < cards[j].ID }
	switch order {
	case domain.FilteredOrderOldestSeen:
		less = func(i, j int) bool {
			if !cards[i].ModifiedAt.Equal(cards[j].ModifiedAt) {
				return cards[i].ModifiedAt.Before(cards[j].ModifiedAt)
			}
			return cards[i].ID < cards[j].ID
		}
	case domain.FilteredOrderRandom:
		rand.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
		return
	case domain.FilteredOrderSmallInterval:
		less = func(i, j int) bool {
			if cards[i].Interval != cards[j].Interval {
				return cards[i].Interval < cards[j].Interval
			}
			return cards[i].ID < cards[j].ID
		}
	case domain.FilteredOrderBigInterval:
		less = func(i, j int) bool {
			if cards[i].Interval != cards[j].Interval {
				return cards[i].Interval > cards[j].Interval
			}
			return cards[i].ID < cards[j].ID
		}
	case domain.FilteredOrderLapses:
		less = func(i, j int) bool {
			if cards[i].Lapses != cards[j].Lapses {
				return cards[i].Lapses > cards[j].Lapses
			}
			return cards[i].ID < cards[j].ID
		}
	case domain.FilteredOrderDue:
		less = func(i, j int) bool {
			if cards[i].Due.Value != cards[j].Due.Value {
				return cards[i].Due.Value < cards[j].Due.Value
			}
			return cards[i].ID < cards[j].ID
		}
	}
	sort.Slice(cards, less)
}

func (cs *cardStore) MaxNewPosition(ctx context.Context) (int64, error) {
	cs.s.mu.RLock()
	defer cs.s.mu.RUnlock()
	var maxPos int64
	for _, c := range cs.s.cards {
		if c.Type == domain.CardTypeNew && c.Due.Value > maxPos {
			maxPos = c.Due.Value
		}
	}
	return maxPos, nil
}

func (cs *cardStore) WithTx(tx *sql.Tx) store.CardStore { return cs }

// deckStore implements store.DeckStore over the shared data.
type deckStore struct{ s *Store }

var _ store.DeckStore = (*deckStore)(nil)

func (ds *deckStore) Create(ctx context.Context, deck *domain.Deck) error {
	ds.s.mu.Lock()
	defer ds.s.mu.Unlock()
	for _, d := range ds.s.decks {
		if d.Name == deck.Name {
			return store.ErrDuplicate
		}
	}
	ds.s.decks[deck.ID] = cloneDeck(deck)
	return nil
}

func (ds *deckStore) Get(ctx context.Context, id domain.DeckID) (*domain.Deck, error) {
	ds.s.mu.RLock()
	defer ds.s.mu.RUnlock()
	d, ok := ds.s.decks[id]
	if !ok {
		return nil, store.ErrDeckNotFound
	}
	return cloneDeck(d), nil
}

func (ds *deckStore) GetByName(ctx context.Context, name string) (*domain.Deck, error) {
	ds.s.mu.RLock()
	defer ds.s.mu.RUnlock()
	for _, d := range ds.s.decks {
		if d.Name == name {
			return cloneDeck(d), nil
		}
	}
	return nil, store.ErrDeckNotFound
}

func (ds *deckStore) List(ctx context.Context) ([]*domain.Deck, error) {
	ds.s.mu.RLock()
	defer ds.s.mu.RUnlock()
	out := make([]*domain.Deck, 0, len(ds.s.decks))
	for _, d := range ds.s.decks {
		out = append(out, cloneDeck(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (ds *deckStore) Update(ctx context.Context, deck *domain.Deck) error {
	ds.s.mu.Lock()
	defer ds.s.mu.Unlock()
	if _, ok := ds.s.decks[deck.ID]; !ok {
		return store.ErrDeckNotFound
	}
	ds.s.decks[deck.ID] = cloneDeck(deck)
	return nil
}

func (ds *deckStore) Delete(ctx context.Context, id domain.DeckID) error {
	ds.s.mu.Lock()
	defer ds.s.mu.Unlock()
	if _, ok := ds.s.decks[id]; !ok {
		return store.ErrDeckNotFound
	}
	delete(ds.s.decks, id)
	return nil
}

func (ds *deckStore) Config(ctx context.Context, id int64) (*domain.DeckConfig, error) {
	ds.s.mu.RLock()
	defer ds.s.mu.RUnlock()
	c, ok := ds.s.configs[id]
	if !ok {
		return nil, store.ErrDeckConfigNotFound
	}
	return cloneConfig(c), nil
}

func (ds *deckStore) SaveConfig(ctx context.Context, cfg *domain.DeckConfig) error {
	ds.s.mu.Lock()
	defer ds.s.mu.Unlock()
	ds.s.configs[cfg.ID] = cloneConfig(cfg)
	return nil
}

func (ds *deckStore) WithTx(tx *sql.Tx) store.DeckStore { return ds }

// revlogStore implements store.RevlogStore over the shared data.
type revlogStore struct{ s *Store }

var _ store.RevlogStore = (*revlogStore)(nil)

func (rs *revlogStore) Append(ctx context.Context, log *domain.ReviewLog) error {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	cp := *log
	rs.s.revlog = append(rs.s.revlog, &cp)
	return nil
}

func (rs *revlogStore) Delete(ctx context.Context, id int64) error {
	rs.s.mu.Lock()
	defer rs.s.mu.Unlock()
	for i, l := range rs.s.revlog {
		if l.ID == id {
			rs.s.revlog = append(rs.s.revlog[:i], rs.s.revlog[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (rs *revlogStore) ListForCard(ctx context.Context, cardID domain.CardID) ([]*domain.ReviewLog, error) {
	rs.s.mu.RLock()
	defer rs.s.mu.RUnlock()
	var out []*domain.ReviewLog
	for _, l := range rs.s.revlog {
		if l.CardID == cardID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (rs *revlogStore) WithTx(tx *sql.Tx) store.RevlogStore { return rs }

// collectionStore implements store.CollectionStore over the shared data.
type collectionStore struct{ s *Store }

var _ store.CollectionStore = (*collectionStore)(nil)

func (os *collectionStore) Get(ctx context.Context) (*domain.Collection, error) {
	os.s.mu.RLock()
	defer os.s.mu.RUnlock()
	if os.s.col == nil {
		return nil, store.ErrCollectionNotFound
	}
	cp := *os.s.col
	return &cp, nil
}

func (os *collectionStore) Update(ctx context.Context, col *domain.Collection) error {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	cp := *col
	os.s.col = &cp
	return nil
}

func (os *collectionStore) WithTx(tx *sql.Tx) store.CollectionStore { return os }
