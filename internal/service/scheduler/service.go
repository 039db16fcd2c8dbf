package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/domain/sched"
	"github.com/recallkit/recall-api/internal/events"
	"github.com/recallkit/recall-api/internal/platform/logger"
	"github.com/recallkit/recall-api/internal/store"
)

// TxRunner executes fn inside a transaction. The production runner is
// store.RunInTransaction; tests pass a passthrough that hands fn a nil
// transaction, which the memstore facades ignore.
type TxRunner func(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error

// undoLimit bounds the undo stack.
const undoLimit = 30

// Service is the queue manager. It is safe for concurrent use, but
// mutations are expected to arrive serialized through the task
// executor; the mutex is the backstop, not the design.
type Service struct {
	cards      store.CardStore
	decks      store.DeckStore
	collection store.CollectionStore
	revlog     store.RevlogStore
	runTx      TxRunner
	emitter    events.Emitter
	nowFunc    func() time.Time
	logger     *slog.Logger

	// cfgCache holds deck config groups; they change rarely and are
	// read on every answer.
	cfgCache *cache.Cache

	mu   sync.Mutex
	sess *session
	undo []*undoEntry
}

// Option configures a Service.
type Option func(*Service)

// WithNowFunc injects the clock, for tests.
func WithNowFunc(f func() time.Time) Option {
	return func(s *Service) { s.nowFunc = f }
}

// WithEmitter injects the event emitter.
func WithEmitter(e events.Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

// NewService creates the queue manager.
func NewService(
	cards store.CardStore,
	decks store.DeckStore,
	collection store.CollectionStore,
	revlog store.RevlogStore,
	runTx TxRunner,
	log *slog.Logger,
	opts ...Option,
) *Service {
	if cards == nil {
		panic("cards store cannot be nil")
	}
	if decks == nil {
		panic("decks store cannot be nil")
	}
	if collection == nil {
		panic("collection store cannot be nil")
	}
	if revlog == nil {
		panic("revlog store cannot be nil")
	}
	if runTx == nil {
		panic("transaction runner cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cards:      cards,
		decks:      decks,
		collection: collection,
		revlog:     revlog,
		runTx:      runTx,
		nowFunc:    time.Now,
		logger:     log.With(slog.String("component", "scheduler")),
		cfgCache:   cache.New(5*time.Minute, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// deckSnapshot is the deck list loaded once per operation, indexed both
// ways. Deck names resolve parent chains without further store hits.
type deckSnapshot struct {
	byID   map[domain.DeckID]*domain.Deck
	byName map[string]*domain.Deck
	sorted []*domain.Deck // by name, parents before children
}

func (s *Service) loadDecks(ctx context.Context) (*deckSnapshot, error) {
	decks, err := s.decks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load decks: %w", err)
	}
	snap := &deckSnapshot{
		byID:   make(map[domain.DeckID]*domain.Deck, len(decks)),
		byName: make(map[string]*domain.Deck, len(decks)),
		sorted: decks,
	}
	for _, d := range decks {
		snap.byID[d.ID] = d
		snap.byName[d.Name] = d
	}
	return snap, nil
}

// ancestors returns the deck's parents, nearest first, skipping
// missing intermediate names.
func (snap *deckSnapshot) ancestors(d *domain.Deck) []*domain.Deck {
	var out []*domain.Deck
	for name := domain.ParentName(d.Name); name != ""; name = domain.ParentName(name) {
		if p, ok := snap.byName[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// childrenOf returns the deck and all its descendants, sorted by name.
func (snap *deckSnapshot) childrenOf(d *domain.Deck) []*domain.Deck {
	out := []*domain.Deck{d}
	for _, c := range snap.sorted {
		if domain.IsAncestor(d.Name, c.Name) {
			out = append(out, c)
		}
	}
	return out
}

// timing loads the collection and fixes the day arithmetic for now.
func (s *Service) timing(ctx context.Context) (sched.Timing, *domain.Collection, error) {
	col, err := s.collection.Get(ctx)
	if err != nil {
		return sched.Timing{}, nil, fmt.Errorf("failed to load collection: %w", err)
	}
	return sched.Compute(s.nowFunc(), col.CreatedAt, col.Config), col, nil
}

// deckConfig resolves a config group through the cache.
func (s *Service) deckConfig(ctx context.Context, id int64) (*domain.DeckConfig, error) {
	key := strconv.FormatInt(id, 10)
	if v, ok := s.cfgCache.Get(key); ok {
		return v.(*domain.DeckConfig), nil
	}
	cfg, err := s.decks.Config(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cfgCache.Set(key, cfg, cache.DefaultExpiration)
	return cfg, nil
}

// SaveDeckConfig persists a config group and drops it from the cache.
func (s *Service) SaveDeckConfig(ctx context.Context, cfg *domain.DeckConfig) error {
	if err := s.decks.SaveConfig(ctx, cfg); err != nil {
		return err
	}
	s.cfgCache.Delete(strconv.FormatInt(cfg.ID, 10))
	return nil
}

// resolveCardConfig returns the effective config and filtered params
// for a card. Cards inside a filtered deck answer with their home
// deck's config; the filtered deck only contributes rebuild params.
func (s *Service) resolveCardConfig(
	ctx context.Context,
	card *domain.Card,
	snap *deckSnapshot,
) (*domain.DeckConfig, *domain.FilteredParams, error) {
	deck, ok := snap.byID[card.DeckID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: deck %d", store.ErrDeckNotFound, card.DeckID)
	}

	var filtered *domain.FilteredParams
	configDeck := deck
	if deck.Filtered && card.InFiltered() {
		filtered = deck.FilteredParams
		home, ok := snap.byID[card.HomeDeckID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: home deck %d", store.ErrDeckNotFound, card.HomeDeckID)
		}
		configDeck = home
	}

	cfg, err := s.deckConfig(ctx, configDeck.ConfigID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve config for deck %q: %w", configDeck.Name, err)
	}
	return cfg, filtered, nil
}

// invalidateSession drops the cached queues; the next read rebuilds
// them from the store. Callers hold s.mu.
func (s *Service) invalidateSession() {
	s.sess = nil
}

// Reset drops the session and undo stack, e.g. after external edits.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateSession()
	s.undo = nil
}

// CheckDay rolls the session over if the day boundary passed, and
// unburies yesterday's cards the first time it runs on a new day.
func (s *Service) CheckDay(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkDayLocked(ctx)
}

func (s *Service) checkDayLocked(ctx context.Context) error {
	timing, col, err := s.timing(ctx)
	if err != nil {
		return err
	}

	if s.sess != nil && s.sess.timing.Expired(s.nowFunc()) {
		s.invalidateSession()
	}

	if col.LastUnburiedDay < timing.Today {
		if err := s.unburyAllLocked(ctx); err != nil {
			return err
		}
		col.LastUnburiedDay = timing.Today
		if err := s.collection.Update(ctx, col); err != nil {
			return fmt.Errorf("failed to persist unbury day: %w", err)
		}
		if s.emitter != nil {
			s.emitter.Emit(ctx, events.NewDayRolledOver(timing.Today))
		}
		log := logger.FromContextOrDefault(ctx, s.logger)
		log.Info("day rolled over", slog.Int64("today", timing.Today))
	}
	return nil
}

// unburyAllLocked restores every buried card in the collection.
func (s *Service) unburyAllLocked(ctx context.Context) error {
	buried, err := s.cards.ListByQueue(ctx,
		[]domain.Queue{domain.QueueBuriedSibling, domain.QueueBuriedManual}, nil)
	if err != nil {
		return fmt.Errorf("failed to list buried cards: %w", err)
	}
	if len(buried) == 0 {
		return nil
	}

	now := s.nowFunc().UTC()
	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cards := s.cards.WithTx(tx)
		for _, c := range buried {
			c.Queue = domain.RestoredQueue(c.Type, c.Due)
			c.ModifiedAt = now
			if err := cards.Update(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateSession()
	return nil
}
