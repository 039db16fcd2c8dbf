package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/store"
)

// cardColumns is the scan order shared by every card query.
const cardColumns = `id, note_id, deck_id, home_deck_id, ctype, queue, due,
	original_due, ivl, factor, reps, lapses, steps_left, steps_left_today,
	modified_at`

// PostgresCardStore implements the store.CardStore interface using a
// PostgreSQL database as the storage backend.
type PostgresCardStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCardStore creates a new PostgreSQL implementation of the
// CardStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller.
func NewPostgresCardStore(db store.DBTX, logger *slog.Logger) *PostgresCardStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCardStore{
		db:     db,
		logger: logger.With(slog.String("component", "card_store")),
	}
}

// Ensure PostgresCardStore implements store.CardStore interface
var _ store.CardStore = (*PostgresCardStore)(nil)

// WithTx implements store.CardStore.WithTx
func (s *PostgresCardStore) WithTx(tx *sql.Tx) store.CardStore {
	return &PostgresCardStore{db: tx, logger: s.logger}
}

func scanCard(row interface{ Scan(dest ...any) error }) (*domain.Card, error) {
	var (
		c        domain.Card
		ctype    int
		queue    int
		dueRaw   int64
		odueRaw  int64
	)
	err := row.Scan(
		&c.ID, &c.NoteID, &c.DeckID, &c.HomeDeckID,
		&ctype, &queue, &dueRaw, &odueRaw,
		&c.Interval, &c.Factor, &c.Reps, &c.Lapses,
		&c.StepsLeft, &c.StepsLeftToday, &c.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Type = domain.CardType(ctype)
	c.Queue = domain.Queue(queue)
	c.Due = domain.DecodeDue(dueRaw, c.Type, c.Queue)
	c.OriginalDue = domain.DecodeOriginalDue(odueRaw, c.Type)
	return &c, nil
}

// Create implements store.CardStore.Create
func (s *PostgresCardStore) Create(ctx context.Context, card *domain.Card) error {
	if err := card.Validate(); err != nil {
		return store.NewStoreError("card", "create", "validation failed", err)
	}

	query := `
		INSERT INTO cards (id, note_id, deck_id, home_deck_id, ctype, queue,
			due, original_due, ivl, factor, reps, lapses, steps_left,
			steps_left_today, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.db.ExecContext(ctx, query,
		int64(card.ID), int64(card.NoteID), int64(card.DeckID), int64(card.HomeDeckID),
		int(card.Type), int(card.Queue), card.Due.Raw(), card.OriginalDue.Raw(),
		card.Interval, card.Factor, card.Reps, card.Lapses,
		card.StepsLeft, card.StepsLeftToday, card.ModifiedAt,
	)
	if err != nil {
		return MapError(err)
	}
	return nil
}

// Get implements store.CardStore.Get
func (s *PostgresCardStore) Get(ctx context.Context, id domain.CardID) (*domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1`

	card, err := scanCard(s.db.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrCardNotFound
		}
		return nil, MapError(err)
	}
	return card, nil
}

func (s *PostgresCardStore) queryCards(ctx context.Context, query string, args ...any) ([]*domain.Card, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var cards []*domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, MapError(err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return cards, nil
}

// GetMany implements store.CardStore.GetMany
func (s *PostgresCardStore) GetMany(ctx context.Context, ids []domain.CardID) ([]*domain.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = ANY($1) ORDER BY id`
	return s.queryCards(ctx, query, raw)
}

// Update implements store.CardStore.Update
func (s *PostgresCardStore) Update(ctx context.Context, card *domain.Card) error {
	if err := card.Validate(); err != nil {
		return store.NewStoreError("card", "update", "validation failed", err)
	}

	query := `
		UPDATE cards
		SET note_id = $2, deck_id = $3, home_deck_id = $4, ctype = $5,
			queue = $6, due = $7, original_due = $8, ivl = $9, factor = $10,
			reps = $11, lapses = $12, steps_left = $13, steps_left_today = $14,
			modified_at = $15
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		int64(card.ID), int64(card.NoteID), int64(card.DeckID), int64(card.HomeDeckID),
		int(card.Type), int(card.Queue), card.Due.Raw(), card.OriginalDue.Raw(),
		card.Interval, card.Factor, card.Reps, card.Lapses,
		card.StepsLeft, card.StepsLeftToday, card.ModifiedAt,
	)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrCardNotFound)
}

// limitArg turns a non-positive limit into NULL, which Postgres treats
// as LIMIT ALL.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func deckIDArgs(deckIDs []domain.DeckID) []int64 {
	raw := make([]int64, len(deckIDs))
	for i, id := range deckIDs {
		raw[i] = int64(id)
	}
	return raw
}

// NewCardIDs implements store.CardStore.NewCardIDs
func (s *PostgresCardStore) NewCardIDs(ctx context.Context, deckID domain.DeckID, limit int) ([]domain.CardID, error) {
	query := `
		SELECT id FROM cards
		WHERE deck_id = $1 AND queue = $2
		ORDER BY due, id
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, int64(deckID), int(domain.QueueNew), limitArg(limit))
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var ids []domain.CardID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, MapError(err)
		}
		ids = append(ids, domain.CardID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return ids, nil
}

// CountNew implements store.CardStore.CountNew
func (s *PostgresCardStore) CountNew(ctx context.Context, deckID domain.DeckID, limit int) (int, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT 1 FROM cards
			WHERE deck_id = $1 AND queue = $2
			LIMIT $3
		) capped`

	var n int
	err := s.db.QueryRowContext(ctx, query, int64(deckID), int(domain.QueueNew), limitArg(limit)).Scan(&n)
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

func (s *PostgresCardStore) dueCards(ctx context.Context, query string, args ...any) ([]store.DueCard, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var out []store.DueCard
	for rows.Next() {
		var dc store.DueCard
		var id int64
		if err := rows.Scan(&id, &dc.Due); err != nil {
			return nil, MapError(err)
		}
		dc.ID = domain.CardID(id)
		out = append(out, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return out, nil
}

// SubDayLearnDue implements store.CardStore.SubDayLearnDue
func (s *PostgresCardStore) SubDayLearnDue(ctx context.Context, deckIDs []domain.DeckID, cutoff int64, limit int) ([]store.DueCard, error) {
	query := `
		SELECT id, due FROM cards
		WHERE queue = $1 AND deck_id = ANY($2) AND due < $3
		ORDER BY due, id
		LIMIT $4`
	return s.dueCards(ctx, query, int(domain.QueueLearningSubDay), deckIDArgs(deckIDs), cutoff, limitArg(limit))
}

// DayLearnDue implements store.CardStore.DayLearnDue
func (s *PostgresCardStore) DayLearnDue(ctx context.Context, deckIDs []domain.DeckID, today int64, limit int) ([]store.DueCard, error) {
	query := `
		SELECT id, due FROM cards
		WHERE queue = $1 AND deck_id = ANY($2) AND due <= $3
		ORDER BY due, id
		LIMIT $4`
	return s.dueCards(ctx, query, int(domain.QueueLearningDay), deckIDArgs(deckIDs), today, limitArg(limit))
}

// CountLearn implements store.CardStore.CountLearn
func (s *PostgresCardStore) CountLearn(ctx context.Context, deckID domain.DeckID, cutoff int64, today int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM cards
		WHERE deck_id = $1
		  AND ((queue = $2 AND due < $3) OR (queue = $4 AND due <= $5))`

	var n int
	err := s.db.QueryRowContext(ctx, query,
		int64(deckID),
		int(domain.QueueLearningSubDay), cutoff,
		int(domain.QueueLearningDay), today,
	).Scan(&n)
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

// ReviewDue implements store.CardStore.ReviewDue
func (s *PostgresCardStore) ReviewDue(ctx context.Context, deckIDs []domain.DeckID, today int64, limit int) ([]store.DueCard, error) {
	query := `
		SELECT id, due FROM cards
		WHERE queue = $1 AND deck_id = ANY($2) AND due <= $3
		ORDER BY due, id
		LIMIT $4`
	return s.dueCards(ctx, query, int(domain.QueueReview), deckIDArgs(deckIDs), today, limitArg(limit))
}

// CountReview implements store.CardStore.CountReview
func (s *PostgresCardStore) CountReview(ctx context.Context, deckID domain.DeckID, today int64, limit int) (int, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT 1 FROM cards
			WHERE deck_id = $1 AND queue = $2 AND due <= $3
			LIMIT $4
		) capped`

	var n int
	err := s.db.QueryRowContext(ctx, query,
		int64(deckID), int(domain.QueueReview), today, limitArg(limit),
	).Scan(&n)
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

// Siblings implements store.CardStore.Siblings
func (s *PostgresCardStore) Siblings(ctx context.Context, noteID domain.NoteID, exclude domain.CardID) ([]*domain.Card, error) {
	query := `SELECT ` + cardColumns + `
		FROM cards WHERE note_id = $1 AND id <> $2 ORDER BY id`
	return s.queryCards(ctx, query, int64(noteID), int64(exclude))
}

// ListByQueue implements store.CardStore.ListByQueue
func (s *PostgresCardStore) ListByQueue(ctx context.Context, queues []domain.Queue, deckIDs []domain.DeckID) ([]*domain.Card, error) {
	qs := make([]int64, len(queues))
	for i, q := range queues {
		qs[i] = int64(q)
	}
	if deckIDs == nil {
		query := `SELECT ` + cardColumns + `
			FROM cards WHERE queue = ANY($1) ORDER BY id`
		return s.queryCards(ctx, query, qs)
	}
	query := `SELECT ` + cardColumns + `
		FROM cards WHERE queue = ANY($1) AND deck_id = ANY($2) ORDER BY id`
	return s.queryCards(ctx, query, qs, deckIDArgs(deckIDs))
}

// ListByDeck implements store.CardStore.ListByDeck
func (s *PostgresCardStore) ListByDeck(ctx context.Context, deckID domain.DeckID) ([]*domain.Card, error) {
	query := `SELECT ` + cardColumns + `
		FROM cards WHERE deck_id = $1 ORDER BY id`
	return s.queryCards(ctx, query, int64(deckID))
}

// FilteredMembers implements store.CardStore.FilteredMembers
func (s *PostgresCardStore) FilteredMembers(ctx context.Context, deckID domain.DeckID) ([]*domain.Card, error) {
	query := `SELECT ` + cardColumns + `
		FROM cards WHERE deck_id = $1 AND home_deck_id <> 0 ORDER BY id`
	return s.queryCards(ctx, query, int64(deckID))
}

// FindCards implements store.CardStore.FindCards. See store.CardQuery
// for the supported search terms.
func (s *PostgresCardStore) FindCards(ctx context.Context, q store.CardQuery) ([]*domain.Card, error) {
	conds := []string{"c.queue >= 0", "c.home_deck_id = 0"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, tok := range strings.Fields(q.Search) {
		switch {
		case strings.HasPrefix(tok, "deck:"):
			name := strings.TrimPrefix(tok, "deck:")
			conds = append(conds, fmt.Sprintf(
				`c.deck_id IN (SELECT id FROM decks WHERE name = %s OR name LIKE %s)`,
				arg(name), arg(name+domain.DeckSeparator+"%")))
		case tok == "is:due":
			conds = append(conds, fmt.Sprintf(
				`(c.queue = %s OR ((c.queue = %s OR c.queue = %s) AND c.due <= %s))`,
				arg(int(domain.QueueLearningSubDay)),
				arg(int(domain.QueueReview)), arg(int(domain.QueueLearningDay)),
				arg(q.Today)))
		case tok == "is:new":
			conds = append(conds, fmt.Sprintf("c.queue = %s", arg(int(domain.QueueNew))))
		default:
			return nil, fmt.Errorf("%w: unsupported search term %q", domain.ErrValidation, tok)
		}
	}

	orderBy := "c.id"
	switch q.Order {
	case domain.FilteredOrderOldestSeen:
		orderBy = "c.modified_at, c.id"
	case domain.FilteredOrderRandom:
		orderBy = "random()"
	case domain.FilteredOrderSmallInterval:
		orderBy = "c.ivl, c.id"
	case domain.FilteredOrderBigInterval:
		orderBy = "c.ivl DESC, c.id"
	case domain.FilteredOrderLapses:
		orderBy = "c.lapses DESC, c.id"
	case domain.FilteredOrderDue:
		orderBy = "c.due, c.id"
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.note_id, c.deck_id, c.home_deck_id, c.ctype, c.queue,
			c.due, c.original_due, c.ivl, c.factor, c.reps, c.lapses,
			c.steps_left, c.steps_left_today, c.modified_at
		FROM cards c
		WHERE %s
		ORDER BY %s
		LIMIT %s`,
		strings.Join(conds, " AND "), orderBy, arg(limitArg(q.Limit)))

	return s.queryCards(ctx, query, args...)
}

// MaxNewPosition implements store.CardStore.MaxNewPosition
func (s *PostgresCardStore) MaxNewPosition(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(MAX(due), 0) FROM cards WHERE ctype = $1`

	var pos int64
	err := s.db.QueryRowContext(ctx, query, int(domain.CardTypeNew)).Scan(&pos)
	if err != nil {
		return 0, MapError(err)
	}
	return pos, nil
}
