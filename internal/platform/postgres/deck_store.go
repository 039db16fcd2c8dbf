package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/store"
)

// PostgresDeckStore implements the store.DeckStore interface using a
// PostgreSQL database as the storage backend. Deck config groups and
// filtered-deck parameters are stored as JSONB documents, matching the
// original schema's packed-JSON columns.
type PostgresDeckStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresDeckStore creates a new PostgreSQL implementation of the
// DeckStore interface.
func NewPostgresDeckStore(db store.DBTX, logger *slog.Logger) *PostgresDeckStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDeckStore{
		db:     db,
		logger: logger.With(slog.String("component", "deck_store")),
	}
}

// Ensure PostgresDeckStore implements store.DeckStore interface
var _ store.DeckStore = (*PostgresDeckStore)(nil)

// WithTx implements store.DeckStore.WithTx
func (s *PostgresDeckStore) WithTx(tx *sql.Tx) store.DeckStore {
	return &PostgresDeckStore{db: tx, logger: s.logger}
}

const deckColumns = `id, name, config_id, filtered, filtered_params,
	new_today_day, new_today_count, rev_today_day, rev_today_count,
	learn_today_day, learn_today_count, modified_at`

func scanDeck(row interface{ Scan(dest ...any) error }) (*domain.Deck, error) {
	var (
		d      domain.Deck
		params []byte
	)
	err := row.Scan(
		&d.ID, &d.Name, &d.ConfigID, &d.Filtered, &params,
		&d.NewToday.Day, &d.NewToday.Count,
		&d.RevToday.Day, &d.RevToday.Count,
		&d.LearnToday.Day, &d.LearnToday.Count,
		&d.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		var fp domain.FilteredParams
		if err := json.Unmarshal(params, &fp); err != nil {
			return nil, fmt.Errorf("failed to decode filtered params for deck %d: %w", d.ID, err)
		}
		d.FilteredParams = &fp
	}
	return &d, nil
}

func deckParamsJSON(d *domain.Deck) ([]byte, error) {
	if d.FilteredParams == nil {
		return nil, nil
	}
	return json.Marshal(d.FilteredParams)
}

// Create implements store.DeckStore.Create
func (s *PostgresDeckStore) Create(ctx context.Context, deck *domain.Deck) error {
	if err := deck.Validate(); err != nil {
		return store.NewStoreError("deck", "create", "validation failed", err)
	}
	params, err := deckParamsJSON(deck)
	if err != nil {
		return store.NewStoreError("deck", "create", "failed to encode filtered params", err)
	}

	query := `
		INSERT INTO decks (id, name, config_id, filtered, filtered_params,
			new_today_day, new_today_count, rev_today_day, rev_today_count,
			learn_today_day, learn_today_count, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.db.ExecContext(ctx, query,
		int64(deck.ID), deck.Name, deck.ConfigID, deck.Filtered, params,
		deck.NewToday.Day, deck.NewToday.Count,
		deck.RevToday.Day, deck.RevToday.Count,
		deck.LearnToday.Day, deck.LearnToday.Count,
		deck.ModifiedAt,
	)
	if err != nil {
		return MapError(err)
	}
	return nil
}

// Get implements store.DeckStore.Get
func (s *PostgresDeckStore) Get(ctx context.Context, id domain.DeckID) (*domain.Deck, error) {
	query := `SELECT ` + deckColumns + ` FROM decks WHERE id = $1`

	deck, err := scanDeck(s.db.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrDeckNotFound
		}
		return nil, MapError(err)
	}
	return deck, nil
}

// GetByName implements store.DeckStore.GetByName
func (s *PostgresDeckStore) GetByName(ctx context.Context, name string) (*domain.Deck, error) {
	query := `SELECT ` + deckColumns + ` FROM decks WHERE name = $1`

	deck, err := scanDeck(s.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrDeckNotFound
		}
		return nil, MapError(err)
	}
	return deck, nil
}

// List implements store.DeckStore.List
func (s *PostgresDeckStore) List(ctx context.Context) ([]*domain.Deck, error) {
	query := `SELECT ` + deckColumns + ` FROM decks ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var decks []*domain.Deck
	for rows.Next() {
		deck, err := scanDeck(rows)
		if err != nil {
			return nil, MapError(err)
		}
		decks = append(decks, deck)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return decks, nil
}

// Update implements store.DeckStore.Update
func (s *PostgresDeckStore) Update(ctx context.Context, deck *domain.Deck) error {
	if err := deck.Validate(); err != nil {
		return store.NewStoreError("deck", "update", "validation failed", err)
	}
	params, err := deckParamsJSON(deck)
	if err != nil {
		return store.NewStoreError("deck", "update", "failed to encode filtered params", err)
	}

	query := `
		UPDATE decks
		SET name = $2, config_id = $3, filtered = $4, filtered_params = $5,
			new_today_day = $6, new_today_count = $7,
			rev_today_day = $8, rev_today_count = $9,
			learn_today_day = $10, learn_today_count = $11,
			modified_at = $12
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		int64(deck.ID), deck.Name, deck.ConfigID, deck.Filtered, params,
		deck.NewToday.Day, deck.NewToday.Count,
		deck.RevToday.Day, deck.RevToday.Count,
		deck.LearnToday.Day, deck.LearnToday.Count,
		deck.ModifiedAt,
	)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrDeckNotFound)
}

// Delete implements store.DeckStore.Delete
func (s *PostgresDeckStore) Delete(ctx context.Context, id domain.DeckID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM decks WHERE id = $1`, int64(id))
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrDeckNotFound)
}

// Config implements store.DeckStore.Config
func (s *PostgresDeckStore) Config(ctx context.Context, id int64) (*domain.DeckConfig, error) {
	query := `SELECT id, name, config FROM deck_configs WHERE id = $1`

	var (
		cfg     domain.DeckConfig
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&cfg.ID, &cfg.Name, &payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrDeckConfigNotFound
		}
		return nil, MapError(err)
	}
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %d: %w", id, err)
	}
	return &cfg, nil
}

// SaveConfig implements store.DeckStore.SaveConfig
func (s *PostgresDeckStore) SaveConfig(ctx context.Context, cfg *domain.DeckConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return store.NewStoreError("deck_config", "save", "failed to encode config", err)
	}

	query := `
		INSERT INTO deck_configs (id, name, config)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, config = EXCLUDED.config`

	if _, err := s.db.ExecContext(ctx, query, cfg.ID, cfg.Name, payload); err != nil {
		return MapError(err)
	}
	return nil
}

// PostgresCollectionStore implements the store.CollectionStore
// interface. The collection is a single row with a fixed id.
type PostgresCollectionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCollectionStore creates a new PostgreSQL implementation
// of the CollectionStore interface.
func NewPostgresCollectionStore(db store.DBTX, logger *slog.Logger) *PostgresCollectionStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCollectionStore{
		db:     db,
		logger: logger.With(slog.String("component", "collection_store")),
	}
}

// Ensure PostgresCollectionStore implements store.CollectionStore interface
var _ store.CollectionStore = (*PostgresCollectionStore)(nil)

// WithTx implements store.CollectionStore.WithTx
func (s *PostgresCollectionStore) WithTx(tx *sql.Tx) store.CollectionStore {
	return &PostgresCollectionStore{db: tx, logger: s.logger}
}

// Get implements store.CollectionStore.Get
func (s *PostgresCollectionStore) Get(ctx context.Context) (*domain.Collection, error) {
	query := `
		SELECT created_at, rollover_hour, collapse_time, new_spread,
			day_learn_first, last_unburied_day
		FROM collection WHERE id = 1`

	var (
		col       domain.Collection
		newSpread int
	)
	err := s.db.QueryRowContext(ctx, query).Scan(
		&col.CreatedAt,
		&col.Config.RolloverHour, &col.Config.CollapseTime, &newSpread,
		&col.Config.DayLearnFirst, &col.LastUnburiedDay,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrCollectionNotFound
		}
		return nil, MapError(err)
	}
	col.Config.NewSpread = domain.NewSpread(newSpread)
	return &col, nil
}

// Update implements store.CollectionStore.Update
func (s *PostgresCollectionStore) Update(ctx context.Context, col *domain.Collection) error {
	query := `
		UPDATE collection
		SET created_at = $1, rollover_hour = $2, collapse_time = $3,
			new_spread = $4, day_learn_first = $5, last_unburied_day = $6
		WHERE id = 1`

	result, err := s.db.ExecContext(ctx, query,
		col.CreatedAt,
		col.Config.RolloverHour, col.Config.CollapseTime, int(col.Config.NewSpread),
		col.Config.DayLearnFirst, col.LastUnburiedDay,
	)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrCollectionNotFound)
}
