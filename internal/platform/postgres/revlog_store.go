package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/store"
)

// PostgresRevlogStore implements the store.RevlogStore interface using
// a PostgreSQL database as the storage backend.
type PostgresRevlogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresRevlogStore creates a new PostgreSQL implementation of
// the RevlogStore interface.
func NewPostgresRevlogStore(db store.DBTX, logger *slog.Logger) *PostgresRevlogStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRevlogStore{
		db:     db,
		logger: logger.With(slog.String("component", "revlog_store")),
	}
}

// Ensure PostgresRevlogStore implements store.RevlogStore interface
var _ store.RevlogStore = (*PostgresRevlogStore)(nil)

// WithTx implements store.RevlogStore.WithTx
func (s *PostgresRevlogStore) WithTx(tx *sql.Tx) store.RevlogStore {
	return &PostgresRevlogStore{db: tx, logger: s.logger}
}

// Append implements store.RevlogStore.Append
func (s *PostgresRevlogStore) Append(ctx context.Context, log *domain.ReviewLog) error {
	query := `
		INSERT INTO revlog (id, card_id, grade, ivl, last_ivl, factor,
			time_taken_ms, kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		log.ID, int64(log.CardID), int(log.Grade),
		log.Interval, log.LastInterval, log.Factor,
		log.TimeTakenMs, int(log.Kind),
	)
	if err != nil {
		return MapError(err)
	}
	return nil
}

// Delete implements store.RevlogStore.Delete
func (s *PostgresRevlogStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM revlog WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrNotFound)
}

// ListForCard implements store.RevlogStore.ListForCard
func (s *PostgresRevlogStore) ListForCard(ctx context.Context, cardID domain.CardID) ([]*domain.ReviewLog, error) {
	query := `
		SELECT id, card_id, grade, ivl, last_ivl, factor, time_taken_ms, kind
		FROM revlog WHERE card_id = $1 ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, int64(cardID))
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var logs []*domain.ReviewLog
	for rows.Next() {
		var (
			l      domain.ReviewLog
			cardID int64
			grade  int
			kind   int
		)
		err := rows.Scan(&l.ID, &cardID, &grade, &l.Interval, &l.LastInterval,
			&l.Factor, &l.TimeTakenMs, &kind)
		if err != nil {
			return nil, MapError(err)
		}
		l.CardID = domain.CardID(cardID)
		l.Grade = domain.Grade(grade)
		l.Kind = domain.ReviewKind(kind)
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return logs, nil
}
