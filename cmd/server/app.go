package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/recallkit/recall-api/internal/config"
	"github.com/recallkit/recall-api/internal/events"
	"github.com/recallkit/recall-api/internal/platform/postgres"
	"github.com/recallkit/recall-api/internal/service/auth"
	"github.com/recallkit/recall-api/internal/service/scheduler"
	"github.com/recallkit/recall-api/internal/store"
	"github.com/recallkit/recall-api/internal/task"
)

// milestoneLogHandler logs scheduling milestones as they are emitted.
// Leeches in particular deserve a visible INFO line; everything else
// is debug noise.
type milestoneLogHandler struct {
	logger *slog.Logger
}

// HandleEvent implements events.Handler.
func (h *milestoneLogHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	switch event.Type {
	case events.TypeLeechMarked:
		var payload events.LeechMarkedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("failed to unmarshal leech payload: %w", err)
		}
		h.logger.Info("card marked as leech",
			"card_id", payload.CardID,
			"lapses", payload.Lapses,
			"suspended", payload.Suspended)
	case events.TypeDayRolledOver:
		var payload events.DayRolledOverPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return fmt.Errorf("failed to unmarshal rollover payload: %w", err)
		}
		h.logger.Info("day rolled over", "today", payload.Today)
	default:
		h.logger.Debug("scheduler event",
			"event_type", event.Type,
			"event_id", event.ID)
	}
	return nil
}

// application holds the shared dependencies so shutdown can release
// them in one place.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	cardStore       store.CardStore
	deckStore       store.DeckStore
	collectionStore store.CollectionStore
	revlogStore     store.RevlogStore

	tokenService       auth.TokenService
	passphraseVerifier auth.PassphraseVerifier

	eventEmitter *events.InMemoryEmitter
	scheduler    *scheduler.Service
	executor     *task.Executor
}

// newApplication wires every dependency. Core inputs (config, logger,
// db) must already be established.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.tokenService, err = auth.NewTokenService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	app.passphraseVerifier = auth.NewBcryptVerifier()
	logger.Info("authentication initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMin)

	app.cardStore = postgres.NewPostgresCardStore(db, logger)
	app.deckStore = postgres.NewPostgresDeckStore(db, logger)
	app.collectionStore = postgres.NewPostgresCollectionStore(db, logger)
	app.revlogStore = postgres.NewPostgresRevlogStore(db, logger)

	if err := app.syncCollectionConfig(ctx); err != nil {
		return nil, fmt.Errorf("failed to apply scheduler configuration: %w", err)
	}

	app.eventEmitter = events.NewInMemoryEmitter(logger)
	app.eventEmitter.RegisterHandler(&milestoneLogHandler{
		logger: logger.With("component", "milestone_handler"),
	})

	runTx := func(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
		return store.RunInTransaction(ctx, db, fn)
	}
	app.scheduler = scheduler.NewService(
		app.cardStore,
		app.deckStore,
		app.collectionStore,
		app.revlogStore,
		runTx,
		logger,
		scheduler.WithEmitter(app.eventEmitter),
	)

	app.executor = task.NewExecutor(logger)

	logger.Info("application initialized")
	return app, nil
}

// syncCollectionConfig pushes the configured scheduling settings into
// the collection row so environment changes take effect on restart.
func (app *application) syncCollectionConfig(ctx context.Context) error {
	col, err := app.collectionStore.Get(ctx)
	if err != nil {
		return err
	}

	schedCfg := app.config.Scheduler
	changed := false
	if col.Config.RolloverHour != schedCfg.RolloverHour {
		col.Config.RolloverHour = schedCfg.RolloverHour
		changed = true
	}
	if schedCfg.CollapseTimeSecs > 0 && col.Config.CollapseTime != int64(schedCfg.CollapseTimeSecs) {
		col.Config.CollapseTime = int64(schedCfg.CollapseTimeSecs)
		changed = true
	}
	if col.Config.DayLearnFirst != schedCfg.DayLearnFirst {
		col.Config.DayLearnFirst = schedCfg.DayLearnFirst
		changed = true
	}

	if !changed {
		return nil
	}
	if err := app.collectionStore.Update(ctx, col); err != nil {
		return err
	}
	app.logger.Info("collection scheduling settings updated",
		"rollover_hour", col.Config.RolloverHour,
		"collapse_time", col.Config.CollapseTime,
		"day_learn_first", col.Config.DayLearnFirst)
	return nil
}

// Run starts the HTTP server and blocks until shutdown.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup releases application resources in dependency order: drain
// the mutation queue first, then drop the database pool.
func (app *application) cleanup(ctx context.Context) {
	if app.executor != nil {
		if err := app.executor.Stop(ctx); err != nil {
			app.logger.Error("error stopping task executor", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}
