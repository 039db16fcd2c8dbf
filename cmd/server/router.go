package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/recallkit/recall-api/internal/api"
	apimiddleware "github.com/recallkit/recall-api/internal/api/middleware"
)

// setupRouter builds the chi router with middleware, handlers, and
// every route the scheduler exposes.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authHandler := api.NewAuthHandler(
		app.tokenService,
		app.passphraseVerifier,
		app.config.Auth,
		app.logger,
	)
	authMiddleware := apimiddleware.NewAuthMiddleware(app.tokenService)

	schedulerHandler := api.NewSchedulerHandler(app.scheduler, app.executor, app.logger)
	deckHandler := api.NewDeckHandler(app.scheduler, app.executor, app.logger)
	cardHandler := api.NewCardHandler(app.scheduler, app.executor, app.logger)

	r.Route("/api", func(r chi.Router) {
		// Public: passphrase for token exchange.
		r.Post("/auth/token", authHandler.Token)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			// Study loop
			r.Get("/scheduler/next", schedulerHandler.NextCard)
			r.Post("/scheduler/answer", schedulerHandler.Answer)
			r.Get("/scheduler/counts", schedulerHandler.Counts)
			r.Get("/scheduler/preview/{cardID}", schedulerHandler.Preview)
			r.Post("/scheduler/undo", schedulerHandler.Undo)
			r.Post("/scheduler/select-deck", schedulerHandler.SelectDeck)
			r.Get("/scheduler/finished", schedulerHandler.Finished)

			// Decks
			r.Get("/decks/tree", deckHandler.Tree)
			r.Post("/decks/{deckID}/extend-limits", deckHandler.ExtendLimits)
			r.Post("/decks/{deckID}/rebuild", deckHandler.Rebuild)
			r.Post("/decks/{deckID}/empty", deckHandler.Empty)
			r.Delete("/decks/{deckID}", deckHandler.Delete)

			// Bulk card state changes
			r.Post("/cards/bury", cardHandler.Bury)
			r.Post("/cards/unbury", cardHandler.Unbury)
			r.Post("/cards/suspend", cardHandler.Suspend)
			r.Post("/cards/unsuspend", cardHandler.Unsuspend)
			r.Post("/cards/forget", cardHandler.Forget)
			r.Post("/cards/reschedule", cardHandler.Reschedule)
			r.Post("/notes/{noteID}/bury", cardHandler.BuryNote)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
