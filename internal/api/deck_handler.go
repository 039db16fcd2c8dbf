package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/recallkit/recall-api/internal/api/shared"
	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/platform/logger"
	"github.com/recallkit/recall-api/internal/redact"
	"github.com/recallkit/recall-api/internal/service/scheduler"
	"github.com/recallkit/recall-api/internal/task"
)

// DeckHandler serves the deck tree, limit extensions, and filtered
// deck maintenance.
type DeckHandler struct {
	scheduler *scheduler.Service
	tasks     *task.Executor
	logger    *slog.Logger
}

// NewDeckHandler creates a new DeckHandler.
func NewDeckHandler(
	sched *scheduler.Service,
	tasks *task.Executor,
	logger *slog.Logger,
) *DeckHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for DeckHandler")
	}
	return &DeckHandler{
		scheduler: sched,
		tasks:     tasks,
		logger:    logger.With(slog.String("component", "deck_handler")),
	}
}

// Tree handles GET /decks/tree requests.
func (h *DeckHandler) Tree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.scheduler.DeckTree(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, tree)
}

// ExtendLimitsRequest is the body for POST /decks/{deckID}/extend-limits.
type ExtendLimitsRequest struct {
	New    int `json:"new" validate:"min=0"`
	Review int `json:"review" validate:"min=0"`
}

// ExtendLimits handles POST /decks/{deckID}/extend-limits requests,
// granting extra new and review headroom for today only.
func (h *DeckHandler) ExtendLimits(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	deckID, ok := parseIDParam(w, r, "deckID", "Deck")
	if !ok {
		return
	}

	var req ExtendLimitsRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	err := h.tasks.Run(r.Context(), "extend_limits", func(ctx context.Context) error {
		return h.scheduler.ExtendLimits(ctx, domain.DeckID(deckID), req.New, req.Review)
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("limits extended",
		slog.Int64("deck_id", deckID),
		slog.Int("new", req.New),
		slog.Int("review", req.Review))
	w.WriteHeader(http.StatusNoContent)
}

// Rebuild handles POST /decks/{deckID}/rebuild requests for filtered
// decks.
func (h *DeckHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	deckID, ok := parseIDParam(w, r, "deckID", "Deck")
	if !ok {
		return
	}

	var gathered int
	err := h.tasks.Run(r.Context(), "rebuild_filtered", func(ctx context.Context) error {
		var err error
		gathered, err = h.scheduler.RebuildFiltered(ctx, domain.DeckID(deckID))
		return err
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("filtered deck rebuilt",
		slog.Int64("deck_id", deckID),
		slog.Int("gathered", gathered))
	shared.RespondWithJSON(w, r, http.StatusOK, RebuildResponse{Gathered: gathered})
}

// Delete handles DELETE /decks/{deckID} requests, removing the deck
// and its descendants. Filtered members return home first; cards left
// in deleted regular decks move to the default deck.
func (h *DeckHandler) Delete(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	deckID, ok := parseIDParam(w, r, "deckID", "Deck")
	if !ok {
		return
	}

	err := h.tasks.Run(r.Context(), "delete_deck", func(ctx context.Context) error {
		return h.scheduler.DeleteDeck(ctx, domain.DeckID(deckID))
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("deck deleted", slog.Int64("deck_id", deckID))
	w.WriteHeader(http.StatusNoContent)
}

// Empty handles POST /decks/{deckID}/empty requests, returning every
// card in a filtered deck to its home deck.
func (h *DeckHandler) Empty(w http.ResponseWriter, r *http.Request) {
	deckID, ok := parseIDParam(w, r, "deckID", "Deck")
	if !ok {
		return
	}

	err := h.tasks.Run(r.Context(), "empty_filtered", func(ctx context.Context) error {
		return h.scheduler.EmptyFiltered(ctx, domain.DeckID(deckID))
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
