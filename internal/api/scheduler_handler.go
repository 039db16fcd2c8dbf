package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/recallkit/recall-api/internal/api/shared"
	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/platform/logger"
	"github.com/recallkit/recall-api/internal/redact"
	"github.com/recallkit/recall-api/internal/service/scheduler"
	"github.com/recallkit/recall-api/internal/task"
)

// SchedulerHandler serves the study loop: next card, answers, counts,
// previews, undo.
type SchedulerHandler struct {
	scheduler *scheduler.Service
	tasks     *task.Executor
	logger    *slog.Logger
}

// NewSchedulerHandler creates a new SchedulerHandler.
func NewSchedulerHandler(
	sched *scheduler.Service,
	tasks *task.Executor,
	logger *slog.Logger,
) *SchedulerHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for SchedulerHandler")
	}
	return &SchedulerHandler{
		scheduler: sched,
		tasks:     tasks,
		logger:    logger.With(slog.String("component", "scheduler_handler")),
	}
}

// NextCard handles GET /scheduler/next requests. Responds 204 when the
// active deck has nothing left to study.
func (h *SchedulerHandler) NextCard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	card, counts, err := h.scheduler.NextCard(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	if card == nil {
		log.Debug("no cards available")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NextCardResponse{
		Card:   cardToResponse(card),
		Counts: counts,
	})
}

// AnswerRequest is the body for POST /scheduler/answer.
type AnswerRequest struct {
	CardID      int64  `json:"card_id" validate:"required"`
	Grade       string `json:"grade" validate:"required,oneof=again hard good easy"`
	TimeTakenMs int    `json:"time_taken_ms" validate:"min=0"`
}

// Answer handles POST /scheduler/answer requests.
func (h *SchedulerHandler) Answer(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req AnswerRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}
	grade, err := domain.ParseGrade(req.Grade)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid grade", err)
		return
	}

	var outcome *scheduler.AnswerOutcome
	err = h.tasks.Run(r.Context(), "answer_card", func(ctx context.Context) error {
		var err error
		outcome, err = h.scheduler.AnswerCard(ctx, domain.CardID(req.CardID), grade, req.TimeTakenMs)
		return err
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("card answered",
		slog.Int64("card_id", req.CardID),
		slog.String("grade", req.Grade))
	shared.RespondWithJSON(w, r, http.StatusOK, AnswerResponse{
		Card:   cardToResponse(&outcome.Card),
		Counts: outcome.Counts,
		Leech:  outcome.Leech,
	})
}

// Counts handles GET /scheduler/counts requests.
func (h *SchedulerHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.scheduler.Counts(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, counts)
}

// Preview handles GET /scheduler/preview/{cardID} requests, answering
// with the interval in seconds each grade would produce.
func (h *SchedulerHandler) Preview(w http.ResponseWriter, r *http.Request) {
	cardID, ok := parseIDParam(w, r, "cardID", "Card")
	if !ok {
		return
	}

	ivls, err := h.scheduler.NextIntervals(r.Context(), domain.CardID(cardID))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, PreviewResponse{
		Again: ivls[domain.GradeAgain],
		Hard:  ivls[domain.GradeHard],
		Good:  ivls[domain.GradeGood],
		Easy:  ivls[domain.GradeEasy],
	})
}

// Undo handles POST /scheduler/undo requests.
func (h *SchedulerHandler) Undo(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var cardID domain.CardID
	err := h.tasks.Run(r.Context(), "undo_review", func(ctx context.Context) error {
		var err error
		cardID, err = h.scheduler.Undo(ctx)
		return err
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("review undone", slog.Int64("card_id", int64(cardID)))
	shared.RespondWithJSON(w, r, http.StatusOK, UndoResponse{CardID: int64(cardID)})
}

// SelectDeckRequest is the body for POST /scheduler/select-deck.
type SelectDeckRequest struct {
	DeckID int64 `json:"deck_id" validate:"required"`
}

// SelectDeck handles POST /scheduler/select-deck requests, switching
// the active study scope.
func (h *SchedulerHandler) SelectDeck(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req SelectDeckRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	err := h.tasks.Run(r.Context(), "select_deck", func(ctx context.Context) error {
		return h.scheduler.SelectDeck(ctx, domain.DeckID(req.DeckID))
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Finished handles GET /scheduler/finished requests.
func (h *SchedulerHandler) Finished(w http.ResponseWriter, r *http.Request) {
	report, err := h.scheduler.Finished(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, report)
}

// parseIDParam extracts a positive integer URL parameter, writing the
// error response itself when the parameter is missing or malformed.
func parseIDParam(w http.ResponseWriter, r *http.Request, name, entity string) (int64, bool) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, entity+" ID is required")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+entity+" ID")
		return 0, false
	}
	return id, true
}
