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

// CardHandler serves bulk card state changes: burying, suspending,
// forgetting, rescheduling.
type CardHandler struct {
	scheduler *scheduler.Service
	tasks     *task.Executor
	logger    *slog.Logger
}

// NewCardHandler creates a new CardHandler.
func NewCardHandler(
	sched *scheduler.Service,
	tasks *task.Executor,
	logger *slog.Logger,
) *CardHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CardHandler")
	}
	return &CardHandler{
		scheduler: sched,
		tasks:     tasks,
		logger:    logger.With(slog.String("component", "card_handler")),
	}
}

// CardIDsRequest is the body shared by the bulk card operations.
type CardIDsRequest struct {
	CardIDs []int64 `json:"card_ids" validate:"required,min=1"`
}

// BuryRequest is the body for POST /cards/bury. Manual defaults to
// true; sibling burial is what the scheduler applies on its own, but
// clients syncing external state may need to reproduce it.
type BuryRequest struct {
	CardIDs []int64 `json:"card_ids" validate:"required,min=1"`
	Manual  *bool   `json:"manual"`
}

// Bury handles POST /cards/bury requests.
func (h *CardHandler) Bury(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req BuryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}
	manual := req.Manual == nil || *req.Manual

	h.runBulk(w, r, "bury_cards", req.CardIDs, func(ctx context.Context, ids []domain.CardID) error {
		return h.scheduler.BuryCards(ctx, ids, manual)
	})
}

// UnburyRequest is the body for POST /cards/unbury. Kind scopes the
// release to "manual" or "siblings"; empty or "all" releases both.
type UnburyRequest struct {
	CardIDs []int64 `json:"card_ids" validate:"required,min=1"`
	Kind    string  `json:"kind" validate:"omitempty,oneof=all manual siblings"`
}

func unburyKind(kind string) scheduler.UnburyKind {
	switch kind {
	case "manual":
		return scheduler.UnburyManual
	case "siblings":
		return scheduler.UnburySibling
	default:
		return scheduler.UnburyAll
	}
}

// Unbury handles POST /cards/unbury requests.
func (h *CardHandler) Unbury(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req UnburyRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}
	kind := unburyKind(req.Kind)

	h.runBulk(w, r, "unbury_cards", req.CardIDs, func(ctx context.Context, ids []domain.CardID) error {
		return h.scheduler.UnburyCards(ctx, ids, kind)
	})
}

// Suspend handles POST /cards/suspend requests.
func (h *CardHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.bulkOp(w, r, "suspend_cards", h.scheduler.SuspendCards)
}

// Unsuspend handles POST /cards/unsuspend requests.
func (h *CardHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	h.bulkOp(w, r, "unsuspend_cards", h.scheduler.UnsuspendCards)
}

// Forget handles POST /cards/forget requests, resetting cards to new.
func (h *CardHandler) Forget(w http.ResponseWriter, r *http.Request) {
	h.bulkOp(w, r, "forget_cards", h.scheduler.ForgetCards)
}

// bulkOp decodes a CardIDsRequest and runs the operation on the task
// executor.
func (h *CardHandler) bulkOp(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	op func(ctx context.Context, ids []domain.CardID) error,
) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CardIDsRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	h.runBulk(w, r, name, req.CardIDs, op)
}

// runBulk converts ids, runs the operation on the task executor, and
// answers 204 on success.
func (h *CardHandler) runBulk(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	rawIDs []int64,
	op func(ctx context.Context, ids []domain.CardID) error,
) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ids := make([]domain.CardID, 0, len(rawIDs))
	for _, id := range rawIDs {
		ids = append(ids, domain.CardID(id))
	}

	err := h.tasks.Run(r.Context(), name, func(ctx context.Context) error {
		return op(ctx, ids)
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("bulk card operation applied",
		slog.String("operation", name),
		slog.Int("count", len(rawIDs)))
	w.WriteHeader(http.StatusNoContent)
}

// RescheduleRequest is the body for POST /cards/reschedule.
type RescheduleRequest struct {
	CardIDs []int64 `json:"card_ids" validate:"required,min=1"`
	MinDays int     `json:"min_days" validate:"min=0"`
	MaxDays int     `json:"max_days" validate:"min=0"`
}

// Reschedule handles POST /cards/reschedule requests, placing cards in
// the review queue with an interval drawn from [min_days, max_days].
func (h *CardHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req RescheduleRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Warn("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	ids := make([]domain.CardID, 0, len(req.CardIDs))
	for _, id := range req.CardIDs {
		ids = append(ids, domain.CardID(id))
	}

	err := h.tasks.Run(r.Context(), "reschedule_cards", func(ctx context.Context) error {
		return h.scheduler.RescheduleCards(ctx, ids, req.MinDays, req.MaxDays)
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("cards rescheduled", slog.Int("count", len(ids)))
	w.WriteHeader(http.StatusNoContent)
}

// BuryNote handles POST /notes/{noteID}/bury requests, burying every
// card generated from the note.
func (h *CardHandler) BuryNote(w http.ResponseWriter, r *http.Request) {
	noteID, ok := parseIDParam(w, r, "noteID", "Note")
	if !ok {
		return
	}

	err := h.tasks.Run(r.Context(), "bury_note", func(ctx context.Context) error {
		return h.scheduler.BuryNote(ctx, domain.NoteID(noteID))
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
