// Package events decouples the scheduler from the components that
// react to scheduling milestones: leech flagging, day rollover, and
// filtered deck changes. The scheduler emits; handlers subscribe.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/recallkit/recall-api/internal/domain"
)

// Event types emitted by the scheduler.
const (
	TypeLeechMarked   = "card.leech_marked"
	TypeDayRolledOver = "collection.day_rolled_over"
	TypeDeckRebuilt   = "deck.filtered_rebuilt"
	TypeReviewUndone  = "card.review_undone"
)

// Event is one scheduling milestone. The payload is serialized JSON so
// handlers stay decoupled from the emitting package's types.
type Event struct {
	// ID is a unique identifier for this event.
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants.
	Type string `json:"type"`

	// Payload contains the event-specific data serialized as JSON.
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created.
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

func newEvent(eventType string, payload any) *Event {
	// The payload structs below contain only marshalable fields.
	payloadBytes, _ := json.Marshal(payload)
	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now(),
	}
}

// LeechMarkedPayload accompanies TypeLeechMarked.
type LeechMarkedPayload struct {
	CardID domain.CardID `json:"card_id"`
	Lapses int           `json:"lapses"`

	// Suspended is true when the leech action also suspended the card.
	Suspended bool `json:"suspended"`
}

// NewLeechMarked builds a leech event.
func NewLeechMarked(cardID domain.CardID, lapses int, suspended bool) *Event {
	return newEvent(TypeLeechMarked, LeechMarkedPayload{
		CardID: cardID, Lapses: lapses, Suspended: suspended,
	})
}

// DayRolledOverPayload accompanies TypeDayRolledOver.
type DayRolledOverPayload struct {
	Today int64 `json:"today"`
}

// NewDayRolledOver builds a day-rollover event.
func NewDayRolledOver(today int64) *Event {
	return newEvent(TypeDayRolledOver, DayRolledOverPayload{Today: today})
}

// DeckRebuiltPayload accompanies TypeDeckRebuilt.
type DeckRebuiltPayload struct {
	DeckID domain.DeckID `json:"deck_id"`
	Cards  int           `json:"cards"`
}

// NewDeckRebuilt builds a filtered-deck-rebuilt event.
func NewDeckRebuilt(deckID domain.DeckID, cards int) *Event {
	return newEvent(TypeDeckRebuilt, DeckRebuiltPayload{DeckID: deckID, Cards: cards})
}

// ReviewUndonePayload accompanies TypeReviewUndone.
type ReviewUndonePayload struct {
	CardID domain.CardID `json:"card_id"`
}

// NewReviewUndone builds a review-undone event.
func NewReviewUndone(cardID domain.CardID) *Event {
	return newEvent(TypeReviewUndone, ReviewUndonePayload{CardID: cardID})
}

// Handler processes events. Handlers must tolerate replays and must
// not block for long; the emitter dispatches synchronously.
type Handler interface {
	HandleEvent(ctx context.Context, event *Event) error
}

// Emitter publishes events to registered handlers.
type Emitter interface {
	Emit(ctx context.Context, event *Event) error
}
