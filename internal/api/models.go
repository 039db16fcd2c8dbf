package api

import (
	"time"

	"github.com/recallkit/recall-api/internal/domain"
)

// DueResponse renders the polymorphic due value with its kind spelled
// out, so clients never have to guess what the integer means.
type DueResponse struct {
	Kind  string `json:"kind"`
	Value int64  `json:"value"`
}

// CardResponse represents the scheduling state of a card.
type CardResponse struct {
	ID         int64       `json:"id"`
	NoteID     int64       `json:"note_id"`
	DeckID     int64       `json:"deck_id"`
	HomeDeckID int64       `json:"home_deck_id,omitempty"`
	Type       string      `json:"type"`
	Queue      string      `json:"queue"`
	Due        DueResponse `json:"due"`
	Interval   int         `json:"interval"`
	Factor     int         `json:"factor"`
	Reps       int         `json:"reps"`
	Lapses     int         `json:"lapses"`
	ModifiedAt time.Time   `json:"modified_at"`
}

// NextCardResponse is the payload for GET /scheduler/next.
type NextCardResponse struct {
	Card   CardResponse  `json:"card"`
	Counts domain.Counts `json:"counts"`
}

// AnswerResponse is the payload for POST /scheduler/answer.
type AnswerResponse struct {
	Card   CardResponse  `json:"card"`
	Counts domain.Counts `json:"counts"`
	Leech  bool          `json:"leech"`
}

// PreviewResponse gives the next interval in seconds for each grade.
type PreviewResponse struct {
	Again int64 `json:"again"`
	Hard  int64 `json:"hard"`
	Good  int64 `json:"good"`
	Easy  int64 `json:"easy"`
}

// UndoResponse is the payload for POST /scheduler/undo.
type UndoResponse struct {
	CardID int64 `json:"card_id"`
}

// RebuildResponse is the payload for POST /decks/{deckID}/rebuild.
type RebuildResponse struct {
	Gathered int `json:"gathered"`
}

func dueToResponse(d domain.Due) DueResponse {
	var kind string
	switch d.Kind {
	case domain.DuePosition:
		kind = "position"
	case domain.DueTimestamp:
		kind = "timestamp"
	case domain.DueDay:
		kind = "day"
	default:
		kind = "unset"
	}
	return DueResponse{Kind: kind, Value: d.Value}
}

func cardToResponse(c *domain.Card) CardResponse {
	return CardResponse{
		ID:         int64(c.ID),
		NoteID:     int64(c.NoteID),
		DeckID:     int64(c.DeckID),
		HomeDeckID: int64(c.HomeDeckID),
		Type:       c.Type.String(),
		Queue:      c.Queue.String(),
		Due:        dueToResponse(c.Due),
		Interval:   c.Interval,
		Factor:     c.Factor,
		Reps:       c.Reps,
		Lapses:     c.Lapses,
		ModifiedAt: c.ModifiedAt,
	}
}
