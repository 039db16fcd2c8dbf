package domain

import (
	"errors"
	"fmt"
	"time"
)

// Card-specific validation errors
var (
	// ErrCardIDEmpty is returned when a card ID is zero.
	ErrCardIDEmpty = errors.New("card ID cannot be zero")

	// ErrCardDeckIDEmpty is returned when a card's deck ID is zero.
	ErrCardDeckIDEmpty = errors.New("card deck ID cannot be zero")

	// ErrCardIntervalNegative is returned when a card's interval is negative.
	ErrCardIntervalNegative = errors.New("card interval cannot be negative")

	// ErrCardFactorTooLow is returned when a card's ease factor is below the floor.
	ErrCardFactorTooLow = errors.New("card ease factor cannot be below 1300")
)

// CardID identifies a card. IDs are allocated as epoch milliseconds at
// creation time, so they sort by creation order.
type CardID int64

// NoteID identifies the note a card was generated from. Cards sharing a
// note are siblings for burying purposes.
type NoteID int64

// CardType is the intrinsic scheduling phase of a card. It survives
// suspending and burying, which only touch the queue.
type CardType int

const (
	CardTypeNew        CardType = 0
	CardTypeLearning   CardType = 1
	CardTypeReview     CardType = 2
	CardTypeRelearning CardType = 3
)

// String returns a human-readable name for the card type.
func (t CardType) String() string {
	switch t {
	case CardTypeNew:
		return "new"
	case CardTypeLearning:
		return "learning"
	case CardTypeReview:
		return "review"
	case CardTypeRelearning:
		return "relearning"
	default:
		return fmt.Sprintf("cardtype(%d)", int(t))
	}
}

// Queue is the presentation bucket a card currently sits in. Negative
// values are reversible holds layered on top of the intrinsic phase.
type Queue int

const (
	QueueNew            Queue = 0
	QueueLearningSubDay Queue = 1
	QueueReview         Queue = 2
	QueueLearningDay    Queue = 3
	QueueSuspended      Queue = -1
	QueueBuriedSibling  Queue = -2
	QueueBuriedManual   Queue = -3
)

// String returns a human-readable name for the queue.
func (q Queue) String() string {
	switch q {
	case QueueNew:
		return "new"
	case QueueLearningSubDay:
		return "learning"
	case QueueReview:
		return "review"
	case QueueLearningDay:
		return "day-learning"
	case QueueSuspended:
		return "suspended"
	case QueueBuriedSibling:
		return "buried-sibling"
	case QueueBuriedManual:
		return "buried-manual"
	default:
		return fmt.Sprintf("queue(%d)", int(q))
	}
}

// Held reports whether the queue is one of the reversible holds.
func (q Queue) Held() bool {
	return q == QueueSuspended || q == QueueBuriedSibling || q == QueueBuriedManual
}

// Grade is the user's recall-quality input when answering a card.
type Grade int

const (
	GradeAgain Grade = 1
	GradeHard  Grade = 2
	GradeGood  Grade = 3
	GradeEasy  Grade = 4
)

// Valid reports whether g is one of the four answer buttons.
func (g Grade) Valid() bool {
	return g >= GradeAgain && g <= GradeEasy
}

// String returns a human-readable name for the grade.
func (g Grade) String() string {
	switch g {
	case GradeAgain:
		return "again"
	case GradeHard:
		return "hard"
	case GradeGood:
		return "good"
	case GradeEasy:
		return "easy"
	default:
		return fmt.Sprintf("grade(%d)", int(g))
	}
}

// ParseGrade converts the wire representation of a grade.
func ParseGrade(s string) (Grade, error) {
	switch s {
	case "again":
		return GradeAgain, nil
	case "hard":
		return GradeHard, nil
	case "good":
		return GradeGood, nil
	case "easy":
		return GradeEasy, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidGrade, s)
	}
}

// Card is the per-card scheduling record.
//
// Due is polymorphic (see Due): a position for new cards, an epoch
// timestamp for sub-day learning, and a day number for day-learning and
// review cards. HomeDeckID is non-zero only while the card is inside a
// filtered deck; OriginalDue then snapshots the due value it will be
// restored to on exit. OriginalDue is also used while relearning, where
// it records the day the lapsed interval lands on.
type Card struct {
	ID         CardID
	NoteID     NoteID
	DeckID     DeckID
	HomeDeckID DeckID

	Type  CardType
	Queue Queue

	Due         Due
	OriginalDue Due

	Interval int // days; 0 until first graduation
	Factor   int // ease in permille; floor 1300 once set

	Reps   int
	Lapses int

	// Learning-step progress, meaningful only while Type is Learning
	// or Relearning.
	StepsLeft      int
	StepsLeftToday int

	ModifiedAt time.Time
}

// InFiltered reports whether the card currently lives in a filtered deck.
func (c *Card) InFiltered() bool {
	return c.HomeDeckID != 0
}

// Validate checks structural card invariants, including that the
// (type, queue) pair is one of the finite valid combinations.
func (c *Card) Validate() error {
	if c.ID == 0 {
		return ErrCardIDEmpty
	}
	if c.DeckID == 0 {
		return ErrCardDeckIDEmpty
	}
	if c.Interval < 0 {
		return ErrCardIntervalNegative
	}
	if c.Factor != 0 && c.Factor < MinFactor {
		return ErrCardFactorTooLow
	}
	if !ValidState(c.Type, c.Queue) {
		return fmt.Errorf("%w: type=%s queue=%s", ErrInvalidCardState, c.Type, c.Queue)
	}
	return nil
}

// ValidState reports whether the (type, queue) pair is permitted. The
// holds (suspended, buried) are valid for every type; otherwise only
// the phase-consistent pairs are allowed.
func ValidState(t CardType, q Queue) bool {
	if q.Held() {
		return t >= CardTypeNew && t <= CardTypeRelearning
	}
	switch t {
	case CardTypeNew:
		return q == QueueNew
	case CardTypeLearning, CardTypeRelearning:
		return q == QueueLearningSubDay || q == QueueLearningDay
	case CardTypeReview:
		return q == QueueReview
	default:
		return false
	}
}

// RestoredQueue reconstructs the phase-consistent queue for a held card,
// used when unsuspending, unburying, or pulling a card out of a
// filtered deck. Learning and relearning cards may be seconds-based or
// day-based; the due magnitude decides which.
func RestoredQueue(t CardType, due Due) Queue {
	switch t {
	case CardTypeLearning, CardTypeRelearning:
		if due.Kind == DueTimestamp {
			return QueueLearningSubDay
		}
		return QueueLearningDay
	case CardTypeReview:
		return QueueReview
	default:
		return QueueNew
	}
}

// MinFactor is the ease floor in permille.
const MinFactor = 1300

// StartingFactor is the ease assigned when no deck config overrides it.
const StartingFactor = 2500

// NewCard creates a New card in the given deck at the given insertion
// position.
func NewCard(id CardID, noteID NoteID, deckID DeckID, position int64, now time.Time) (*Card, error) {
	card := &Card{
		ID:         id,
		NoteID:     noteID,
		DeckID:     deckID,
		Type:       CardTypeNew,
		Queue:      QueueNew,
		Due:        PositionDue(position),
		ModifiedAt: now.UTC(),
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	return card, nil
}
