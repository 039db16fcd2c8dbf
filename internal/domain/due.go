package domain

import "fmt"

// DueKind discriminates the polymorphic due field. The original schema
// stored all three meanings in one bare integer, selected implicitly by
// (type, queue); modelling it as a tagged union removes a class of
// due-semantics bugs.
type DueKind int

const (
	// DueUnset is the zero value; OriginalDue is unset for cards
	// outside filtered decks and relearning.
	DueUnset DueKind = iota

	// DuePosition orders new cards by insertion position.
	DuePosition

	// DueTimestamp is epoch seconds, used by sub-day learning cards.
	DueTimestamp

	// DueDay is a day number relative to collection creation, used by
	// day-learning and review cards.
	DueDay
)

// timestampThreshold separates persisted day numbers from persisted
// epoch timestamps when decoding a raw due integer. Matches the
// original schema's convention.
const timestampThreshold = 1_000_000_000

// Due is the tagged due value.
type Due struct {
	Kind  DueKind
	Value int64
}

// PositionDue returns a new-card position due.
func PositionDue(pos int64) Due { return Due{Kind: DuePosition, Value: pos} }

// TimestampDue returns an epoch-seconds due for sub-day learning.
func TimestampDue(sec int64) Due { return Due{Kind: DueTimestamp, Value: sec} }

// DayDue returns a day-number due.
func DayDue(day int64) Due { return Due{Kind: DueDay, Value: day} }

// IsZero reports whether the due is unset.
func (d Due) IsZero() bool { return d.Kind == DueUnset }

// String renders the due for logs.
func (d Due) String() string {
	switch d.Kind {
	case DuePosition:
		return fmt.Sprintf("pos:%d", d.Value)
	case DueTimestamp:
		return fmt.Sprintf("ts:%d", d.Value)
	case DueDay:
		return fmt.Sprintf("day:%d", d.Value)
	default:
		return "unset"
	}
}

// Raw encodes the due as the single integer the store persists.
func (d Due) Raw() int64 { return d.Value }

// DecodeDue reconstructs the tagged due from a persisted integer and
// the card state it belongs to. OriginalDue snapshots use the same
// scheme with zero meaning unset.
func DecodeDue(raw int64, t CardType, q Queue) Due {
	if q.Held() {
		// Holds keep the due of the underlying phase.
		return decodeByType(raw, t)
	}
	switch q {
	case QueueNew:
		return PositionDue(raw)
	case QueueLearningSubDay:
		return TimestampDue(raw)
	case QueueLearningDay, QueueReview:
		return DayDue(raw)
	default:
		return decodeByType(raw, t)
	}
}

// DecodeOriginalDue reconstructs an OriginalDue snapshot. Zero is
// unset; large values are timestamps from a sub-day learning snapshot.
func DecodeOriginalDue(raw int64, t CardType) Due {
	if raw == 0 {
		return Due{}
	}
	return decodeByType(raw, t)
}

func decodeByType(raw int64, t CardType) Due {
	switch t {
	case CardTypeNew:
		return PositionDue(raw)
	case CardTypeLearning, CardTypeRelearning:
		if raw > timestampThreshold {
			return TimestampDue(raw)
		}
		return DayDue(raw)
	default:
		return DayDue(raw)
	}
}
