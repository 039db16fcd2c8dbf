package domain

import "time"

// ReviewKind classifies a revlog entry.
type ReviewKind int

const (
	ReviewKindLearn    ReviewKind = 0
	ReviewKindReview   ReviewKind = 1
	ReviewKindRelearn  ReviewKind = 2
	ReviewKindFiltered ReviewKind = 3
	ReviewKindManual   ReviewKind = 4
)

// ReviewLog is one immutable grading record. Interval and LastInterval
// are positive day counts for review schedules and negative second
// counts for learning delays, matching the original log format.
type ReviewLog struct {
	// ID is the log timestamp in epoch milliseconds and doubles as
	// the primary key.
	ID int64

	CardID       CardID
	Grade        Grade
	Interval     int
	LastInterval int
	Factor       int
	TimeTakenMs  int
	Kind         ReviewKind
}

// NewReviewLog stamps a log record at the given time.
func NewReviewLog(now time.Time, cardID CardID, grade Grade) *ReviewLog {
	return &ReviewLog{
		ID:     now.UnixMilli(),
		CardID: cardID,
		Grade:  grade,
	}
}
