package sched

import (
	"time"

	"github.com/recallkit/recall-api/internal/domain"
)

// Timing fixes the day arithmetic for a scheduling session: the current
// day number, the moment the day rolls over, and the sub-day learning
// look-ahead window.
type Timing struct {
	Now time.Time

	// Today is the day number relative to collection creation, using
	// the configured rollover hour as the day boundary.
	Today int64

	// DayCutoff is the epoch second at which Today ends.
	DayCutoff int64

	// CollapseTime is the window in seconds within which a sub-day
	// learning card is considered due now.
	CollapseTime int64
}

// Compute derives the timing for now from the collection's creation
// time and config.
func Compute(now time.Time, created time.Time, cfg domain.CollectionConfig) Timing {
	rollover := cfg.RolloverHour
	if rollover < 0 {
		rollover += 24
	}

	// Anchor the collection's day zero at its creation date, shifted
	// to the rollover hour.
	anchor := time.Date(
		created.Year(), created.Month(), created.Day(),
		rollover, 0, 0, 0, created.Location(),
	)
	today := int64(now.Sub(anchor) / (24 * time.Hour))
	if now.Before(anchor) {
		today = 0
	}

	cutoff := time.Date(now.Year(), now.Month(), now.Day(), rollover, 0, 0, 0, now.Location())
	if !cutoff.After(now) {
		cutoff = cutoff.AddDate(0, 0, 1)
	}

	return Timing{
		Now:          now,
		Today:        today,
		DayCutoff:    cutoff.Unix(),
		CollapseTime: cfg.CollapseTime,
	}
}

// Expired reports whether the timing's day has rolled over.
func (t Timing) Expired(now time.Time) bool {
	return now.Unix() >= t.DayCutoff
}

// LearnAheadCutoff is the epoch second up to which sub-day learning
// cards count as due.
func (t Timing) LearnAheadCutoff() int64 {
	return t.Now.Unix() + t.CollapseTime
}
