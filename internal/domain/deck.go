package domain

import (
	"errors"
	"strings"
	"time"
)

// Deck-specific validation errors
var (
	// ErrDeckIDEmpty is returned when a deck ID is zero.
	ErrDeckIDEmpty = errors.New("deck ID cannot be zero")

	// ErrDeckNameEmpty is returned when a deck name is empty.
	ErrDeckNameEmpty = errors.New("deck name cannot be empty")

	// ErrDeckNotFiltered is returned when a filtered-deck operation is
	// applied to a regular deck.
	ErrDeckNotFiltered = errors.New("deck is not a filtered deck")
)

// DeckID identifies a deck.
type DeckID int64

// DefaultDeckID is the deck every collection starts with. It cannot be
// deleted, and cards of deleted decks are re-homed into it.
const DefaultDeckID DeckID = 1

// DeckSeparator joins the components of a hierarchical deck name.
const DeckSeparator = "::"

// Deck is a node in the hierarchical deck namespace. Regular decks
// reference a DeckConfig; filtered decks carry their own rebuild
// parameters and re-home cards temporarily.
type Deck struct {
	ID       DeckID
	Name     string
	ConfigID int64

	Filtered       bool
	FilteredParams *FilteredParams

	// Sticky per-deck daily usage, reset at the day boundary.
	NewToday   DayCount
	RevToday   DayCount
	LearnToday DayCount

	ModifiedAt time.Time
}

// DayCount records how much of a daily limit was used on a given day.
// The count is only meaningful while Day matches the current day
// number; ExtendLimits drives it negative to raise today's effective
// limit.
type DayCount struct {
	Day   int64
	Count int
}

// UsedOn returns the used-today count if the entry is for the given
// day, zero otherwise.
func (d DayCount) UsedOn(day int64) int {
	if d.Day == day {
		return d.Count
	}
	return 0
}

// Validate checks deck invariants.
func (d *Deck) Validate() error {
	if d.ID == 0 {
		return ErrDeckIDEmpty
	}
	if strings.TrimSpace(d.Name) == "" {
		return ErrDeckNameEmpty
	}
	if d.Filtered && d.FilteredParams == nil {
		return errors.New("filtered deck must carry rebuild parameters")
	}
	return nil
}

// ParentName returns the name of the deck's immediate parent, or ""
// for a top-level deck.
func ParentName(name string) string {
	idx := strings.LastIndex(name, DeckSeparator)
	if idx < 0 {
		return ""
	}
	return name[:idx]
}

// PathComponents splits a deck name into its hierarchy components.
func PathComponents(name string) []string {
	return strings.Split(name, DeckSeparator)
}

// IsAncestor reports whether parent is a strict ancestor of child in
// the deck namespace.
func IsAncestor(parent, child string) bool {
	return strings.HasPrefix(child, parent+DeckSeparator)
}

// FilteredOrder selects how a filtered deck orders the cards it
// gathers on rebuild.
type FilteredOrder int

const (
	FilteredOrderOldestSeen FilteredOrder = iota
	FilteredOrderRandom
	FilteredOrderSmallInterval
	FilteredOrderBigInterval
	FilteredOrderLapses
	FilteredOrderAdded
	FilteredOrderDue
)

// FilterTerm is one gather pass of a filtered-deck rebuild. Search is
// an opaque predicate handed to the store's card query; the scheduler
// never interprets it.
type FilterTerm struct {
	Search string
	Limit  int
	Order  FilteredOrder
}

// FilteredParams are the ordered rebuild parameters of a filtered deck.
type FilteredParams struct {
	Terms []FilterTerm

	// Resched controls whether grading inside the filtered deck
	// alters the card's real schedule. When false, a graded card is
	// returned home with its snapshot intact.
	Resched bool

	// Delays overrides learning steps (minutes) inside the deck.
	// Empty means the home deck's steps apply.
	Delays []float64
}

// LeechAction is what happens when a card crosses the leech threshold.
type LeechAction int

const (
	LeechActionSuspend LeechAction = iota
	LeechActionTagOnly
)

// NewCardOrder controls how new cards are drawn from a deck.
type NewCardOrder int

const (
	NewCardOrderDue NewCardOrder = iota
	NewCardOrderRandom
)

// NewConfig is the new-card section of a deck config.
type NewConfig struct {
	PerDay        int
	Delays        []float64 // minutes
	GraduatingIvl int       // days, Good graduation
	EasyIvl       int       // days, Easy graduation
	InitialFactor int       // permille
	Bury          bool
	Order         NewCardOrder
}

// LapseConfig is the lapse section of a deck config.
type LapseConfig struct {
	Delays      []float64 // minutes
	Mult        float64
	MinInterval int // days
	LeechFails  int
	LeechAction LeechAction
}

// RevConfig is the review section of a deck config.
type RevConfig struct {
	PerDay         int
	HardFactor     float64
	EasyBonus      float64
	IntervalFactor float64
	MaxInterval    int // days
	Fuzz           bool
	Bury           bool
}

// DeckConfig is a shared or dedicated configuration group.
type DeckConfig struct {
	ID   int64
	Name string

	New   NewConfig
	Lapse LapseConfig
	Rev   RevConfig
}

// DefaultDeckConfig mirrors the stock configuration group.
func DefaultDeckConfig() *DeckConfig {
	return &DeckConfig{
		ID:   1,
		Name: "Default",
		New: NewConfig{
			PerDay:        20,
			Delays:        []float64{1, 10},
			GraduatingIvl: 1,
			EasyIvl:       4,
			InitialFactor: StartingFactor,
			Bury:          true,
			Order:         NewCardOrderDue,
		},
		Lapse: LapseConfig{
			Delays:      []float64{10},
			Mult:        0,
			MinInterval: 1,
			LeechFails:  8,
			LeechAction: LeechActionSuspend,
		},
		Rev: RevConfig{
			PerDay:         200,
			HardFactor:     1.2,
			EasyBonus:      1.3,
			IntervalFactor: 1,
			MaxInterval:    36500,
			Fuzz:           true,
			Bury:           true,
		},
	}
}

// CollectionConfig is collection-wide scheduling configuration.
type CollectionConfig struct {
	// RolloverHour is the local hour at which the day advances.
	RolloverHour int

	// CollapseTime is the look-ahead window in seconds within which a
	// sub-day learning card counts as due now.
	CollapseTime int64

	// NewSpread controls interleaving of new cards with reviews.
	NewSpread NewSpread

	// DayLearnFirst shows day-learning cards before reviews.
	DayLearnFirst bool
}

// NewSpread values.
type NewSpread int

const (
	NewSpreadDistribute NewSpread = iota
	NewSpreadLast
	NewSpreadFirst
)

// Collection is the root object of a scheduling store.
type Collection struct {
	CreatedAt time.Time
	Config    CollectionConfig

	// LastUnburiedDay tracks automatic unburying at day rollover.
	LastUnburiedDay int64
}

// DefaultCollectionConfig mirrors the stock collection settings.
func DefaultCollectionConfig() CollectionConfig {
	return CollectionConfig{
		RolloverHour:  4,
		CollapseTime:  1200,
		NewSpread:     NewSpreadDistribute,
		DayLearnFirst: false,
	}
}
