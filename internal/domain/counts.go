package domain

// Counts is the (new, learning, review) triple for a deck scope. It is
// transient: recomputed from the store, decremented as cards are drawn,
// and restored on undo.
type Counts struct {
	New    int `json:"new"`
	Learn  int `json:"learn"`
	Review int `json:"review"`
}

// Total returns the sum of the three buckets.
func (c Counts) Total() int { return c.New + c.Learn + c.Review }

// IsZero reports whether nothing is due.
func (c Counts) IsZero() bool { return c.Total() == 0 }

// Add returns the element-wise sum.
func (c Counts) Add(o Counts) Counts {
	return Counts{New: c.New + o.New, Learn: c.Learn + o.Learn, Review: c.Review + o.Review}
}

// DeckDueTreeNode mirrors one deck in the hierarchy. Counts include the
// aggregated counts of all descendants, with new counts clamped by the
// deck's remaining daily capacity.
type DeckDueTreeNode struct {
	// Name is the last component of the deck name.
	Name string `json:"name"`

	// FullName is the complete "::"-separated deck name.
	FullName string `json:"full_name"`

	DeckID   DeckID             `json:"deck_id"`
	Filtered bool               `json:"filtered"`
	Counts   Counts             `json:"counts"`
	Children []*DeckDueTreeNode `json:"children,omitempty"`
}
