package scheduler

import (
	"container/heap"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/store"
)

// cardQueue is an ordered queue of card ids with O(1) removal by id.
// Removal tombstones the id; Pop and Peek skip tombstones lazily.
type cardQueue struct {
	ids     []domain.CardID
	removed map[domain.CardID]bool
	live    int
}

func newCardQueue(ids []domain.CardID) *cardQueue {
	return &cardQueue{
		ids:     ids,
		removed: make(map[domain.CardID]bool),
		live:    len(ids),
	}
}

func (q *cardQueue) Len() int { return q.live }

func (q *cardQueue) Empty() bool { return q.live == 0 }

// Peek returns the front id without removing it.
func (q *cardQueue) Peek() (domain.CardID, bool) {
	q.skip()
	if len(q.ids) == 0 {
		return 0, false
	}
	return q.ids[0], true
}

// Pop removes and returns the front id.
func (q *cardQueue) Pop() (domain.CardID, bool) {
	q.skip()
	if len(q.ids) == 0 {
		return 0, false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	q.live--
	return id, true
}

// Remove tombstones an id anywhere in the queue, reporting whether
// the id was present.
func (q *cardQueue) Remove(id domain.CardID) bool {
	if q.removed[id] {
		return false
	}
	for _, v := range q.ids {
		if v == id {
			q.removed[id] = true
			q.live--
			return true
		}
	}
	return false
}

func (q *cardQueue) skip() {
	for len(q.ids) > 0 && q.removed[q.ids[0]] {
		delete(q.removed, q.ids[0])
		q.ids = q.ids[1:]
	}
}

// dueHeap is a min-heap of (id, due) pairs ordered by due then id.
type dueHeap []store.DueCard

func (h dueHeap) Len() int { return len(h) }
func (h dueHeap) Less(i, j int) bool {
	if h[i].Due != h[j].Due {
		return h[i].Due < h[j].Due
	}
	return h[i].ID < h[j].ID
}
func (h dueHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *dueHeap) Push(x any)        { *h = append(*h, x.(store.DueCard)) }
func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// learnQueue holds sub-day learning cards ordered by due second.
// Answered cards re-enter with their new due, so it is a heap rather
// than a fill-once slice. The queue stays small, so removal by id is a
// linear scan.
type learnQueue struct {
	h dueHeap
}

func newLearnQueue(cards []store.DueCard) *learnQueue {
	q := &learnQueue{h: append(dueHeap(nil), cards...)}
	heap.Init(&q.h)
	return q
}

func (q *learnQueue) Len() int { return len(q.h) }

// PeekDue returns the front id if its due second is below cutoff.
func (q *learnQueue) PeekDue(cutoff int64) (domain.CardID, bool) {
	if len(q.h) == 0 || q.h[0].Due >= cutoff {
		return 0, false
	}
	return q.h[0].ID, true
}

// PopDue removes and returns the front id if due before cutoff.
func (q *learnQueue) PopDue(cutoff int64) (domain.CardID, bool) {
	if len(q.h) == 0 || q.h[0].Due >= cutoff {
		return 0, false
	}
	dc := heap.Pop(&q.h).(store.DueCard)
	return dc.ID, true
}

// Add inserts a card, typically one that was just answered and stays
// in the sub-day steps.
func (q *learnQueue) Add(id domain.CardID, due int64) {
	heap.Push(&q.h, store.DueCard{ID: id, Due: due})
}

// Remove drops an id from anywhere in the queue, reporting whether
// the id was present.
func (q *learnQueue) Remove(id domain.CardID) bool {
	for i, dc := range q.h {
		if dc.ID == id {
			heap.Remove(&q.h, i)
			return true
		}
	}
	return false
}
