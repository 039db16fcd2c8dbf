package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/recallkit/recall-api/internal/domain"
	"github.com/recallkit/recall-api/internal/store"
)

func TestCardQueue(t *testing.T) {
	t.Parallel()

	q := newCardQueue([]domain.CardID{1, 2, 3})
	assert.Equal(t, 3, q.Len())

	id, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, domain.CardID(1), id)
	assert.Equal(t, 3, q.Len())

	id, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, domain.CardID(1), id)
	assert.Equal(t, 2, q.Len())

	// Tombstoned ids are skipped lazily.
	assert.True(t, q.Remove(3))
	assert.False(t, q.Remove(3))
	assert.Equal(t, 1, q.Len())

	id, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, domain.CardID(2), id)

	_, ok = q.Pop()
	assert.False(t, ok)
	assert.True(t, q.Empty())
}

func TestCardQueueRemoveMissing(t *testing.T) {
	t.Parallel()

	q := newCardQueue([]domain.CardID{1})
	assert.False(t, q.Remove(99))
	assert.Equal(t, 1, q.Len())
}

func TestLearnQueue(t *testing.T) {
	t.Parallel()

	q := newLearnQueue([]store.DueCard{
		{ID: 1, Due: 300},
		{ID: 2, Due: 100},
		{ID: 3, Due: 200},
	})
	assert.Equal(t, 3, q.Len())

	// Ordered by due second regardless of insertion order.
	id, ok := q.PopDue(1000)
	assert.True(t, ok)
	assert.Equal(t, domain.CardID(2), id)

	// Nothing due before the cutoff.
	_, ok = q.PopDue(150)
	assert.False(t, ok)

	id, ok = q.PeekDue(1000)
	assert.True(t, ok)
	assert.Equal(t, domain.CardID(3), id)

	// Re-queued cards merge back in due order.
	q.Add(4, 50)
	id, ok = q.PopDue(1000)
	assert.True(t, ok)
	assert.Equal(t, domain.CardID(4), id)

	assert.True(t, q.Remove(3))
	assert.False(t, q.Remove(3))

	id, ok = q.PopDue(1000)
	assert.True(t, ok)
	assert.Equal(t, domain.CardID(1), id)
	assert.Equal(t, 0, q.Len())
}
