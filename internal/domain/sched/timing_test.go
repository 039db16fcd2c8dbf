package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/recallkit/recall-api/internal/domain"
)

func TestCompute(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	cfg := domain.DefaultCollectionConfig()

	t.Run("mid-day", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
		timing := Compute(now, created, cfg)

		// Day zero is anchored at the creation date's rollover hour.
		assert.Equal(t, int64(9), timing.Today)
		assert.Equal(t, time.Date(2026, 1, 11, 4, 0, 0, 0, time.UTC).Unix(), timing.DayCutoff)
		assert.Equal(t, int64(1200), timing.CollapseTime)
	})

	t.Run("before the rollover hour the previous day continues", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2026, 1, 11, 3, 0, 0, 0, time.UTC)
		timing := Compute(now, created, cfg)

		assert.Equal(t, int64(9), timing.Today)
		assert.Equal(t, time.Date(2026, 1, 11, 4, 0, 0, 0, time.UTC).Unix(), timing.DayCutoff)
	})

	t.Run("exactly at the rollover hour the new day starts", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2026, 1, 11, 4, 0, 0, 0, time.UTC)
		timing := Compute(now, created, cfg)

		assert.Equal(t, int64(10), timing.Today)
		assert.Equal(t, time.Date(2026, 1, 12, 4, 0, 0, 0, time.UTC).Unix(), timing.DayCutoff)
	})

	t.Run("clock before the anchor clamps to day zero", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
		timing := Compute(now, created, cfg)
		assert.Equal(t, int64(0), timing.Today)
	})

	t.Run("negative rollover wraps", func(t *testing.T) {
		t.Parallel()
		wrapped := cfg
		wrapped.RolloverHour = -2
		now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
		timing := Compute(now, created, wrapped)
		assert.Equal(t, time.Date(2026, 1, 10, 22, 0, 0, 0, time.UTC).Unix(), timing.DayCutoff)
	})
}

func TestTimingExpired(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	timing := Compute(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC), created, domain.DefaultCollectionConfig())

	assert.False(t, timing.Expired(time.Date(2026, 1, 11, 3, 59, 59, 0, time.UTC)))
	assert.True(t, timing.Expired(time.Date(2026, 1, 11, 4, 0, 0, 0, time.UTC)))
}

func TestLearnAheadCutoff(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	timing := Compute(now, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), domain.DefaultCollectionConfig())
	assert.Equal(t, now.Unix()+1200, timing.LearnAheadCutoff())
}
