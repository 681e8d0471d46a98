package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterPool_PerKeyBuckets(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	pool := newLimiterPool(1, 2)
	pool.clock = func() time.Time { return now }
	defer pool.Shutdown()

	assert.True(t, pool.Allow("a"))
	assert.True(t, pool.Allow("a"))
	assert.False(t, pool.Allow("a"))
	assert.True(t, pool.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, pool.Allow("a"))
}

func TestLimiterPool_EvictsIdleEntries(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	pool := newLimiterPool(1, 1)
	pool.clock = func() time.Time { return now }
	defer pool.Shutdown()

	pool.Allow("idle")
	now = now.Add(limiterTTL / 2)
	pool.Allow("active")
	now = now.Add(limiterTTL/2 + time.Second)

	pool.evictIdle()

	assert.Equal(t, 1, pool.size())
}
