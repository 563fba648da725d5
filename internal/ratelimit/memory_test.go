package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-ai/radiant/internal/clock"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newMemory(t *testing.T, rate float64, burst int) (*MemoryLimiter, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	m := NewMemoryLimiter(rate, burst, clk)
	t.Cleanup(func() { _ = m.Close() })
	return m, clk
}

func allow(t *testing.T, l Limiter, key string) bool {
	t.Helper()
	ok, err := l.Allow(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func TestMemoryLimiterBurstThenRefill(t *testing.T) {
	m, clk := newMemory(t, 1, 3)

	for i := range 3 {
		assert.True(t, allow(t, m, "k"), "request %d within burst", i+1)
	}
	assert.False(t, allow(t, m, "k"))

	clk.Advance(time.Second)
	assert.True(t, allow(t, m, "k"))
	assert.False(t, allow(t, m, "k"))
}

func TestMemoryLimiterTokensCapAtBurst(t *testing.T) {
	m, clk := newMemory(t, 1000, 2)
	allow(t, m, "k")

	clk.Advance(time.Hour)
	assert.True(t, allow(t, m, "k"))
	assert.True(t, allow(t, m, "k"))
	assert.False(t, allow(t, m, "k"))
}

func TestMemoryLimiterIndependentKeys(t *testing.T) {
	m, _ := newMemory(t, 1, 1)
	assert.True(t, allow(t, m, "decide:acme:alice"))
	assert.False(t, allow(t, m, "decide:acme:alice"))
	assert.True(t, allow(t, m, "decide:acme:bob"))
}

func TestMemoryLimiterConcurrent(t *testing.T) {
	m, _ := newMemory(t, 1, 50)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if ok, _ := m.Allow(context.Background(), "shared"); ok {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(50), allowed.Load())
}

func TestMemoryLimiterEvictStale(t *testing.T) {
	m, clk := newMemory(t, 10, 5)
	allow(t, m, "stale")
	clk.Advance(5 * time.Minute)
	allow(t, m, "recent")

	clk.Advance(6 * time.Minute)
	m.evictStale()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.NotContains(t, m.buckets, "stale")
	assert.Contains(t, m.buckets, "recent")
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	for range 100 {
		assert.True(t, allow(t, l, "anything"))
	}
	assert.NoError(t, l.Close())
}
