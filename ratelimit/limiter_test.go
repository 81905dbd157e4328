package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/paygate/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testPolicy = Policy{Window: time.Minute, MaxRequests: 10, BlockDuration: 5 * time.Minute}

func newTestLimiter(clock *fakeClock) *Limiter {
	return New(Config{
		Enabled:  true,
		Policies: map[Class]Policy{ClassBalanceCheck: testPolicy},
	}, WithClock(clock.Now))
}

func TestEleventhRequestBlocked(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 1; i <= 10; i++ {
		d := l.Check(ClassBalanceCheck, "wallet-1")
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 10-i, d.Remaining)
		assert.False(t, d.Blocked)
	}

	d := l.Check(ClassBalanceCheck, "wallet-1")
	assert.False(t, d.Allowed)
	assert.True(t, d.Blocked)
	assert.Equal(t, testPolicy.BlockDuration, d.RetryAfter)

	clock.Advance(time.Minute)
	d = l.Check(ClassBalanceCheck, "wallet-1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 4*time.Minute, d.RetryAfter)

	// Other identifiers are unaffected
	assert.True(t, l.Check(ClassBalanceCheck, "wallet-2").Allowed)
}

func TestAllowedAgainAfterBlockWithFreshWindow(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < 11; i++ {
		l.Check(ClassBalanceCheck, "wallet-1")
	}

	clock.Advance(testPolicy.BlockDuration)
	d := l.Check(ClassBalanceCheck, "wallet-1")
	require.True(t, d.Allowed)
	assert.Equal(t, testPolicy.MaxRequests-1, d.Remaining)
}

func TestWindowResets(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < 10; i++ {
		require.True(t, l.Check(ClassBalanceCheck, "wallet-1").Allowed)
	}

	clock.Advance(testPolicy.Window)
	d := l.Check(ClassBalanceCheck, "wallet-1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.Remaining)
}

func TestUnknownClassIsUnbounded(t *testing.T) {
	l := newTestLimiter(newFakeClock())

	for i := 0; i < 100; i++ {
		d := l.Check(Class("leaderboard"), "wallet-1")
		require.True(t, d.Allowed)
		require.True(t, d.Unbounded)
	}
	assert.Equal(t, 0, l.Len())

	d := l.Check(ClassBalanceCheck, "wallet-1")
	assert.False(t, d.Unbounded)
}

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	l := New(Config{Enabled: false, Policies: map[Class]Policy{ClassPayment: {Window: time.Minute, MaxRequests: 1, BlockDuration: time.Hour}}})

	for i := 0; i < 1000; i++ {
		d := l.Check(ClassPayment, "wallet-1")
		require.True(t, d.Allowed)
		require.False(t, d.Blocked)
	}
	assert.False(t, l.Enabled())
	assert.Equal(t, 0, l.Len())
}

func TestBlockAndUnblock(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	require.NoError(t, l.Block(ClassBalanceCheck, "wallet-1", time.Hour))
	d := l.Check(ClassBalanceCheck, "wallet-1")
	assert.True(t, d.Blocked)
	assert.Equal(t, time.Hour, d.RetryAfter)

	l.Unblock(ClassBalanceCheck, "wallet-1")
	d = l.Check(ClassBalanceCheck, "wallet-1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.Remaining)

	assert.ErrorIs(t, l.Block(Class("nope"), "wallet-1", time.Hour), ErrUnknownClass)
}

func TestCleanupEvictsOnlyExpiredUnblocked(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	l.Check(ClassBalanceCheck, "idle")
	for i := 0; i < 11; i++ {
		l.Check(ClassBalanceCheck, "blocked")
	}
	require.Equal(t, 2, l.Len())

	clock.Advance(30 * time.Second)
	l.Check(ClassBalanceCheck, "fresh")
	assert.Equal(t, 0, l.Cleanup())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, l.Cleanup()) // idle
	assert.Equal(t, 2, l.Len())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 2, l.Cleanup()) // fresh and blocked
	assert.Equal(t, 0, l.Len())
}

func TestConcurrentChecksNeverExceedMax(t *testing.T) {
	l := newTestLimiter(newFakeClock())

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check(ClassBalanceCheck, "wallet-1").Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(testPolicy.MaxRequests), allowed.Load())
}

func TestStartStopLifecycle(t *testing.T) {
	clock := newFakeClock()
	l := New(Config{
		Enabled:         true,
		Policies:        map[Class]Policy{ClassBalanceCheck: testPolicy},
		CleanupInterval: 10 * time.Millisecond,
	}, WithClock(clock.Now))

	// Stop before Start is safe
	l.Stop()
	assert.False(t, l.Running())

	l.Start(context.Background())
	l.Start(context.Background())
	assert.True(t, l.Running())

	l.Check(ClassBalanceCheck, "wallet-1")
	clock.Advance(2 * time.Minute)
	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)

	l.Stop()
	l.Stop()
	assert.False(t, l.Running())

	// Restart after Stop works
	l.Start(context.Background())
	assert.True(t, l.Running())
	l.Stop()
}

func TestDecisionsAreCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	l := New(Config{Enabled: true, Policies: map[Class]Policy{ClassPayment: {Window: time.Minute, MaxRequests: 1, BlockDuration: time.Minute}}},
		WithMetrics(m))

	l.Check(ClassPayment, "w")
	l.Check(ClassPayment, "w")
	l.Check(Class("other"), "w")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("payment", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("payment", "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("other", "unbounded")))
}
