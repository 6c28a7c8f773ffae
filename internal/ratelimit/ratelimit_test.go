package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestTryAcquire_AllowsWithinBudget(t *testing.T) {
	l := New(3, 10, time.Second, time.Minute)

	for i := 0; i < 3; i++ {
		allowed, wait, err := l.TryAcquire()
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Zero(t, wait)
	}
}

func TestTryAcquire_MinuteExhaustionDoublesWait(t *testing.T) {
	l := New(1, 100, time.Second, 10*time.Second)

	allowed, _, err := l.TryAcquire()
	require.NoError(t, err)
	require.True(t, allowed)

	// First limit hit waits the base; each consecutive hit doubles.
	allowed, wait, err := l.TryAcquire()
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, time.Second, wait)

	_, wait, _ = l.TryAcquire()
	assert.Equal(t, 2*time.Second, wait)

	_, wait, _ = l.TryAcquire()
	assert.Equal(t, 4*time.Second, wait)
}

func TestTryAcquire_WaitCappedAtCeiling(t *testing.T) {
	l := New(1, 100, time.Second, 2*time.Second)

	_, _, err := l.TryAcquire()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, _ = l.TryAcquire()
	}
	_, wait, err := l.TryAcquire()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, wait)
}

func TestTryAcquire_SuccessResetsBackoff(t *testing.T) {
	now := time.Now()
	l := New(1, 100, time.Second, time.Minute).WithNow(func() time.Time { return now })

	_, _, err := l.TryAcquire()
	require.NoError(t, err)
	_, wait, _ := l.TryAcquire()
	assert.Equal(t, time.Second, wait)
	_, wait, _ = l.TryAcquire()
	assert.Equal(t, 2*time.Second, wait)

	// Roll the minute window; the next acquire succeeds and resets the
	// backoff to base.
	now = now.Add(time.Minute)
	allowed, _, err := l.TryAcquire()
	require.NoError(t, err)
	assert.True(t, allowed)

	_, wait, _ = l.TryAcquire()
	assert.Equal(t, time.Second, wait)
}

func TestTryAcquire_DayExhaustionIsTerminal(t *testing.T) {
	now := time.Now()
	l := New(100, 2, time.Second, time.Minute).WithNow(func() time.Time { return now })

	for i := 0; i < 2; i++ {
		allowed, _, err := l.TryAcquire()
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, wait, err := l.TryAcquire()
	assert.False(t, allowed)
	assert.Zero(t, wait)
	require.Error(t, err)
	assert.True(t, resilience.IsDailyQuotaExceeded(err))

	// The day window rolls after 24h.
	now = now.Add(24 * time.Hour)
	allowed, _, err = l.TryAcquire()
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMinuteWindowRolls(t *testing.T) {
	now := time.Now()
	l := New(1, 100, time.Second, time.Minute).WithNow(func() time.Time { return now })

	_, _, err := l.TryAcquire()
	require.NoError(t, err)
	allowed, _, _ := l.TryAcquire()
	assert.False(t, allowed)

	now = now.Add(61 * time.Second)
	allowed, _, err = l.TryAcquire()
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRecord_ThrottledDoublesBackoff(t *testing.T) {
	l := New(10, 100, time.Second, time.Minute)

	allowed, _, err := l.TryAcquire()
	require.NoError(t, err)
	require.True(t, allowed)

	// Provider-side throttle doubles the wait even though our own window
	// had room.
	l.Record(Throttled)
	l.Record(Throttled)
	l.mu.Lock()
	assert.Equal(t, 4*time.Second, l.curWait)
	l.mu.Unlock()

	l.Record(Success)
	l.mu.Lock()
	assert.Equal(t, time.Second, l.curWait)
	l.mu.Unlock()
}

func TestRecord_QuotaExceededExhaustsDay(t *testing.T) {
	l := New(10, 5, time.Second, time.Minute)

	allowed, _, err := l.TryAcquire()
	require.NoError(t, err)
	require.True(t, allowed)

	l.Record(QuotaExceeded)
	_, _, err = l.TryAcquire()
	assert.True(t, resilience.IsDailyQuotaExceeded(err))
}

func TestAcquire_ReturnsDayQuotaError(t *testing.T) {
	l := New(10, 1, time.Second, time.Minute)

	require.NoError(t, l.Acquire(context.Background()))
	err := l.Acquire(context.Background())
	assert.True(t, resilience.IsDailyQuotaExceeded(err))
}

func TestAcquire_RespectsContext(t *testing.T) {
	l := New(1, 100, time.Hour, time.Hour)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDayRemaining(t *testing.T) {
	l := New(10, 3, time.Second, time.Minute)
	assert.Equal(t, 3, l.DayRemaining())

	_, _, err := l.TryAcquire()
	require.NoError(t, err)
	assert.Equal(t, 2, l.DayRemaining())

	unbounded := New(10, 0, time.Second, time.Minute)
	assert.Equal(t, -1, unbounded.DayRemaining())
}
