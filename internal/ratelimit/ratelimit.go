// Package ratelimit implements the shared request budget for the query
// executor: an independent minute window and day window with
// exponential backoff on minute-window pressure. The limiter is the
// single owner of both counters; call sites never touch them directly.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/resilience"
)

// Outcome classifies a completed request attempt for Record.
type Outcome int

const (
	Success Outcome = iota
	Throttled
	QuotaExceeded
)

// Limiter owns the minute/day counters and the backoff state.
type Limiter struct {
	mu sync.Mutex

	perMinute int
	perDay    int

	minuteCount int
	minuteStart time.Time
	dayCount    int
	dayStart    time.Time

	baseWait time.Duration
	maxWait  time.Duration
	curWait  time.Duration

	now func() time.Time
}

// New creates a Limiter with the given window budgets. baseWait is the
// initial backoff applied when the minute window is exhausted; maxWait
// caps the doubling.
func New(perMinute, perDay int, baseWait, maxWait time.Duration) *Limiter {
	if baseWait <= 0 {
		baseWait = time.Second
	}
	if maxWait < baseWait {
		maxWait = baseWait
	}
	l := &Limiter{
		perMinute: perMinute,
		perDay:    perDay,
		baseWait:  baseWait,
		maxWait:   maxWait,
		curWait:   baseWait,
		now:       time.Now,
	}
	t := l.now()
	l.minuteStart = t
	l.dayStart = t
	return l
}

// WithNow sets a fixed clock source for testing.
func (l *Limiter) WithNow(now func() time.Time) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.minuteStart = now()
	l.dayStart = now()
	return l
}

// TryAcquire attempts to reserve one request slot. When the minute
// window is exhausted it returns allowed=false with the wait duration
// to observe before retrying; consecutive exhaustions double the wait
// up to the ceiling. When the day window is exhausted it returns a
// terminal QuotaExceededError: the run must stop dispatching, not wait.
func (l *Limiter) TryAcquire() (allowed bool, wait time.Duration, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	l.roll(t)

	if l.perDay > 0 && l.dayCount >= l.perDay {
		return false, 0, &resilience.QuotaExceededError{Scope: "day", Limit: l.perDay}
	}

	if l.perMinute > 0 && l.minuteCount >= l.perMinute {
		wait = l.curWait
		l.curWait = min(l.curWait*2, l.maxWait)
		zap.L().Debug("rate limiter: minute window exhausted",
			zap.Duration("wait", wait),
			zap.Int("minute_count", l.minuteCount),
		)
		return false, wait, nil
	}

	l.minuteCount++
	l.dayCount++
	l.curWait = l.baseWait
	return true, 0, nil
}

// Record reports the outcome of an attempt whose slot was acquired.
// A provider-side throttle doubles the backoff even though our own
// window had room; a success resets it.
func (l *Limiter) Record(o Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch o {
	case Success:
		l.curWait = l.baseWait
	case Throttled:
		l.curWait = min(l.curWait*2, l.maxWait)
	case QuotaExceeded:
		// Provider says the daily budget is gone regardless of our count.
		l.dayCount = l.perDay
	}
}

// Acquire blocks until a slot is available or the context is done.
// It returns a terminal error only for day-window exhaustion.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		allowed, wait, err := l.TryAcquire()
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// DayRemaining returns how many requests are left in the day window.
func (l *Limiter) DayRemaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll(l.now())
	if l.perDay <= 0 {
		return -1
	}
	return max(0, l.perDay-l.dayCount)
}

// roll expires finished windows. Caller holds mu.
func (l *Limiter) roll(t time.Time) {
	if t.Sub(l.minuteStart) >= time.Minute {
		l.minuteStart = t
		l.minuteCount = 0
	}
	if t.Sub(l.dayStart) >= 24*time.Hour {
		l.dayStart = t
		l.dayCount = 0
	}
}
