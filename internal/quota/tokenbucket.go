package quota

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// TokenBucket is the blocking quota policy. It holds a per-minute and a
// per-day bucket; each refills to full capacity when its boundary (top of
// the next minute, midnight UTC) is crossed. Acquire blocks with a short
// jittered delay until both buckets can cover the request.
//
// State is per-process only and resets on restart.
type TokenBucket struct {
	mu sync.Mutex

	perMin int
	perDay int

	minTokens int
	dayTokens int

	lastMin time.Time // minute boundary of the last minute refill
	lastDay time.Time // UTC midnight of the last day refill

	now        func() time.Time
	retryDelay func() time.Duration
}

// NewTokenBucket creates a bucket with the given capacities. A capacity of
// zero leaves that dimension unlimited.
func NewTokenBucket(perMinute, perDay int) *TokenBucket {
	now := time.Now().UTC()
	return &TokenBucket{
		perMin:    perMinute,
		perDay:    perDay,
		minTokens: perMinute,
		dayTokens: perDay,
		lastMin:   now.Truncate(time.Minute),
		lastDay:   midnight(now),
		now:       time.Now,
		retryDelay: func() time.Duration {
			// 0.5s-1.0s, jittered so concurrent waiters spread out
			return 500*time.Millisecond + time.Duration(rand.Int63n(int64(500*time.Millisecond)))
		},
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// refillLocked refreshes both buckets if their boundaries were crossed.
// Callers must hold mu.
func (b *TokenBucket) refillLocked() {
	now := b.now().UTC()
	if !now.Before(b.lastMin.Add(time.Minute)) {
		b.minTokens = b.perMin
		b.lastMin = now.Truncate(time.Minute)
	}
	if !midnight(now).Equal(b.lastDay) {
		b.dayTokens = b.perDay
		b.lastDay = midnight(now)
	}
}

// Acquire blocks until both buckets hold at least n tokens, then decrements
// both atomically. It returns early only when the context is cancelled.
func (b *TokenBucket) Acquire(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	for {
		b.mu.Lock()
		b.refillLocked()
		minOK := b.perMin <= 0 || b.minTokens >= n
		dayOK := b.perDay <= 0 || b.dayTokens >= n
		if minOK && dayOK {
			if b.perMin > 0 {
				b.minTokens -= n
			}
			if b.perDay > 0 {
				b.dayTokens -= n
			}
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()

		timer := time.NewTimer(b.retryDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Snapshot reports remaining tokens and limits without mutating state.
func (b *TokenBucket) Snapshot(_ context.Context) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	minRemaining := b.minTokens
	dayRemaining := b.dayTokens
	return Snapshot{
		Policy:          "bucket",
		MinuteLimit:     b.perMin,
		MinuteRemaining: &minRemaining,
		DayLimit:        b.perDay,
		DayRemaining:    &dayRemaining,
		LastMinuteReset: b.lastMin.Format(time.RFC3339),
		LastDayReset:    b.lastDay.Format("2006-01-02"),
	}, nil
}
