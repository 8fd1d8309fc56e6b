package quota

import (
	"context"
	"sync"
	"testing"
	"time"
)

// clock is a controllable time source for bucket tests.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBucket(perMinute, perDay int, start time.Time) (*TokenBucket, *clock) {
	clk := &clock{t: start}
	b := NewTokenBucket(perMinute, perDay)
	b.now = clk.now
	b.minTokens = perMinute
	b.dayTokens = perDay
	b.lastMin = start.Truncate(time.Minute)
	b.lastDay = midnight(start)
	return b, clk
}

func TestTokenBucket_DecrementsBothBuckets(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 30, 5, 0, time.UTC)
	b, _ := newTestBucket(5, 100, start)

	for i := 0; i < 3; i++ {
		if err := b.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("Acquire() = %v", err)
		}
	}

	snap, _ := b.Snapshot(context.Background())
	if *snap.MinuteRemaining != 2 {
		t.Errorf("minute tokens = %d, want 2", *snap.MinuteRemaining)
	}
	if *snap.DayRemaining != 97 {
		t.Errorf("day tokens = %d, want 97", *snap.DayRemaining)
	}
}

func TestTokenBucket_BlocksUntilMinuteRefill(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 30, 55, 0, time.UTC)
	b, clk := newTestBucket(2, 100, start)

	// Drain the minute bucket, then cross the minute boundary on the
	// first retry wait.
	if err := b.Acquire(context.Background(), 2); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	b.retryDelay = func() time.Duration {
		clk.advance(10 * time.Second) // 14:31:05, past the boundary
		return time.Millisecond
	}

	done := make(chan error, 1)
	go func() { done <- b.Acquire(context.Background(), 1) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Acquire() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire() did not return after the minute refill")
	}

	snap, _ := b.Snapshot(context.Background())
	if *snap.MinuteRemaining != 1 {
		t.Errorf("minute tokens after refill = %d, want 1", *snap.MinuteRemaining)
	}
	// The day bucket kept draining across the refill.
	if *snap.DayRemaining != 97 {
		t.Errorf("day tokens = %d, want 97", *snap.DayRemaining)
	}
}

func TestTokenBucket_DayRefillAtUTCMidnight(t *testing.T) {
	start := time.Date(2026, 3, 2, 23, 59, 30, 0, time.UTC)
	b, clk := newTestBucket(0, 3, start)

	if err := b.Acquire(context.Background(), 3); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	b.retryDelay = func() time.Duration {
		clk.advance(time.Minute) // crosses into March 3rd
		return time.Millisecond
	}

	done := make(chan error, 1)
	go func() { done <- b.Acquire(context.Background(), 1) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Acquire() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire() did not return after the midnight refill")
	}

	snap, _ := b.Snapshot(context.Background())
	if *snap.DayRemaining != 2 {
		t.Errorf("day tokens after refill = %d, want 2", *snap.DayRemaining)
	}
	if snap.LastDayReset != "2026-03-03" {
		t.Errorf("LastDayReset = %q, want 2026-03-03", snap.LastDayReset)
	}
}

func TestTokenBucket_ZeroCapacityIsUnlimited(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b, _ := newTestBucket(0, 0, start)

	for i := 0; i < 50; i++ {
		if err := b.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("Acquire() = %v on iteration %d", err, i)
		}
	}
}

func TestTokenBucket_AcquireHonorsCancellation(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b, _ := newTestBucket(1, 0, start)

	if err := b.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	b.retryDelay = func() time.Duration { return time.Millisecond }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Acquire(ctx, 1); err != context.Canceled {
		t.Fatalf("Acquire() = %v, want context.Canceled", err)
	}
}
