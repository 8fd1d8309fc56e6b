package quota

import (
	"context"
	"fmt"
	"time"
)

// UsageReader is the slice of the usage ledger the guard consumes.
type UsageReader interface {
	CallsOn(ctx context.Context, at time.Time) (int, error)
}

// LedgerGuard is the non-blocking quota policy. It derives the remaining
// budget from the durable usage ledger:
//
//	remaining = max(0, dailyLimit - buffer - callsToday)
//
// and denies with ErrExhausted when the budget cannot cover the request.
// A zero daily limit means unlimited.
type LedgerGuard struct {
	usage      UsageReader
	dailyLimit int
	buffer     int
	now        func() time.Time
}

// NewLedgerGuard creates a guard over the given usage ledger.
func NewLedgerGuard(usage UsageReader, dailyLimit, buffer int) *LedgerGuard {
	return &LedgerGuard{
		usage:      usage,
		dailyLimit: dailyLimit,
		buffer:     buffer,
		now:        time.Now,
	}
}

// CallsLeft returns the remaining daily budget, or nil when unlimited.
func (g *LedgerGuard) CallsLeft(ctx context.Context) (*int, error) {
	if g.dailyLimit <= 0 {
		return nil, nil
	}
	calls, err := g.usage.CallsOn(ctx, g.now())
	if err != nil {
		return nil, fmt.Errorf("failed to read usage ledger: %w", err)
	}
	left := g.dailyLimit - g.buffer - calls
	if left < 0 {
		left = 0
	}
	return &left, nil
}

// Acquire returns nil when n calls fit in the remaining budget and
// ErrExhausted otherwise. It never blocks.
func (g *LedgerGuard) Acquire(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	left, err := g.CallsLeft(ctx)
	if err != nil {
		return err
	}
	if left == nil {
		return nil
	}
	if *left < n {
		return fmt.Errorf("%w: %d of today's budget left, need %d", ErrExhausted, *left, n)
	}
	return nil
}

// Snapshot reports the daily budget state.
func (g *LedgerGuard) Snapshot(ctx context.Context) (Snapshot, error) {
	left, err := g.CallsLeft(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Policy:       "guard",
		DayLimit:     g.dailyLimit,
		DayRemaining: left,
		Buffer:       g.buffer,
	}, nil
}
