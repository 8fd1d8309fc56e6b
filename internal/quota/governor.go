// Package quota decides whether outbound provider calls may proceed.
//
// Two interchangeable policies implement Governor: LedgerGuard consults the
// durable usage ledger and denies immediately when the daily budget is spent;
// TokenBucket keeps in-memory minute and day buckets and blocks the caller
// until capacity refills.
package quota

import (
	"context"
	"errors"
)

// ErrExhausted is returned by non-blocking policies when the remaining
// budget cannot cover the requested calls. Callers skip the cycle, they
// do not wait.
var ErrExhausted = errors.New("quota exhausted")

// Governor gates outbound provider calls.
type Governor interface {
	// Acquire reserves capacity for n calls. It either returns nil,
	// blocks until capacity is available (token-bucket policy), or fails
	// with ErrExhausted (guard policy).
	Acquire(ctx context.Context, n int) error

	// Snapshot reports remaining capacity without mutating state.
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Snapshot is a point-in-time view of a governor's budget. Pointer fields
// are nil when the corresponding dimension is unlimited or not tracked by
// the active policy.
type Snapshot struct {
	Policy          string `json:"policy"`
	DayLimit        int    `json:"day_limit,omitempty"`
	DayRemaining    *int   `json:"day_remaining,omitempty"`
	MinuteLimit     int    `json:"minute_limit,omitempty"`
	MinuteRemaining *int   `json:"minute_remaining,omitempty"`
	Buffer          int    `json:"buffer,omitempty"`
	LastMinuteReset string `json:"last_minute_reset,omitempty"`
	LastDayReset    string `json:"last_day_reset,omitempty"`
}
