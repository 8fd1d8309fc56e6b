package service

import (
	"context"
	"time"

	"services/price-ingest-service/internal/model"
)

// Skip reasons reported in per-symbol outcomes.
const (
	ReasonWindowExhausted = "window-exhausted"
	ReasonQuotaExhausted  = "quota-exhausted"
)

// PriceStore is the slice of the persistent store the ingest services write to.
type PriceStore interface {
	LatestBarDate(ctx context.Context, symbol, source string) (*time.Time, error)
	UpsertBar(ctx context.Context, bar model.PriceBar) error
	LatestIntraTime(ctx context.Context, symbol, source string, intervalSec int) (*time.Time, error)
	UpsertIntraBar(ctx context.Context, bar model.PriceBarIntra) error
}

// PriceReader is the slice of the persistent store the query service reads from.
type PriceReader interface {
	LatestBar(ctx context.Context, symbol, source string) (*model.PriceBar, error)
	GetHistory(ctx context.Context, symbol, source string, start, end *time.Time, order string) ([]model.PriceBar, error)
	GetIntraHistory(ctx context.Context, symbol, source string, intervalSec int, start, end *time.Time, order string, limit *int) ([]model.PriceBarIntra, error)
}

// UsageLedger records provider calls made.
type UsageLedger interface {
	Increment(ctx context.Context, n int, at time.Time) error
}

// UsageStore extends the ledger with the read side consumed by snapshots.
type UsageStore interface {
	UsageLedger
	CallsOn(ctx context.Context, at time.Time) (int, error)
	CallsDuring(ctx context.Context, at time.Time) (int, error)
	HourlyBreakdown(ctx context.Context, at time.Time) (map[int]int, error)
}

// MarketDataProvider fetches OHLCV records from the external data provider.
type MarketDataProvider interface {
	GetDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]model.TiingoDailyBar, error)
	GetIntradayPrices(ctx context.Context, symbol string, start, end time.Time, resample string) ([]model.TiingoIntradayBar, error)
}

// pace sleeps for the inter-symbol pacing delay, honoring cancellation.
func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
