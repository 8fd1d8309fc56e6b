package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"services/price-ingest-service/internal/model"
	"services/price-ingest-service/internal/quota"

	"go.uber.org/zap"
)

// watermarkOverlap is re-fetched behind the intraday watermark to absorb
// late-arriving corrections from the provider.
const watermarkOverlap = 2 * time.Minute

// IntradayConfig holds the static inputs of the intraday sync cycle.
type IntradayConfig struct {
	Symbols     []string
	Source      string
	Resample    string        // provider resample frequency, e.g. "1min"
	IntervalSec int           // bar granularity derived from Resample
	Window      time.Duration // initial lookback when no watermark exists
	PacingDelay time.Duration
	Retry       RetryPolicy
}

// IntradayService resumes intraday ingestion from the stored watermark with
// a small overlap, one provider call per symbol per cycle.
type IntradayService struct {
	store    PriceStore
	usage    UsageLedger
	provider MarketDataProvider
	governor quota.Governor
	cfg      IntradayConfig
	logger   *zap.Logger

	now func() time.Time
}

// NewIntradayService creates a new intraday ingestion service
func NewIntradayService(
	store PriceStore,
	usage UsageLedger,
	provider MarketDataProvider,
	governor quota.Governor,
	cfg IntradayConfig,
	logger *zap.Logger,
) *IntradayService {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &IntradayService{
		store:    store,
		usage:    usage,
		provider: provider,
		governor: governor,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// RunCycle syncs every configured symbol in declared order. Per-symbol
// failures are recorded in the report and do not abort the batch.
func (s *IntradayService) RunCycle(ctx context.Context, windowOverride *time.Duration) (*model.RunReport, error) {
	results := make(map[string]model.SymbolOutcome, len(s.cfg.Symbols))

	for i, symbol := range s.cfg.Symbols {
		outcome := s.SyncSymbol(ctx, symbol, windowOverride)
		results[symbol] = outcome

		if ctx.Err() != nil {
			return s.report(results), ctx.Err()
		}
		if i < len(s.cfg.Symbols)-1 {
			if err := pace(ctx, s.cfg.PacingDelay); err != nil {
				return s.report(results), err
			}
		}
	}

	return s.report(results), nil
}

func (s *IntradayService) report(results map[string]model.SymbolOutcome) *model.RunReport {
	return &model.RunReport{
		Job:     "intraday",
		Results: results,
		RunUTC:  s.now().UTC(),
	}
}

// SyncSymbol runs one symbol's intraday cycle. The window override replaces
// the configured initial lookback for symbols without a watermark.
func (s *IntradayService) SyncSymbol(ctx context.Context, symbol string, windowOverride *time.Duration) model.SymbolOutcome {
	symbol = strings.ToUpper(symbol)
	outcome := model.SymbolOutcome{Symbol: symbol}

	watermark, err := s.store.LatestIntraTime(ctx, symbol, s.cfg.Source, s.cfg.IntervalSec)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	now := s.now().UTC()
	var start time.Time
	if watermark != nil {
		start = watermark.Add(-watermarkOverlap)
	} else {
		window := s.cfg.Window
		if windowOverride != nil && *windowOverride > 0 {
			window = *windowOverride
		}
		start = now.Add(-window)
	}
	end := now

	outcome.From = start.Format(time.RFC3339)
	outcome.To = end.Format(time.RFC3339)

	if err := s.governor.Acquire(ctx, 1); err != nil {
		if errors.Is(err, quota.ErrExhausted) {
			outcome.Skipped = true
			outcome.Reason = ReasonQuotaExhausted
			return outcome
		}
		outcome.Error = err.Error()
		return outcome
	}

	bars, err := fetchWithRetry(ctx, s.cfg.Retry, s.logger, symbol, func() ([]model.TiingoIntradayBar, error) {
		return s.provider.GetIntradayPrices(ctx, symbol, start, end, s.cfg.Resample)
	})
	if err != nil {
		outcome.Error = fmt.Sprintf("fetch failed: %v", err)
		return outcome
	}

	if err := s.usage.Increment(ctx, 1, s.now()); err != nil {
		s.logger.Warn("Failed to record provider call in usage ledger",
			zap.Error(err),
			zap.String("symbol", symbol))
	}

	for _, bar := range bars {
		record := model.PriceBarIntra{
			Symbol:      symbol,
			Source:      s.cfg.Source,
			BarTime:     bar.Date.UTC(),
			IntervalSec: s.cfg.IntervalSec,
			Open:        bar.Open,
			High:        bar.High,
			Low:         bar.Low,
			Close:       bar.Close,
			Volume:      bar.Volume,
		}
		if err := s.store.UpsertIntraBar(ctx, record); err != nil {
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Inserted++
	}

	return outcome
}
