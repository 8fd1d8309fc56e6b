package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"services/price-ingest-service/internal/model"
	"services/price-ingest-service/internal/quota"

	"go.uber.org/zap"
)

const dateOnly = "2006-01-02"

// EODConfig holds the static inputs of the end-of-day ingestion cycle.
type EODConfig struct {
	Symbols       []string
	Source        string
	InitStartDate time.Time      // backfill start when no watermark exists
	PacingDelay   time.Duration  // inter-symbol delay, skipped after the last symbol
	Location      *time.Location // "today" is evaluated in this timezone
	Retry         RetryPolicy
}

// EODService resumes end-of-day ingestion from the stored watermark:
// for each symbol it fetches only the dates after the last stored bar,
// upserts the records idempotently, and accounts for the provider call.
type EODService struct {
	store    PriceStore
	usage    UsageLedger
	provider MarketDataProvider
	governor quota.Governor
	cfg      EODConfig
	logger   *zap.Logger

	now func() time.Time

	mu      sync.Mutex
	lastRun *time.Time
}

// NewEODService creates a new end-of-day ingestion service
func NewEODService(
	store PriceStore,
	usage UsageLedger,
	provider MarketDataProvider,
	governor quota.Governor,
	cfg EODConfig,
	logger *zap.Logger,
) *EODService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &EODService{
		store:    store,
		usage:    usage,
		provider: provider,
		governor: governor,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// RunCycle iterates the configured symbols in declared order, pacing between
// consecutive symbols. A single symbol's failure is recorded in the report
// and never aborts the batch; only cancellation stops the loop early.
func (s *EODService) RunCycle(ctx context.Context) (*model.RunReport, error) {
	results := make(map[string]model.SymbolOutcome, len(s.cfg.Symbols))

	for i, symbol := range s.cfg.Symbols {
		outcome := s.syncSymbol(ctx, symbol)
		results[symbol] = outcome

		if outcome.Error != "" {
			s.logger.Error("EOD cycle failed for symbol",
				zap.String("symbol", symbol),
				zap.String("error", outcome.Error))
		} else {
			s.logger.Info("EOD cycle finished for symbol",
				zap.String("symbol", symbol),
				zap.Int("inserted", outcome.Inserted),
				zap.Bool("skipped", outcome.Skipped))
		}

		if ctx.Err() != nil {
			return s.finishRun(results), ctx.Err()
		}
		if i < len(s.cfg.Symbols)-1 {
			if err := pace(ctx, s.cfg.PacingDelay); err != nil {
				return s.finishRun(results), err
			}
		}
	}

	return s.finishRun(results), nil
}

func (s *EODService) finishRun(results map[string]model.SymbolOutcome) *model.RunReport {
	runUTC := s.now().UTC()

	s.mu.Lock()
	s.lastRun = &runUTC
	s.mu.Unlock()

	return &model.RunReport{
		Job:     "eod",
		Results: results,
		RunUTC:  runUTC,
	}
}

// LastRun returns the completion time of the most recent cycle, nil before
// the first one.
func (s *EODService) LastRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	t := *s.lastRun
	return &t
}

// today returns the current civil date in the configured timezone,
// represented at UTC midnight like all other date points.
func (s *EODService) today() time.Time {
	y, m, d := s.now().In(s.cfg.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *EODService) syncSymbol(ctx context.Context, symbol string) model.SymbolOutcome {
	outcome := model.SymbolOutcome{Symbol: symbol}

	watermark, err := s.store.LatestBarDate(ctx, symbol, s.cfg.Source)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	var start time.Time
	if watermark != nil {
		start = watermark.AddDate(0, 0, 1)
	} else {
		start = s.cfg.InitStartDate
	}
	end := s.today()

	// Nothing new can exist; a normal outcome, not an error.
	if start.After(end) {
		outcome.Skipped = true
		outcome.Reason = ReasonWindowExhausted
		return outcome
	}
	outcome.From = start.Format(dateOnly)
	outcome.To = end.Format(dateOnly)

	if err := s.governor.Acquire(ctx, 1); err != nil {
		if errors.Is(err, quota.ErrExhausted) {
			outcome.Skipped = true
			outcome.Reason = ReasonQuotaExhausted
			return outcome
		}
		outcome.Error = err.Error()
		return outcome
	}

	bars, err := fetchWithRetry(ctx, s.cfg.Retry, s.logger, symbol, func() ([]model.TiingoDailyBar, error) {
		return s.provider.GetDailyPrices(ctx, symbol, start, end)
	})
	if err != nil {
		outcome.Error = fmt.Sprintf("fetch failed: %v", err)
		return outcome
	}

	// One provider request per cycle per symbol, regardless of record count.
	if err := s.usage.Increment(ctx, 1, s.now()); err != nil {
		s.logger.Warn("Failed to record provider call in usage ledger",
			zap.Error(err),
			zap.String("symbol", symbol))
	}

	for _, bar := range bars {
		if err := s.store.UpsertBar(ctx, normalizeDailyBar(symbol, s.cfg.Source, bar)); err != nil {
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Inserted++
	}

	return outcome
}

// normalizeDailyBar maps a provider record onto the stored identity. A
// missing adjusted close falls back to the close.
func normalizeDailyBar(symbol, source string, bar model.TiingoDailyBar) model.PriceBar {
	adjClose := bar.AdjClose
	if adjClose == nil {
		adjClose = bar.Close
	}
	y, m, d := bar.Date.UTC().Date()
	return model.PriceBar{
		Symbol:   symbol,
		Source:   source,
		BarDate:  time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Open:     bar.Open,
		High:     bar.High,
		Low:      bar.Low,
		Close:    bar.Close,
		Volume:   bar.Volume,
		AdjClose: adjClose,
	}
}
