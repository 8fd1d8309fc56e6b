package service

import (
	"context"
	"time"

	"services/price-ingest-service/internal/model"

	"go.uber.org/zap"
)

// PriceQueryService serves read access to the stored bars for the HTTP layer.
type PriceQueryService struct {
	reader         PriceReader
	symbols        []string
	eodSource      string
	intradaySource string
	intervalSec    int
	logger         *zap.Logger
}

// NewPriceQueryService creates a new price query service
func NewPriceQueryService(
	reader PriceReader,
	symbols []string,
	eodSource, intradaySource string,
	intervalSec int,
	logger *zap.Logger,
) *PriceQueryService {
	return &PriceQueryService{
		reader:         reader,
		symbols:        symbols,
		eodSource:      eodSource,
		intradaySource: intradaySource,
		intervalSec:    intervalSec,
		logger:         logger,
	}
}

// Latest returns the newest EOD bar per symbol. With an empty symbol it
// covers all configured symbols; symbols without data are omitted.
func (s *PriceQueryService) Latest(ctx context.Context, symbol string) ([]model.PriceBar, error) {
	symbols := s.symbols
	if symbol != "" {
		symbols = []string{symbol}
	}

	results := make([]model.PriceBar, 0, len(symbols))
	for _, sym := range symbols {
		bar, err := s.reader.LatestBar(ctx, sym, s.eodSource)
		if err != nil {
			return nil, err
		}
		if bar != nil {
			results = append(results, *bar)
		}
	}
	return results, nil
}

// History returns EOD bars for an inclusive date range.
func (s *PriceQueryService) History(ctx context.Context, symbol string, start, end *time.Time, order string) ([]model.PriceBar, error) {
	return s.reader.GetHistory(ctx, symbol, s.eodSource, start, end, order)
}

// IntradayHistory returns intraday bars for an inclusive time range. A zero
// intervalSec falls back to the configured resample granularity.
func (s *PriceQueryService) IntradayHistory(
	ctx context.Context,
	symbol string,
	intervalSec int,
	start, end *time.Time,
	order string,
	limit *int,
) ([]model.PriceBarIntra, error) {
	if intervalSec <= 0 {
		intervalSec = s.intervalSec
	}
	return s.reader.GetIntraHistory(ctx, symbol, s.intradaySource, intervalSec, start, end, order, limit)
}
