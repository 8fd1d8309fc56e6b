package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"services/price-ingest-service/internal/model"
	"services/price-ingest-service/internal/utils"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const priceBarSchema = `
CREATE TABLE IF NOT EXISTS price_bars (
	symbol     VARCHAR(20)   NOT NULL,
	source     VARCHAR(32)   NOT NULL,
	bar_date   DATE          NOT NULL,
	open       NUMERIC(18,6),
	high       NUMERIC(18,6),
	low        NUMERIC(18,6),
	close      NUMERIC(18,6),
	volume     BIGINT,
	adj_close  NUMERIC(18,6),
	PRIMARY KEY (symbol, source, bar_date)
);

CREATE INDEX IF NOT EXISTS idx_price_bars_symbol_date
	ON price_bars (symbol, bar_date DESC);

CREATE TABLE IF NOT EXISTS price_bars_intraday (
	symbol       VARCHAR(20)   NOT NULL,
	source       VARCHAR(32)   NOT NULL,
	bar_time     TIMESTAMPTZ   NOT NULL,
	interval_sec INTEGER       NOT NULL,
	open         NUMERIC(18,6),
	high         NUMERIC(18,6),
	low          NUMERIC(18,6),
	close        NUMERIC(18,6),
	volume       BIGINT,
	PRIMARY KEY (symbol, source, bar_time, interval_sec)
);
`

// PriceBarRepository handles database operations for EOD and intraday bars
type PriceBarRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPriceBarRepository creates a new price bar repository
func NewPriceBarRepository(db *sqlx.DB, logger *zap.Logger) *PriceBarRepository {
	return &PriceBarRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema idempotently creates the price bar tables. Invoked once at
// startup, never on the ingestion hot path.
func (r *PriceBarRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, priceBarSchema); err != nil {
		r.logger.Error("Failed to ensure price bar schema", zap.Error(err))
		return fmt.Errorf("failed to ensure price bar schema: %w", err)
	}
	return nil
}

// Ping verifies store connectivity for health checks
func (r *PriceBarRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LatestBarDate returns the max stored bar date for a symbol and source,
// or nil if no bar has been stored yet.
func (r *PriceBarRepository) LatestBarDate(ctx context.Context, symbol, source string) (*time.Time, error) {
	var latest sql.NullTime
	err := r.db.GetContext(ctx, &latest, `
		SELECT MAX(bar_date) FROM price_bars
		WHERE symbol = $1 AND source = $2
	`, symbol, source)
	if err != nil {
		r.logger.Error("Failed to read EOD watermark",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("source", source))
		return nil, fmt.Errorf("failed to read EOD watermark: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time.UTC()
	return &t, nil
}

// LatestIntraTime returns the max stored intraday bar time for a symbol,
// source and interval, or nil if no bar has been stored yet.
func (r *PriceBarRepository) LatestIntraTime(ctx context.Context, symbol, source string, intervalSec int) (*time.Time, error) {
	var latest sql.NullTime
	err := r.db.GetContext(ctx, &latest, `
		SELECT MAX(bar_time) FROM price_bars_intraday
		WHERE symbol = $1 AND source = $2 AND interval_sec = $3
	`, symbol, source, intervalSec)
	if err != nil {
		r.logger.Error("Failed to read intraday watermark",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.Int("interval_sec", intervalSec))
		return nil, fmt.Errorf("failed to read intraday watermark: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time.UTC()
	return &t, nil
}

// UpsertBar inserts or updates one EOD bar keyed by (symbol, source, bar_date)
func (r *PriceBarRepository) UpsertBar(ctx context.Context, bar model.PriceBar) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO price_bars (symbol, source, bar_date, open, high, low, close, volume, adj_close)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, source, bar_date)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			adj_close = EXCLUDED.adj_close
	`, bar.Symbol, bar.Source, bar.BarDate, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.AdjClose)
	if err != nil {
		r.logger.Error("Failed to upsert EOD bar",
			zap.Error(err),
			zap.String("symbol", bar.Symbol),
			zap.Time("bar_date", bar.BarDate))
		return fmt.Errorf("failed to upsert EOD bar: %w", err)
	}
	return nil
}

// UpsertIntraBar inserts or updates one intraday bar keyed by
// (symbol, source, bar_time, interval_sec)
func (r *PriceBarRepository) UpsertIntraBar(ctx context.Context, bar model.PriceBarIntra) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO price_bars_intraday (symbol, source, bar_time, interval_sec, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, source, bar_time, interval_sec)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`, bar.Symbol, bar.Source, bar.BarTime, bar.IntervalSec, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	if err != nil {
		r.logger.Error("Failed to upsert intraday bar",
			zap.Error(err),
			zap.String("symbol", bar.Symbol),
			zap.Time("bar_time", bar.BarTime))
		return fmt.Errorf("failed to upsert intraday bar: %w", err)
	}
	return nil
}

// LatestBar returns the most recent EOD bar for a symbol, or nil when none exists
func (r *PriceBarRepository) LatestBar(ctx context.Context, symbol, source string) (*model.PriceBar, error) {
	var bar model.PriceBar
	err := r.db.GetContext(ctx, &bar, `
		SELECT symbol, source, bar_date, open, high, low, close, volume, adj_close
		FROM price_bars
		WHERE symbol = $1 AND source = $2
		ORDER BY bar_date DESC
		LIMIT 1
	`, symbol, source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get latest EOD bar",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, fmt.Errorf("failed to get latest EOD bar: %w", err)
	}
	return &bar, nil
}

// GetHistory returns EOD bars for an inclusive date range
func (r *PriceBarRepository) GetHistory(
	ctx context.Context,
	symbol, source string,
	start, end *time.Time,
	order string,
) ([]model.PriceBar, error) {
	query := `
		SELECT symbol, source, bar_date, open, high, low, close, volume, adj_close
		FROM price_bars
		WHERE symbol = $1 AND source = $2
	`

	args := []interface{}{symbol, source}
	argCount := 3

	if start != nil {
		query += fmt.Sprintf(" AND bar_date >= $%d", argCount)
		args = append(args, *start)
		argCount++
	}

	if end != nil {
		query += fmt.Sprintf(" AND bar_date <= $%d", argCount)
		args = append(args, *end)
		argCount++
	}

	query += " ORDER BY bar_date " + utils.NormalizeSortDirection(order)

	var bars []model.PriceBar
	if err := r.db.SelectContext(ctx, &bars, query, args...); err != nil {
		r.logger.Error("Failed to get EOD history",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, fmt.Errorf("failed to get EOD history: %w", err)
	}

	return bars, nil
}

// GetIntraHistory returns intraday bars for an inclusive time range
func (r *PriceBarRepository) GetIntraHistory(
	ctx context.Context,
	symbol, source string,
	intervalSec int,
	start, end *time.Time,
	order string,
	limit *int,
) ([]model.PriceBarIntra, error) {
	query := `
		SELECT symbol, source, bar_time, interval_sec, open, high, low, close, volume
		FROM price_bars_intraday
		WHERE symbol = $1 AND source = $2 AND interval_sec = $3
	`

	args := []interface{}{symbol, source, intervalSec}
	argCount := 4

	if start != nil {
		query += fmt.Sprintf(" AND bar_time >= $%d", argCount)
		args = append(args, *start)
		argCount++
	}

	if end != nil {
		query += fmt.Sprintf(" AND bar_time <= $%d", argCount)
		args = append(args, *end)
		argCount++
	}

	query += " ORDER BY bar_time " + utils.NormalizeSortDirection(order)

	if limit != nil {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, *limit)
	}

	var bars []model.PriceBarIntra
	if err := r.db.SelectContext(ctx, &bars, query, args...); err != nil {
		r.logger.Error("Failed to get intraday history",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.Int("interval_sec", intervalSec))
		return nil, fmt.Errorf("failed to get intraday history: %w", err)
	}

	return bars, nil
}
