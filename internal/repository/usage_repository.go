package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const usageSchema = `
CREATE TABLE IF NOT EXISTS api_usage (
	usage_date DATE        NOT NULL,
	service    VARCHAR(50) NOT NULL,
	calls      INTEGER     NOT NULL DEFAULT 0,
	PRIMARY KEY (usage_date, service)
);

CREATE TABLE IF NOT EXISTS api_usage_hourly (
	usage_date DATE        NOT NULL,
	usage_hour SMALLINT    NOT NULL,
	service    VARCHAR(50) NOT NULL,
	calls      INTEGER     NOT NULL DEFAULT 0,
	PRIMARY KEY (usage_date, usage_hour, service)
);
`

// UsageRepository maintains durable counters of provider calls, per day and
// per (day, hour). The two views stay consistent: every increment updates both.
type UsageRepository struct {
	db      *sqlx.DB
	service string
	loc     *time.Location
	logger  *zap.Logger
}

// NewUsageRepository creates a usage repository scoped to one provider service
func NewUsageRepository(db *sqlx.DB, service string, loc *time.Location, logger *zap.Logger) *UsageRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &UsageRepository{
		db:      db,
		service: service,
		loc:     loc,
		logger:  logger,
	}
}

// EnsureSchema idempotently creates the usage counter tables
func (r *UsageRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, usageSchema); err != nil {
		r.logger.Error("Failed to ensure usage schema", zap.Error(err))
		return fmt.Errorf("failed to ensure usage schema: %w", err)
	}
	return nil
}

// periodKey converts a timestamp to the counter identity in the configured timezone
func (r *UsageRepository) periodKey(at time.Time) (time.Time, int) {
	local := at.In(r.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), local.Hour()
}

// EnsurePeriods idempotently creates zero-valued daily and hourly counter rows
// for the given timestamp. Safe under concurrent callers.
func (r *UsageRepository) EnsurePeriods(ctx context.Context, at time.Time) error {
	day, hour := r.periodKey(at)
	return r.ensurePeriods(ctx, r.db, day, hour)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *UsageRepository) ensurePeriods(ctx context.Context, ex execer, day time.Time, hour int) error {
	if _, err := ex.ExecContext(ctx, `
		INSERT INTO api_usage (usage_date, service, calls)
		VALUES ($1, $2, 0)
		ON CONFLICT (usage_date, service) DO NOTHING
	`, day, r.service); err != nil {
		return fmt.Errorf("failed to ensure daily usage row: %w", err)
	}
	if _, err := ex.ExecContext(ctx, `
		INSERT INTO api_usage_hourly (usage_date, usage_hour, service, calls)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (usage_date, usage_hour, service) DO NOTHING
	`, day, hour, r.service); err != nil {
		return fmt.Errorf("failed to ensure hourly usage row: %w", err)
	}
	return nil
}

// Increment atomically adds n calls to both the daily and hourly counters for
// the call's timestamp. n must be >= 0; n == 0 is a no-op.
func (r *UsageRepository) Increment(ctx context.Context, n int, at time.Time) error {
	if n < 0 {
		return fmt.Errorf("usage increment must be non-negative, got %d", n)
	}
	if n == 0 {
		return nil
	}

	day, hour := r.periodKey(at)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin usage transaction", zap.Error(err))
		return fmt.Errorf("failed to begin usage transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.ensurePeriods(ctx, tx, day, hour); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE api_usage SET calls = calls + $1
		WHERE usage_date = $2 AND service = $3
	`, n, day, r.service); err != nil {
		r.logger.Error("Failed to increment daily usage", zap.Error(err), zap.Int("n", n))
		return fmt.Errorf("failed to increment daily usage: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE api_usage_hourly SET calls = calls + $1
		WHERE usage_date = $2 AND usage_hour = $3 AND service = $4
	`, n, day, hour, r.service); err != nil {
		r.logger.Error("Failed to increment hourly usage", zap.Error(err), zap.Int("n", n))
		return fmt.Errorf("failed to increment hourly usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit usage transaction", zap.Error(err))
		return fmt.Errorf("failed to commit usage transaction: %w", err)
	}

	return nil
}

// CallsOn returns the daily counter for the day containing at, 0 when no row exists
func (r *UsageRepository) CallsOn(ctx context.Context, at time.Time) (int, error) {
	day, _ := r.periodKey(at)

	var calls int
	err := r.db.GetContext(ctx, &calls, `
		SELECT calls FROM api_usage
		WHERE usage_date = $1 AND service = $2
	`, day, r.service)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		r.logger.Error("Failed to read daily usage", zap.Error(err))
		return 0, fmt.Errorf("failed to read daily usage: %w", err)
	}
	return calls, nil
}

// CallsDuring returns the hourly counter for the hour containing at, 0 when no row exists
func (r *UsageRepository) CallsDuring(ctx context.Context, at time.Time) (int, error) {
	day, hour := r.periodKey(at)

	var calls int
	err := r.db.GetContext(ctx, &calls, `
		SELECT calls FROM api_usage_hourly
		WHERE usage_date = $1 AND usage_hour = $2 AND service = $3
	`, day, hour, r.service)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		r.logger.Error("Failed to read hourly usage", zap.Error(err))
		return 0, fmt.Errorf("failed to read hourly usage: %w", err)
	}
	return calls, nil
}

// HourlyBreakdown returns all 24 hour buckets for the day containing at,
// zero-filled for hours without calls
func (r *UsageRepository) HourlyBreakdown(ctx context.Context, at time.Time) (map[int]int, error) {
	day, _ := r.periodKey(at)

	rows := []struct {
		UsageHour int `db:"usage_hour"`
		Calls     int `db:"calls"`
	}{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT usage_hour, calls FROM api_usage_hourly
		WHERE usage_date = $1 AND service = $2
	`, day, r.service)
	if err != nil {
		r.logger.Error("Failed to read hourly breakdown", zap.Error(err))
		return nil, fmt.Errorf("failed to read hourly breakdown: %w", err)
	}

	buckets := make(map[int]int, 24)
	for h := 0; h < 24; h++ {
		buckets[h] = 0
	}
	for _, row := range rows {
		buckets[row.UsageHour] = row.Calls
	}
	return buckets, nil
}
