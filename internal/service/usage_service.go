package service

import (
	"context"
	"time"

	"services/price-ingest-service/internal/model"

	"go.uber.org/zap"
)

// UsageService assembles usage ledger reads into the snapshot exposed on
// /usage and /healthz.
type UsageService struct {
	usage      UsageStore
	dailyLimit int
	buffer     int
	logger     *zap.Logger

	now func() time.Time
}

// NewUsageService creates a new usage service
func NewUsageService(usage UsageStore, dailyLimit, buffer int, logger *zap.Logger) *UsageService {
	return &UsageService{
		usage:      usage,
		dailyLimit: dailyLimit,
		buffer:     buffer,
		logger:     logger,
		now:        time.Now,
	}
}

// Snapshot returns today's call accounting. CallsLeftToday is nil when no
// daily limit is configured.
func (s *UsageService) Snapshot(ctx context.Context) (*model.UsageSnapshot, error) {
	now := s.now()

	callsToday, err := s.usage.CallsOn(ctx, now)
	if err != nil {
		return nil, err
	}
	callsThisHour, err := s.usage.CallsDuring(ctx, now)
	if err != nil {
		return nil, err
	}

	snapshot := &model.UsageSnapshot{
		CallsToday:    callsToday,
		CallsThisHour: callsThisHour,
	}
	if s.dailyLimit > 0 {
		left := s.dailyLimit - s.buffer - callsToday
		if left < 0 {
			left = 0
		}
		snapshot.CallsLeftToday = &left
	}
	return snapshot, nil
}

// SnapshotWithBreakdown additionally includes today's per-hour buckets.
func (s *UsageService) SnapshotWithBreakdown(ctx context.Context) (*model.UsageSnapshot, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.usage.HourlyBreakdown(ctx, s.now())
	if err != nil {
		return nil, err
	}
	snapshot.HourlyBreakdown = breakdown
	return snapshot, nil
}
