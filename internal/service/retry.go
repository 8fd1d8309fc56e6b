package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy bounds the exponential backoff applied to a single provider
// call. After MaxAttempts the last error propagates as a terminal failure
// for that symbol's cycle.
type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the provider client's historical behavior:
// five attempts, 1s initial wait doubling up to a 60s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: time.Second,
		MaxInterval:     60 * time.Second,
	}
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.25
	b.MaxElapsedTime = 0
	b.Reset()

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx)
}

// fetchWithRetry runs one provider call under the retry policy, logging each
// backoff. The returned error is the last provider error once attempts are
// exhausted (or the context error on cancellation).
func fetchWithRetry[T any](ctx context.Context, p RetryPolicy, logger *zap.Logger, symbol string, op func() (T, error)) (T, error) {
	attempt := 1
	return backoff.RetryNotifyWithData(op, p.newBackOff(ctx), func(err error, wait time.Duration) {
		logger.Warn("Provider call failed, backing off",
			zap.String("symbol", symbol),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		attempt++
	})
}
