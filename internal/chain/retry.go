package chain

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// RetryConfig bounds retries of a single RPC call.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func withRetry[T any](ctx context.Context, cfg RetryConfig, logger *zap.Logger, method string, fn func(context.Context) (T, error)) (T, error) {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.BaseDelay
	policy.Multiplier = 2

	return backoff.Retry(ctx,
		func() (T, error) { return fn(ctx) },
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(cfg.MaxRetries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("rpc call failed, retrying",
				zap.String("method", method),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
}
