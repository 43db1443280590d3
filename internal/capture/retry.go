package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/config"

	"go.uber.org/zap"
)

// Backoff is a bounded exponential retry policy: MaxRetries retries after the
// first attempt, waiting InitialDelay * 2^(n-1) capped at MaxDelay.
type Backoff struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// BackoffFromConfig converts a config retry policy.
func BackoffFromConfig(c config.RetryConfig) Backoff {
	return Backoff{MaxRetries: c.MaxRetries, InitialDelay: c.InitialDelay, MaxDelay: c.MaxDelay}
}

// Delay returns the wait before retry attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return b.MaxDelay
	}
	delay := b.InitialDelay * time.Duration(1<<uint(attempt-1))
	if delay > b.MaxDelay || delay <= 0 {
		delay = b.MaxDelay
	}
	return delay
}

// OpenWithRetry calls open until it succeeds, the policy is exhausted or ctx ends.
func OpenWithRetry(ctx context.Context, open Opener, policy Backoff, logger *zap.Logger) (Source, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		src, err := open(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("Capture device opened after retry", zap.Int("attempt", attempt+1))
			}
			return src, nil
		}
		lastErr = err

		if attempt >= policy.MaxRetries {
			break
		}
		delay := policy.Delay(attempt + 1)
		logger.Warn("Failed to open capture device, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", policy.MaxRetries),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("%w: %w after %d attempts: %v", ErrDeviceUnavailable, ErrRetriesExhausted, policy.MaxRetries+1, lastErr)
}
