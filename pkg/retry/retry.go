package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Config describes a fixed-backoff retry policy.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
	// RetryIf decides whether an error is worth another attempt. When nil,
	// every error except context cancellation is retried.
	RetryIf func(error) bool
	Logger  *zap.Logger
}

// Constant waits the same delay between every attempt.
func Constant(maxAttempts int, delay time.Duration, logger *zap.Logger) Config {
	return Config{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Logger:      logger,
	}
}

// Do runs operation until it succeeds, returns a non-retryable error or the
// attempts run out. The last error is returned.
func Do(ctx context.Context, cfg Config, operation func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation()
		if err == nil {
			if attempt > 1 {
				cfg.Logger.Info("Operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err

		if !cfg.retryable(err) {
			cfg.Logger.Debug("Error not retryable", zap.Error(err), zap.Int("attempt", attempt))
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		cfg.Logger.Warn("Operation failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("delay", cfg.Delay),
		)

		timer := time.NewTimer(cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

func (cfg Config) retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if cfg.RetryIf != nil {
		return cfg.RetryIf(err)
	}
	return true
}
