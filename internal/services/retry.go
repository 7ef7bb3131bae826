package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 1 * time.Second
	defaultRetryMaxDelay   = 30 * time.Second
	defaultRetryMultiplier = 2.0
)

// RetryPolicy describes bounded exponential backoff for a network operation.
// Policies are plain values passed into clients rather than control flow
// embedded in them.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	// Sleeper overrides how delays are waited out. Tests inject a recorder.
	Sleeper func(context.Context, time.Duration) error
}

// DefaultRetryPolicy returns the retry tuning used when config does not
// override it.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultRetryAttempts,
		BaseDelay:   defaultRetryBaseDelay,
		MaxDelay:    defaultRetryMaxDelay,
		Multiplier:  defaultRetryMultiplier,
	}
}

// RetryAfterHint is implemented by errors that carry a server-provided
// retry delay (e.g. HTTP 429 Retry-After).
type RetryAfterHint interface {
	RetryAfter() time.Duration
}

// Do runs fn with the policy's backoff. Only retryable errors are retried;
// fatal, permanent, and consistency errors return immediately. The final
// error is tagged ErrPermanent once attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.delay(attempt)
		var hint RetryAfterHint
		if errors.As(lastErr, &hint) && hint.RetryAfter() > delay {
			delay = hint.RetryAfter()
		}
		if logger != nil {
			logger.Debug("retrying after failure",
				slog.String("operation", op),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err),
			)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: %s: failed after %d attempts: %w", ErrPermanent, op, attempts, lastErr)
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = defaultRetryMultiplier
	}

	delay := float64(base)
	for i := 1; i < attempt; i++ {
		delay *= multiplier
		if time.Duration(delay) >= maxDelay {
			return maxDelay
		}
	}
	return time.Duration(delay)
}

func (p RetryPolicy) sleep(ctx context.Context, delay time.Duration) error {
	if p.Sleeper != nil {
		return p.Sleeper(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
