package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig holds tuning knobs for [Do]. Zero-value fields are replaced
// with defaults.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Default: 3.
	MaxRetries int

	// InitialDelay is the delay before the first retry. Default: 500 ms.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries. Default: 10 s.
	MaxDelay time.Duration

	// Multiplier scales the delay after each retry. Default: 2.
	Multiplier float64

	// Jitter is the maximum random fraction added to each delay, in [0, 1].
	// Default: 0.1.
	Jitter float64

	// sleep replaces the context-aware delay in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		c.Jitter = 0.1
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
}

// Do runs fn, retrying on retryable errors with exponential backoff. The
// last error is returned once the retry budget is exhausted or a terminal
// error occurs. Classification is the caller's job: fn must return errors
// wrapped via [Classify] or [NewError] for retries to trigger.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg.applyDefaults()

	delay := cfg.InitialDelay
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		if attempt >= cfg.MaxRetries {
			return fmt.Errorf("resilience: %d retries exhausted: %w", cfg.MaxRetries, err)
		}

		d := delay
		if cfg.Jitter > 0 {
			d += time.Duration(rand.Float64() * cfg.Jitter * float64(delay))
		}
		slog.Debug("retrying after error",
			"attempt", attempt+1,
			"max_retries", cfg.MaxRetries,
			"delay", d,
			"error", err)

		if serr := cfg.sleep(ctx, d); serr != nil {
			return serr
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
