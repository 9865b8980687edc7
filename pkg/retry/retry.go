package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts     = 3
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
)

// Options parameterizes a bounded retry loop. The zero value gets sane
// defaults applied.
type Options struct {
	// MaxAttempts is the total number of attempts, first one included.
	MaxAttempts int
	// InitialInterval is the delay before the second attempt.
	InitialInterval time.Duration
	// MaxInterval caps the backoff growth.
	MaxInterval time.Duration
	// Multiplier is the backoff growth factor between attempts.
	Multiplier float64
	// IsRetryable classifies errors. A nil classifier retries everything,
	// a false return aborts immediately with the original error.
	IsRetryable func(err error) bool
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = defaultInitialInterval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = defaultMaxInterval
	}
	if o.Multiplier < 1 {
		o.Multiplier = defaultMultiplier
	}
	return o
}

// Do runs op until it succeeds, a fatal error is returned, the attempts are
// exhausted or the context is canceled. The backoff between attempts grows
// geometrically up to MaxInterval.
func Do(ctx context.Context, opts Options, op func() error) error {
	opts = opts.withDefaults()

	var lastErr error
	interval := opts.InitialInterval
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if opts.IsRetryable != nil && !opts.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == opts.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		interval = time.Duration(float64(interval) * opts.Multiplier)
		if interval > opts.MaxInterval {
			interval = opts.MaxInterval
		}
	}

	return fmt.Errorf("after %d attempts: %w", opts.MaxAttempts, lastErr)
}

// Until keeps running op on the given interval until it succeeds, the
// deadline elapses or the context is canceled. It is used for readiness
// polling where the number of attempts is unknown upfront.
func Until(
	ctx context.Context, deadline time.Duration, interval time.Duration,
	op func() error,
) error {
	timeout := time.NewTimer(deadline)
	defer timeout.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = op(); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("deadline of %s elapsed: %w", deadline, lastErr)
		case <-ticker.C:
		}
	}
}
