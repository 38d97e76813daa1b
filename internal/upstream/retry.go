package upstream

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// withRetry runs fn up to maxAttempts times, sleeping between attempts
// according to an exponential backoff seeded with initialDelay. An error for
// which isRetryable returns false is returned immediately; the error of the
// final attempt is returned once the budget is exhausted. A zero initialDelay
// disables sleeping entirely.
func withRetry(ctx context.Context, maxAttempts int, initialDelay time.Duration, isRetryable func(error) bool, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialDelay
	bo.Reset()

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			slog.Error("retry budget exhausted", "attempts", maxAttempts, "error", err)
			return err
		}

		slog.Info("retrying", "attempt", attempt+1, "max_attempts", maxAttempts, "error", err)

		if initialDelay > 0 {
			select {
			case <-time.After(bo.NextBackOff()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
