package util

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryWithBackoff calls fn until it succeeds or maxRetries retries have
// failed. The wait starts at base and doubles after every failure; fn gets
// the 0-indexed attempt. Cancelling ctx stops the wait and returns ctx.Err().
func RetryWithBackoff(ctx context.Context, maxRetries int, base time.Duration, fn func(attempt int) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return fmt.Errorf("failed after %d retries: %w", maxRetries, err)
		}

		wait := base << attempt
		slog.Debug("Attempt failed, retrying", "attempt", attempt+1, "wait", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
