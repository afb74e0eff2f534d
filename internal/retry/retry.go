// Package retry implements the retry harness that composes a backoff
// policy with a should-retry predicate around a single-attempt operation.
package retry

import (
	"context"
	"time"

	"github.com/W0rldHacker/health-multi/internal/backoff"
)

// ShouldRetry decides, given the error from the most recent attempt and
// the 1-indexed attempt number just completed, whether another attempt
// should be made. A nil ShouldRetry means "always retry" (bounded only by
// Retries).
type ShouldRetry func(err error, attempt int) bool

// Options configures a single call to Do.
type Options struct {
	// Retries is the number of retries allowed after the first attempt.
	// 0 disables retries: Do makes exactly one attempt.
	Retries int

	// Backoff supplies the delay between attempts. Required when Retries
	// > 0; a single shared instance is used across the whole call, so its
	// internal attempt counter advances once per retry.
	Backoff *backoff.ExponentialBackoff

	// ShouldRetry, when set, can veto a retry that Retries would otherwise
	// allow.
	ShouldRetry ShouldRetry
}

// Do runs operation(1), and on failure retries up to Options.Retries
// times, sleeping for Backoff.NextDelay() between attempts. The loop stops
// and returns the most recent error when: the attempt count reaches
// Retries+1, ShouldRetry returns false, or ctx is canceled while sleeping
// (in which case ctx.Err() is returned, not the operation's error).
//
// The returned error is always the error that terminated the last
// attempt — operation succeeding on a later attempt clears any earlier
// error entirely.
func Do(ctx context.Context, operation func(ctx context.Context, attempt int) error, opts Options) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		lastErr = operation(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if attempt == opts.Retries+1 {
			return lastErr
		}
		if opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr, attempt) {
			return lastErr
		}

		delay := opts.Backoff.NextDelay()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
