package ingest

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/dgallion1/manualgest/internal/llm"
	"github.com/dgallion1/manualgest/internal/qdrant"
)

const maxBackoff = 30 * time.Second

// IsRetryable reports whether err is a transient provider or index failure.
func IsRetryable(err error) bool {
	return llm.IsRetryable(err) || qdrant.IsRetryable(err)
}

// Backoff returns the delay before retry n (0-indexed): base doubled per
// attempt, capped, plus up to 50% jitter.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(attempt)
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}

// withRetry runs fn until it succeeds, fails permanently, or attempts run
// out. A provider Retry-After hint overrides the computed backoff.
func withRetry(ctx context.Context, attempts int, base time.Duration, onRetry func(n uint, err error), fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(onRetry),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			var re *llm.RetryableError
			if errors.As(err, &re) && re.RetryAfter > 0 {
				return re.RetryAfter
			}
			return Backoff(base, int(n))
		}),
	)
}
