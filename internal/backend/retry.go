package backend

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"ascend-interview-agent/internal/auth"
	"ascend-interview-agent/internal/observability/metrics"
)

// RetryPolicy bounds retries of non-critical calls with linear backoff.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetry is three attempts at 300ms, 600ms.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 300 * time.Millisecond}
}

// NoRetry makes a single attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{Attempts: 1}
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
func (p RetryPolicy) Do(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retriable(ctx, err) || i == attempts-1 {
			break
		}

		wait := p.Backoff * time.Duration(i+1)
		log.Debug().
			Err(err).
			Str("endpoint", endpoint).
			Int("attempt", i+1).
			Dur("backoff", wait).
			Msg("Retrying backend call")
		metrics.DefaultMetrics.RecordBackendRetry(endpoint)

		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return lastErr
}

func retriable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, auth.ErrNoToken) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError || apiErr.Status == http.StatusTooManyRequests
	}
	// Transport failures: reset connections, timeouts, EOF.
	return true
}
