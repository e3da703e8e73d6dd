package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// MaxRetries is how many times a transient model failure is retried.
	MaxRetries = 3
	// RetryBaseDelay is the first backoff delay; each retry doubles it.
	RetryBaseDelay = 500 * time.Millisecond
)

// retryablePatterns match provider errors worth another attempt: malformed
// responses, rate limits and network trouble.
var retryablePatterns = []string{
	// Malformed output
	"parse json",
	"unmarshal",
	"invalid character",
	"no json",
	// Rate limits
	"rate limit",
	"rate_limit",
	"429",
	"too many requests",
	"quota exceeded",
	"resource_exhausted",
	"overloaded",
	// Network
	"timeout",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"temporary",
	"unexpected eof",
	"502",
	"503",
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// withRetry calls fn until it succeeds, fails permanently or retries are
// used up, backing off exponentially between attempts.
func withRetry[T any](ctx context.Context, name string, retries int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := RetryBaseDelay * time.Duration(1<<(attempt-1))
			slog.Debug("retrying model call", "prompt", name, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !isRetryableError(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("after %d retries: %w", retries, lastErr)
}
