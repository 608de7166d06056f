package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RetryConfig configures backoff for provider calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for model API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// statusError is a non-2xx HTTP response from the backend. It satisfies
// errors.Is(err, ErrProvider).
type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider: status %d: %s", e.code, e.body)
}

func (e *statusError) Is(target error) bool { return target == ErrProvider }

// networkPatterns matches transient transport failures. String matching
// because net and http expose no stable sentinel for most of these.
var networkPatterns = []string{
	"connection reset",
	"connection refused",
	"timeout",
	"temporary",
	"unexpected EOF",
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == 429 || se.code >= 500
	}
	msg := strings.ToLower(err.Error())
	for _, p := range networkPatterns {
		if strings.Contains(msg, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// withRetry runs fn with exponential backoff, honoring Retry-After on 429
// responses and rate limiting every attempt, not just the first.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%s: rate limit wait: %w", op, err)
			}
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				c.logger.Debug("provider call recovered",
					"op", op, "attempts", attempt+1, "elapsed", time.Since(start))
			}
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if attempt == c.retry.MaxRetries {
			break
		}

		wait := delay
		var se *statusError
		if errors.As(err, &se) && se.retryAfter > 0 {
			wait = max(wait, se.retryAfter)
		}

		c.logger.Debug("retrying provider call",
			"op", op, "attempt", attempt+1, "delay", wait, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: canceled during retry: %w", op, ctx.Err())
		case <-time.After(wait):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return fmt.Errorf("%s after %d retries (elapsed %v): %w",
		op, c.retry.MaxRetries, time.Since(start), lastErr)
}
