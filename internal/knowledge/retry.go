package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for embedding and vector queries.
// Generative calls are never retried; only the cheap retrieval path is.
type RetryConfig struct {
	MaxRetries      int           // retries after the first attempt
	InitialInterval time.Duration // first backoff interval
	MaxInterval     time.Duration // backoff cap
}

// DefaultRetryConfig returns the retrieval retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// retryablePatterns groups transient error substrings by category,
// matched case-insensitively against err.Error().
//
// NOTE: string matching because neither Genkit nor the provider SDKs
// expose typed errors for transient failures.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and worth retrying.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, pattern := range group {
			if strings.Contains(errStr, pattern) {
				return true
			}
		}
	}
	return false
}

// withRetry runs fn with exponential backoff on transient errors.
// Non-retryable errors fail immediately.
func withRetry(ctx context.Context, cfg RetryConfig, op string, fn func() error) error {
	var lastErr error
	delay := cfg.InitialInterval

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryableError(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during retry: %w", op, ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return fmt.Errorf("%s after %d retries: %w", op, cfg.MaxRetries, lastErr)
}
