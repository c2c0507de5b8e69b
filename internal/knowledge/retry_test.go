package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 Rate Limit Exceeded"), true},
		{"quota", errors.New("quota exceeded for project"), true},
		{"unavailable", errors.New("rpc error: service UNAVAILABLE"), true},
		{"bad gateway", errors.New("HTTP 502 from upstream"), true},
		{"timeout", errors.New("context deadline exceeded: timeout"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"invalid argument", errors.New("invalid argument: unknown model"), false},
		{"auth", errors.New("401 unauthorized"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetryTransientThenSuccess(t *testing.T) {
	t.Parallel()

	var calls int
	err := withRetry(context.Background(), fastRetry(), "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryPermanentFailsFast(t *testing.T) {
	t.Parallel()

	permanent := errors.New("invalid argument")
	var calls int
	err := withRetry(context.Background(), fastRetry(), "op", func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("withRetry() = %v, want wrapped permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent errors)", calls)
	}
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	t.Parallel()

	transient := errors.New("timeout")
	var calls int
	err := withRetry(context.Background(), fastRetry(), "op", func() error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("withRetry() = %v, want wrapped transient error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestWithRetryStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	errCh := make(chan error, 1)
	go func() {
		errCh <- withRetry(ctx, RetryConfig{MaxRetries: 5, InitialInterval: time.Hour, MaxInterval: time.Hour}, "op", func() error {
			calls++
			return errors.New("timeout")
		})
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("withRetry() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("withRetry did not observe cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
