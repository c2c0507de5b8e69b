package chat

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewCircuitBreakerAppliesDefaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.failureThreshold <= 0 {
		t.Error("should apply default failure threshold")
	}
	if cb.successThreshold <= 0 {
		t.Error("should apply default success threshold")
	}
	if cb.timeout <= 0 {
		t.Error("should apply default timeout")
	}
	if cb.State() != CircuitClosed {
		t.Error("should start closed")
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Hour,
	})

	cb.Failure()
	cb.Failure()
	if cb.State() != CircuitClosed {
		t.Error("should remain closed below threshold")
	}

	cb.Failure()
	if cb.State() != CircuitOpen {
		t.Error("should open at threshold")
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})

	cb.Failure()
	cb.Success()
	cb.Failure()

	if cb.State() != CircuitClosed {
		t.Error("success should reset the failure count")
	}
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})

	cb.Failure()
	if cb.State() != CircuitOpen {
		t.Fatal("should be open")
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() after timeout = %v, want nil", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Error("should be half-open after timeout")
	}
}

func TestCircuitBreakerClosesAfterHalfOpenSuccesses(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Millisecond,
	})

	cb.Failure()
	time.Sleep(5 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}

	cb.Success()
	if cb.State() != CircuitHalfOpen {
		t.Error("should stay half-open below success threshold")
	}

	cb.Success()
	if cb.State() != CircuitClosed {
		t.Error("should close after enough successes")
	}
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Millisecond,
	})

	cb.Failure()
	time.Sleep(5 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}

	cb.Failure()
	if cb.State() != CircuitOpen {
		t.Error("half-open failure should reopen the circuit")
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})

	cb.Failure()
	cb.Reset()

	if cb.State() != CircuitClosed {
		t.Error("Reset should close the circuit")
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() after Reset = %v, want nil", err)
	}
}

func TestCircuitBreakerConcurrentAccess(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          time.Millisecond,
	})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = cb.Allow()
			if n%2 == 0 {
				cb.Success()
			} else {
				cb.Failure()
			}
			_ = cb.State()
		}(i)
	}
	wg.Wait()
}

func TestCircuitStateString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
