package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond)
	attempts := 0
	err := policy.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	policy := NewRetryPolicy(5, time.Millisecond)
	base := errors.New("bad request")
	attempts := 0
	err := policy.Do(context.Background(), func() error {
		attempts++
		return Permanent(base)
	})
	if !errors.Is(err, base) {
		t.Fatalf("expected base error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("permanent error should not retry, got %d attempts", attempts)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	policy := NewRetryPolicy(10, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := policy.Do(ctx, func() error { return errors.New("transient") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestCircuitBreakerOpensOnRateLimits(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Hour)
	if !cb.Allow() {
		t.Fatal("breaker should start closed")
	}
	cb.OnError(RateLimitError{Message: "slow down"})
	if !cb.Allow() {
		t.Fatal("one failure should not open the breaker")
	}
	cb.OnError(RateLimitError{})
	if cb.Allow() {
		t.Fatal("breaker should be open after reaching the threshold")
	}
	cb.OnSuccess()
	if !cb.Allow() {
		t.Fatal("success should reset the breaker")
	}
}

func TestCircuitBreakerIgnoresOtherErrors(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	cb.OnError(errors.New("network down"))
	if !cb.Allow() {
		t.Fatal("non rate-limit errors should not open the breaker")
	}
}
