package resilience

import (
	"errors"
	"sync"
	"time"
)

// RateLimitError represents a 429 from the backend.
type RateLimitError struct {
	Message string
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "rate limit"
}

// IsRateLimit returns true when the error is a RateLimitError.
func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// CircuitBreaker blocks gateway calls for a cooldown once the backend
// has rate-limited threshold requests in a row. Other errors pass
// through untracked; only the server telling us to slow down counts.
type CircuitBreaker struct {
	mu          sync.Mutex
	consecutive int
	threshold   int
	reopenAt    time.Time
	cooldown    time.Duration
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a request may go out right now.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !time.Now().Before(c.reopenAt)
}

// OnSuccess closes the breaker and clears the failure streak.
func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	c.consecutive = 0
	c.reopenAt = time.Time{}
	c.mu.Unlock()
}

// OnError counts rate-limit responses toward opening the breaker.
func (c *CircuitBreaker) OnError(err error) {
	if !IsRateLimit(err) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutive++
	if c.consecutive >= c.threshold {
		c.reopenAt = time.Now().Add(c.cooldown)
	}
}
