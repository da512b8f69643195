package retry

import (
	"math"
	"time"
)

// Policy decides whether a failed attempt against a provider may be
// followed by another, and how long to wait first. It is pure and
// stateless; the same value is shared by every provider in a dispatch.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the default retry policy
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// ShouldRetry reports whether attempt (1-indexed) may be followed by
// another attempt against the same provider.
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Delay returns the backoff applied after attempt (1-indexed) before the
// next one: BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}
	return time.Duration(backoff)
}
