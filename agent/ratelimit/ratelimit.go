// Package ratelimit enforces per-provider request and token budgets so a
// single chatty client cannot burn through a provider's minute quota and
// convert every later attempt into a rate-limit failure.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter tracks tokens per minute (TPM) and requests per minute (RPM)
// for one provider. Budgets refill in whole-minute windows.
type Limiter struct {
	requests *bucket
	tokens   *bucket
}

// NewLimiter creates a limiter with the given TPM and RPM budgets.
func NewLimiter(tpm, rpm int) *Limiter {
	return &Limiter{
		requests: newBucket(rpm),
		tokens:   newBucket(tpm),
	}
}

// Wait blocks until one request and tokensNeeded tokens fit within the
// current minute window, or the context is done.
func (l *Limiter) Wait(ctx context.Context, tokensNeeded int) error {
	if err := l.requests.take(ctx, 1); err != nil {
		return err
	}
	return l.tokens.take(ctx, tokensNeeded)
}

// bucket is a minute-window budget: capacity units per minute, refilled
// once the window elapses.
type bucket struct {
	mu       sync.Mutex
	capacity int
	level    int
	lastFill time.Time
}

func newBucket(capacity int) *bucket {
	return &bucket{
		capacity: capacity,
		level:    capacity,
		lastFill: time.Now(),
	}
}

func (b *bucket) take(ctx context.Context, n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		now := time.Now()
		elapsed := now.Sub(b.lastFill)
		if elapsed >= time.Minute {
			b.level = b.capacity
			b.lastFill = now
			elapsed = 0
		}

		if b.level >= n {
			b.level -= n
			return nil
		}

		wait := time.Minute - elapsed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			b.mu.Lock()
			return ctx.Err()
		case <-time.After(wait):
			b.mu.Lock()
		}
	}
}
