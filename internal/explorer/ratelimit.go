package explorer

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared by all explorer requests.
type RateLimiter struct {
	mu       sync.Mutex
	capacity float64
	rate     float64 // tokens per second

	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
}

// NewRateLimiter creates a bucket that starts full. A non-positive rate
// disables limiting.
func NewRateLimiter(capacity, rate float64) *RateLimiter {
	if capacity < 1 {
		capacity = 1
	}
	return &RateLimiter{
		capacity: capacity,
		rate:     rate,
		tokens:   capacity,
		now:      time.Now,
	}
}

// Wait blocks until a token is available or ctx is done.
func (b *RateLimiter) Wait(ctx context.Context) error {
	for {
		delay, ok := b.reserve()
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token or reports how long until one is due.
func (b *RateLimiter) reserve() (time.Duration, bool) {
	if b == nil || b.rate <= 0 {
		return 0, true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.lastUpdate.IsZero() {
		b.lastUpdate = now
	}
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
		b.lastUpdate = now
	}
	if b.tokens >= 1 {
		b.tokens -= 1
		return 0, true
	}
	missing := (1 - b.tokens) / b.rate
	return time.Duration(missing * float64(time.Second)), false
}
