package compliance

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RateLimiter enforces a jittered minimum interval between requests to
// the same host. Jitter makes the request cadence look less mechanical
// than a fixed delay.
//
// Design decision: Per-host state instead of a single global limiter so
// that image CDN downloads do not starve listing-page fetches. In
// practice the portal and its CDN are the only two hosts.
type RateLimiter struct {
	minDelay time.Duration
	maxDelay time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter with the given politeness window.
// Each wait lasts at least minDelay and at most maxDelay since the
// previous request to the same host.
func NewRateLimiter(minDelay, maxDelay time.Duration) *RateLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &RateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until the host may be contacted again, or until the
// context is canceled.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	rl.mu.Lock()
	last, seen := rl.lastSeen[host]
	now := rl.now()
	rl.lastSeen[host] = now
	rl.mu.Unlock()

	if !seen {
		return nil
	}

	delay := rl.jitteredDelay()
	elapsed := now.Sub(last)
	if elapsed >= delay {
		return nil
	}
	return rl.sleep(ctx, delay-elapsed)
}

// jitteredDelay picks a delay uniformly in [minDelay, maxDelay].
func (rl *RateLimiter) jitteredDelay() time.Duration {
	if rl.maxDelay == rl.minDelay {
		return rl.minDelay
	}
	spread := rl.maxDelay - rl.minDelay
	return rl.minDelay + time.Duration(rand.Int63n(int64(spread)))
}

// sleepCtx sleeps for d, aborting early on context cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
