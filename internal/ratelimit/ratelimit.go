// Package ratelimit throttles API requests per user with token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// bucket tracks the token state for a single user.
type bucket struct {
	tokens   float64
	lastSeen time.Time
	rate     int
}

// Decision is the outcome of one Take call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter implements a token-bucket rate limiter keyed by user ID. Each
// bucket holds at most rate tokens and refills at rate per window.
type Limiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	defaultRate int
	window      time.Duration
	now         func() time.Time
}

// New creates a Limiter that allows defaultRate requests per window.
func New(defaultRate int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		buckets:     make(map[string]*bucket),
		defaultRate: defaultRate,
		window:      window,
		now:         time.Now,
	}
}

func (l *Limiter) effectiveRate(customRate int) int {
	if customRate > 0 {
		return customRate
	}
	return l.defaultRate
}

// bucketFor returns the refilled bucket for key. Must be called with l.mu held.
func (l *Limiter) bucketFor(key string, rate int) *bucket {
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rate), lastSeen: now, rate: rate}
		l.buckets[key] = b
		return b
	}

	// A changed per-user limit takes effect immediately.
	if b.rate != rate {
		b.rate = rate
		if b.tokens > float64(rate) {
			b.tokens = float64(rate)
		}
	}

	elapsed := now.Sub(b.lastSeen).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * float64(rate) / l.window.Seconds()
		if b.tokens > float64(rate) {
			b.tokens = float64(rate)
		}
		b.lastSeen = now
	}
	return b
}

// Take consumes one token for key if available. customRate overrides the
// default rate when positive. A non-positive effective rate disables
// limiting.
func (l *Limiter) Take(key string, customRate int) Decision {
	rate := l.effectiveRate(customRate)
	if rate <= 0 {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(key, rate)
	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}
	return Decision{
		Allowed:   allowed,
		Limit:     rate,
		Remaining: max(int(b.tokens), 0),
		ResetAt:   l.resetAt(b),
	}
}

// Allow reports whether a request for key is permitted, consuming a token
// when it is.
func (l *Limiter) Allow(key string, customRate int) bool {
	return l.Take(key, customRate).Allowed
}

// resetAt returns when b will be full again. Must be called with l.mu held.
func (l *Limiter) resetAt(b *bucket) time.Time {
	deficit := float64(b.rate) - b.tokens
	if deficit <= 0 {
		return b.lastSeen
	}
	perSecond := float64(b.rate) / l.window.Seconds()
	return b.lastSeen.Add(time.Duration(deficit / perSecond * float64(time.Second)))
}

// Sweep drops buckets that have been full and idle for at least idle,
// returning how many were removed.
func (l *Limiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= idle && !now.Before(l.resetAt(b)) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps idle buckets every window until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(l.window)
		}
	}
}
