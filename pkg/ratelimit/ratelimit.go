// Package ratelimit provides per-scope token-bucket admission control.
// A refused admission is a silent drop: the caller must not retry or
// queue the request.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter admits requests per scope. Unknown scopes get a fresh full
// bucket on first use. All methods are safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	burst   int
	perSec  float64
	buckets map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter whose buckets hold burst tokens and refill at
// perSec tokens per second.
func New(burst int, perSec float64) *Limiter {
	return &Limiter{
		burst:   burst,
		perSec:  perSec,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token from scope's bucket if available. It never
// blocks.
func (l *Limiter) Allow(scope string) bool {
	l.mu.Lock()
	b, ok := l.buckets[scope]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.perSec), l.burst)}
		l.buckets[scope] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()
	return b.lim.Allow()
}

// Prune drops buckets not used for at least idleFor. An idle bucket
// has refilled to capacity, so recreating it on the next request is
// indistinguishable from having kept it.
func (l *Limiter) Prune(idleFor time.Duration) int {
	cutoff := time.Now().Add(-idleFor)
	l.mu.Lock()
	defer l.mu.Unlock()
	dropped := 0
	for scope, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, scope)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
